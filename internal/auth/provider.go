package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gainfair/internal/config"
	"gainfair/internal/models"
	"gainfair/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSignUpDisabled     = errors.New("sign up is disabled")
	ErrEmailTaken         = errors.New("email already registered")
)

// SessionState is what the rest of the server knows about the caller.
// Present=false is an anonymous caller.
type SessionState struct {
	Present bool   `json:"present"`
	UserID  string `json:"user_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Role    string `json:"role,omitempty"`
}

type Provider struct {
	cfg config.Config
	st  *store.Store
	dir RoleDirectory
	log zerolog.Logger
	now func() time.Time

	mu   sync.Mutex
	subs map[int]func(SessionState)
	next int
}

func NewProvider(cfg config.Config, st *store.Store, dir RoleDirectory, log zerolog.Logger) *Provider {
	if dir == nil {
		dir = LocalDirectory{}
	}
	return &Provider{
		cfg:  cfg,
		st:   st,
		dir:  dir,
		log:  log.With().Str("component", "auth").Logger(),
		now:  func() time.Time { return time.Now().UTC() },
		subs: map[int]func(SessionState){},
	}
}

// Subscribe registers fn for sign-in and sign-out events. The returned
// func removes it.
func (p *Provider) Subscribe(fn func(SessionState)) func() {
	p.mu.Lock()
	id := p.next
	p.next++
	p.subs[id] = fn
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) publish(s SessionState) {
	p.mu.Lock()
	fns := make([]func(SessionState), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// SignUp creates a viewer account. Staff roles are granted by an admin or
// by the role directory, never by sign up.
func (p *Provider) SignUp(ctx context.Context, email, password string) (models.User, error) {
	if !p.cfg.AllowSignUp {
		return models.User{}, ErrSignUpDisabled
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return models.User{}, errors.New("a valid email is required")
	}
	if err := CheckPasswordPolicy(password, p.cfg.PasswordMinLength, p.cfg.PasswordMaxLength); err != nil {
		return models.User{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	u, err := p.st.CreateUser(ctx, email, hash, models.RoleViewer)
	if errors.Is(err, store.ErrConflict) {
		return models.User{}, ErrEmailTaken
	}
	return u, err
}

func (p *Provider) SignIn(ctx context.Context, email, password, ip, userAgent string) (string, SessionState, error) {
	u, err := p.st.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", SessionState{}, ErrInvalidCredentials
		}
		return "", SessionState{}, err
	}
	if !VerifyPassword(u.PasswordHash, password) {
		return "", SessionState{}, ErrInvalidCredentials
	}

	raw, tokenHash, err := NewOpaqueToken()
	if err != nil {
		return "", SessionState{}, err
	}
	now := p.now()
	sess := models.Session{
		ID:            uuid.NewString(),
		UserID:        u.ID,
		TokenHash:     tokenHash,
		IPHint:        ip,
		UserAgentHash: hashUA(userAgent),
		ExpiresAt:     now.Add(p.cfg.SessionAbsoluteDuration()),
		IdleExpiresAt: now.Add(p.cfg.SessionIdleDuration()),
		CreatedAt:     now,
		LastSeenAt:    now,
	}
	if err := p.st.CreateSession(ctx, sess); err != nil {
		return "", SessionState{}, fmt.Errorf("create session: %w", err)
	}
	_ = p.st.TouchUserLastLogin(ctx, u.ID, now)

	state := SessionState{Present: true, UserID: u.ID, Email: u.Email, Role: p.role(ctx, u)}
	p.publish(state)
	return raw, state, nil
}

// SignOut revokes the session behind rawToken. Unknown tokens are not an
// error.
func (p *Provider) SignOut(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	sess, err := p.st.GetSessionByTokenHash(ctx, HashToken(rawToken))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := p.st.RevokeSession(ctx, sess.ID); err != nil {
		return err
	}
	p.publish(SessionState{})
	return nil
}

// Resolve maps a session token to the caller's current state. Invalid,
// expired or revoked tokens resolve to an absent session; only storage
// failures are returned as errors.
func (p *Provider) Resolve(ctx context.Context, rawToken string) (SessionState, error) {
	if rawToken == "" {
		return SessionState{}, nil
	}
	sess, err := p.st.GetSessionByTokenHash(ctx, HashToken(rawToken))
	if errors.Is(err, store.ErrNotFound) {
		return SessionState{}, nil
	}
	if err != nil {
		return SessionState{}, err
	}
	now := p.now()
	if sess.RevokedAt != nil || now.After(sess.ExpiresAt) || now.After(sess.IdleExpiresAt) {
		return SessionState{}, nil
	}
	_ = p.st.TouchSession(ctx, sess.ID, now.Add(p.cfg.SessionIdleDuration()))

	u, err := p.st.GetUserByID(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return SessionState{}, nil
	}
	if err != nil {
		return SessionState{}, err
	}
	return SessionState{Present: true, UserID: u.ID, Email: u.Email, Role: p.role(ctx, u)}, nil
}

// role prefers the directory claim; the local row is the fallback.
func (p *Provider) role(ctx context.Context, u models.User) string {
	role, found, err := p.dir.Role(ctx, u.Email)
	if err != nil {
		p.log.Warn().Err(err).Str("user_id", u.ID).Msg("role directory lookup failed")
		return u.Role
	}
	if found && role != "" {
		return role
	}
	return u.Role
}

// GrantRole sets the role locally and in the directory.
func (p *Provider) GrantRole(ctx context.Context, email, role string) error {
	u, err := p.st.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := p.st.SetUserRole(ctx, u.ID, role); err != nil {
		return err
	}
	if err := p.dir.SetRole(ctx, u.Email, role); err != nil {
		return fmt.Errorf("role directory: %w", err)
	}
	return p.st.RevokeUserSessions(ctx, u.ID)
}

func hashUA(ua string) string {
	s := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(s[:])
}
