package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainfair/internal/config"
	"gainfair/internal/db"
	"gainfair/internal/models"
	"gainfair/internal/store"
)

type fakeDirectory struct {
	mu    sync.Mutex
	roles map[string]string
}

func (d *fakeDirectory) Role(ctx context.Context, email string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.roles[email]
	return r, ok, nil
}

func (d *fakeDirectory) SetRole(ctx context.Context, email, role string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[email] = role
	return nil
}

func newTestProvider(t *testing.T, dir RoleDirectory) (*Provider, *store.Store) {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "auth.db"), 1, 1, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqdb.Close() })
	_, err = db.Migrate(sqdb)
	require.NoError(t, err)
	st := store.New(sqdb)
	cfg := config.Config{
		SessionIdleMinutes:  30,
		SessionAbsoluteHour: 8,
		PasswordMinLength:   10,
		PasswordMaxLength:   64,
		AllowSignUp:         true,
	}
	return NewProvider(cfg, st, dir, zerolog.Nop()), st
}

func TestSignUpCreatesViewer(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	u, err := p.SignUp(context.Background(), " New@Example.com ", "Correct-Horse-1")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, models.RoleViewer, u.Role)

	_, err = p.SignUp(context.Background(), "new@example.com", "Correct-Horse-1")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = p.SignUp(context.Background(), "weak@example.com", "password")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestSignUpDisabled(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	p.cfg.AllowSignUp = false
	_, err := p.SignUp(context.Background(), "a@example.com", "Correct-Horse-1")
	assert.ErrorIs(t, err, ErrSignUpDisabled)
}

func TestSignInResolveSignOut(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	_, err := p.SignUp(context.Background(), "staff@example.com", "Correct-Horse-1")
	require.NoError(t, err)

	_, _, err = p.SignIn(context.Background(), "staff@example.com", "wrong-password", "127.0.0.1", "ua")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = p.SignIn(context.Background(), "nobody@example.com", "Correct-Horse-1", "127.0.0.1", "ua")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	var events []SessionState
	unsubscribe := p.Subscribe(func(s SessionState) { events = append(events, s) })

	token, state, err := p.SignIn(context.Background(), "staff@example.com", "Correct-Horse-1", "127.0.0.1", "ua")
	require.NoError(t, err)
	assert.True(t, state.Present)
	assert.Equal(t, models.RoleViewer, state.Role)

	got, err := p.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, state, got)

	require.NoError(t, p.SignOut(context.Background(), token))
	got, err = p.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, got.Present)

	require.Len(t, events, 2)
	assert.True(t, events[0].Present)
	assert.False(t, events[1].Present)

	unsubscribe()
	unsubscribe()
	_, _, err = p.SignIn(context.Background(), "staff@example.com", "Correct-Horse-1", "127.0.0.1", "ua")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestResolveUnknownAndExpiredTokens(t *testing.T) {
	p, _ := newTestProvider(t, nil)
	got, err := p.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, got.Present)

	got, err = p.Resolve(context.Background(), "not-a-token")
	require.NoError(t, err)
	assert.False(t, got.Present)

	_, err = p.SignUp(context.Background(), "idle@example.com", "Correct-Horse-1")
	require.NoError(t, err)
	token, _, err := p.SignIn(context.Background(), "idle@example.com", "Correct-Horse-1", "", "")
	require.NoError(t, err)

	p.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	got, err = p.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, got.Present, "idle session must not resolve")
}

func TestDirectoryOverridesRole(t *testing.T) {
	dir := &fakeDirectory{roles: map[string]string{}}
	p, _ := newTestProvider(t, dir)
	_, err := p.SignUp(context.Background(), "ops@example.com", "Correct-Horse-1")
	require.NoError(t, err)
	token, state, err := p.SignIn(context.Background(), "ops@example.com", "Correct-Horse-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, state.Role)

	dir.roles["ops@example.com"] = models.RoleAdmin
	got, err := p.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role, "role is read on every resolve")
}

func TestGrantRoleRevokesSessions(t *testing.T) {
	dir := &fakeDirectory{roles: map[string]string{}}
	p, st := newTestProvider(t, dir)
	_, err := p.SignUp(context.Background(), "promote@example.com", "Correct-Horse-1")
	require.NoError(t, err)
	token, _, err := p.SignIn(context.Background(), "promote@example.com", "Correct-Horse-1", "", "")
	require.NoError(t, err)

	require.NoError(t, p.GrantRole(context.Background(), "promote@example.com", models.RoleAdmin))
	assert.Equal(t, models.RoleAdmin, dir.roles["promote@example.com"])
	u, err := st.GetUserByEmail(context.Background(), "promote@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	got, err := p.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, got.Present)
}
