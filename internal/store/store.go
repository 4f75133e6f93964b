package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"gainfair/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, role string) (models.User, error) {
	u := models.User{ID: uuid.NewString(), Email: normalizeEmail(email), PasswordHash: passwordHash, Role: role, CreatedAt: s.now()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id,email,password_hash,role,created_at) VALUES(?,?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, u.Role, u.CreatedAt,
	)
	if isUniqueErr(err) {
		return models.User{}, ErrConflict
	}
	return u, err
}

// EnsureAdmin creates the admin account or resets its password and role.
func (s *Store) EnsureAdmin(ctx context.Context, email, passwordHash string) error {
	email = normalizeEmail(email)
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=?, role=? WHERE email=?`, passwordHash, models.RoleAdmin, email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.CreateUser(ctx, email, passwordHash, models.RoleAdmin)
	return err
}

func (s *Store) SetUserRole(ctx context.Context, userID, role string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role=? WHERE id=?`, role, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUser(ctx, `WHERE email=?`, normalizeEmail(email))
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.getUser(ctx, `WHERE id=?`, id)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (models.User, error) {
	var u models.User
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id,email,password_hash,role,created_at,last_login_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &lastLogin)
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

func (s *Store) TouchUserLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at=? WHERE id=?`, at, userID)
	return err
}

func (s *Store) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(id,user_id,token_hash,ip_hint,user_agent_hash,expires_at,idle_expires_at,created_at,last_seen_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.UserID, sess.TokenHash, sess.IPHint, sess.UserAgentHash, sess.ExpiresAt, sess.IdleExpiresAt, sess.CreatedAt, sess.LastSeenAt,
	)
	return err
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (models.Session, error) {
	var sess models.Session
	var revoked sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id,user_id,token_hash,ip_hint,user_agent_hash,expires_at,idle_expires_at,created_at,last_seen_at,revoked_at FROM sessions WHERE token_hash=?`,
		tokenHash,
	).Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.IPHint, &sess.UserAgentHash, &sess.ExpiresAt, &sess.IdleExpiresAt, &sess.CreatedAt, &sess.LastSeenAt, &revoked)
	if err == sql.ErrNoRows {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	if revoked.Valid {
		t := revoked.Time
		sess.RevokedAt = &t
	}
	return sess, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, idleExpiry time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at=?, idle_expires_at=? WHERE id=?`, s.now(), idleExpiry, id)
	return err
}

func (s *Store) RevokeSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked_at=? WHERE id=? AND revoked_at IS NULL`, s.now(), id)
	return err
}

func (s *Store) RevokeUserSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL`, s.now(), userID)
	return err
}

func (s *Store) InsertAudit(ctx context.Context, actorID, action, target, metadata string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_audit_log(id,actor_user_id,action,target,metadata_json,created_at) VALUES(?,?,?,?,?,?)`,
		uuid.NewString(), actorID, action, target, metadata, s.now(),
	)
	return err
}

func (s *Store) ListAudit(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,actor_user_id,action,target,metadata_json,created_at FROM admin_audit_log ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.AuditEntry, 0, limit)
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.ActorUserID, &e.Action, &e.Target, &e.MetadataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed: unique")
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
