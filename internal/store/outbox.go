package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"gainfair/internal/models"
)

func (s *Store) InsertOutbox(ctx context.Context, m models.OutboxMessage) (models.OutboxMessage, error) {
	m.ID = uuid.NewString()
	m.State = models.OutboxPending
	m.CreatedAt = s.now()
	m.NextAttemptAt = m.CreatedAt
	to, err := json.Marshal(m.To)
	if err != nil {
		return models.OutboxMessage{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mail_outbox(id,recipients,subject,html_body,text_body,reply_to,state,attempts,created_at,next_attempt_at) VALUES(?,?,?,?,?,?,?,0,?,?)`,
		m.ID, string(to), m.Subject, m.HTML, m.Text, m.ReplyTo, string(m.State), m.CreatedAt, m.NextAttemptAt,
	)
	if err != nil {
		return models.OutboxMessage{}, err
	}
	return m, nil
}

// DueOutbox returns pending messages whose next attempt time has passed.
func (s *Store) DueOutbox(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,recipients,subject,html_body,text_body,reply_to,state,attempts,last_error,created_at,next_attempt_at,sent_at
FROM mail_outbox WHERE state='pending' AND next_attempt_at<=? ORDER BY next_attempt_at LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.OutboxMessage
	for rows.Next() {
		var m models.OutboxMessage
		var to, state string
		var lastErr sql.NullString
		var sentAt sql.NullTime
		if err := rows.Scan(&m.ID, &to, &m.Subject, &m.HTML, &m.Text, &m.ReplyTo, &state, &m.Attempts, &lastErr, &m.CreatedAt, &m.NextAttemptAt, &sentAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(to), &m.To); err != nil {
			return nil, err
		}
		m.State = models.OutboxState(state)
		m.LastError = stringPtr(lastErr)
		m.SentAt = timePtr(sentAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) MarkOutboxSent(ctx context.Context, id string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE mail_outbox SET state='sent', attempts=attempts+1, sent_at=?, last_error=NULL WHERE id=?`, now, id)
	return err
}

// MarkOutboxAttemptFailed records a failed delivery. Once maxAttempts is
// reached the message is parked in state failed.
func (s *Store) MarkOutboxAttemptFailed(ctx context.Context, id, reason string, retryAt time.Time, maxAttempts int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mail_outbox SET attempts=attempts+1, last_error=?, next_attempt_at=?,
  state=CASE WHEN attempts+1>=? THEN 'failed' ELSE 'pending' END
WHERE id=?`,
		reason, retryAt, maxAttempts, id)
	return err
}

func (s *Store) OutboxStats(ctx context.Context) (map[models.OutboxState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM mail_outbox GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[models.OutboxState]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[models.OutboxState(st)] = n
	}
	return out, rows.Err()
}
