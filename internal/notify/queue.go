package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"gainfair/internal/models"
)

var ErrInvalidMessage = errors.New("invalid mail message")

// Message is a queued email. Delivery happens later and elsewhere.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return errors.New("no recipients")
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return errors.New("empty recipient")
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("empty subject")
	}
	if m.HTML == "" && m.Text == "" {
		return errors.New("empty body")
	}
	return nil
}

// Queue accepts messages for asynchronous delivery. A nil error means
// the message will eventually be delivered; it says nothing about when.
type Queue interface {
	Enqueue(ctx context.Context, m Message) error
}

// LogQueue only logs. It is meant for local development.
type LogQueue struct {
	Log zerolog.Logger
}

func (q LogQueue) Enqueue(ctx context.Context, m Message) error {
	if err := m.validate(); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	q.Log.Info().Strs("to", m.To).Str("subject", m.Subject).Msg("mail queued (log only)")
	return nil
}

type OutboxStore interface {
	InsertOutbox(ctx context.Context, m models.OutboxMessage) (models.OutboxMessage, error)
}

// OutboxQueue writes messages to the mail_outbox table; a Dispatcher
// delivers them.
type OutboxQueue struct {
	st OutboxStore
}

func NewOutboxQueue(st OutboxStore) *OutboxQueue { return &OutboxQueue{st: st} }

func (q *OutboxQueue) Enqueue(ctx context.Context, m Message) error {
	if err := m.validate(); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	_, err := q.st.InsertOutbox(ctx, models.OutboxMessage{
		To:      m.To,
		Subject: m.Subject,
		HTML:    m.HTML,
		Text:    m.Text,
		ReplyTo: m.ReplyTo,
	})
	return err
}
