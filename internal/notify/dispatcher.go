package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gainfair/internal/mailer"
	"gainfair/internal/models"
)

// Deliverer sends one composed message; *mailer.Transport implements it.
type Deliverer interface {
	Deliver(ctx context.Context, e mailer.Envelope) error
}

type DispatchStore interface {
	DueOutbox(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, id string) error
	MarkOutboxAttemptFailed(ctx context.Context, id, reason string, retryAt time.Time, maxAttempts int) error
}

// Dispatcher drains the outbox table.
type Dispatcher struct {
	st          DispatchStore
	out         Deliverer
	from        string
	interval    time.Duration
	maxAttempts int
	batch       int
	log         zerolog.Logger
	now         func() time.Time
}

func NewDispatcher(st DispatchStore, out Deliverer, from string, interval time.Duration, maxAttempts int, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		st:          st,
		out:         out,
		from:        from,
		interval:    interval,
		maxAttempts: maxAttempts,
		batch:       20,
		log:         log.With().Str("component", "outbox").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.Error().Err(err).Msg("outbox poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RunOnce delivers every due message and returns how many went out.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	due, err := d.st.DueOutbox(ctx, d.now(), d.batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, m := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		log := d.log.With().Str("message_id", m.ID).Int("attempt", m.Attempts+1).Logger()
		sendCtx, cancel := context.WithTimeout(ctx, time.Minute)
		err := d.out.Deliver(sendCtx, Envelope(d.from, Message{To: m.To, Subject: m.Subject, HTML: m.HTML, Text: m.Text, ReplyTo: m.ReplyTo}))
		cancel()
		if err != nil {
			retryAt := d.now().Add(Backoff(m.Attempts + 1))
			log.Warn().Err(err).Time("retry_at", retryAt).Msg("delivery failed")
			if markErr := d.st.MarkOutboxAttemptFailed(ctx, m.ID, err.Error(), retryAt, d.maxAttempts); markErr != nil {
				return sent, markErr
			}
			continue
		}
		if err := d.st.MarkOutboxSent(ctx, m.ID); err != nil {
			return sent, err
		}
		log.Info().Str("subject", m.Subject).Msg("delivered")
		sent++
	}
	return sent, nil
}

// Backoff is the wait before attempt n+1: 30s doubling, capped at an hour.
func Backoff(attempt int) time.Duration {
	d := 30 * time.Second
	for i := 1; i < attempt && d < time.Hour; i++ {
		d *= 2
	}
	if d > time.Hour {
		d = time.Hour
	}
	return d
}

// Envelope addresses m from the configured sender.
func Envelope(from string, m Message) mailer.Envelope {
	return mailer.Envelope{
		From:    from,
		To:      m.To,
		ReplyTo: m.ReplyTo,
		Subject: m.Subject,
		HTML:    m.HTML,
		Text:    m.Text,
	}
}
