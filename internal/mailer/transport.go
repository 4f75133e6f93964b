package mailer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sender relays an encoded message.
type Sender interface {
	Send(ctx context.Context, from string, rcpt []string, raw []byte) error
}

// Transport composes, relays and archives outgoing mail.
type Transport struct {
	sender   Sender
	archiver Archiver
	log      zerolog.Logger
	now      func() time.Time
}

func NewTransport(sender Sender, archiver Archiver, log zerolog.Logger) *Transport {
	if archiver == nil {
		archiver = NoopArchiver{}
	}
	return &Transport{
		sender:   sender,
		archiver: archiver,
		log:      log.With().Str("component", "mailer").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Deliver sends e. An archive failure is logged; the message already
// left, so it does not fail the delivery.
func (t *Transport) Deliver(ctx context.Context, e Envelope) error {
	date := t.now()
	raw, err := Compose(e, date)
	if err != nil {
		return err
	}
	rcpt, err := e.Recipients()
	if err != nil {
		return err
	}
	if err := t.sender.Send(ctx, e.From, rcpt, raw); err != nil {
		return err
	}
	if err := t.archiver.Archive(ctx, raw, date); err != nil {
		t.log.Warn().Err(err).Str("subject", e.Subject).Msg("archive copy failed")
	}
	return nil
}
