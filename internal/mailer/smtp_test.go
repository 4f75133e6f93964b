package mailer

import (
	"context"
	"errors"
	"testing"

	"gainfair/internal/config"
)

func TestIsSenderPolicyError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sender_address_rejected", err: errors.New("550 5.7.1 Sender address rejected: not owned by user"), want: true},
		{name: "sender_match_error", err: errors.New("sender must match authenticated user"), want: true},
		{name: "transport_error", err: errors.New("dial tcp 127.0.0.1:587: connect: connection refused"), want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsSenderPolicyError(tc.err); got != tc.want {
				t.Fatalf("IsSenderPolicyError() = %v, want %v", got, tc.want)
			}
		})
	}
}

func newStubSender(login string, fn sendFunc) *SMTPSender {
	return &SMTPSender{cfg: config.Config{SMTPUser: login}, send: fn}
}

func TestSendRetriesWithLoginIdentity(t *testing.T) {
	var attempts []string
	s := newStubSender("mailer@greenpassgroup.com", func(ctx context.Context, from string, rcpt []string, raw []byte) error {
		attempts = append(attempts, from)
		if len(attempts) == 1 {
			return errors.New("550 5.7.1 Sender address rejected: not owned by user")
		}
		return nil
	})
	err := s.Send(context.Background(), "GAIN FAIR 2025 <no-reply@greenpassgroup.com>", []string{"lan@example.com"}, []byte("raw"))
	if err != nil {
		t.Fatalf("expected retry to succeed, got: %v", err)
	}
	if len(attempts) != 2 || attempts[0] != "no-reply@greenpassgroup.com" || attempts[1] != "mailer@greenpassgroup.com" {
		t.Fatalf("unexpected envelope senders: %#v", attempts)
	}
}

func TestSendReturnsTypedErrorWhenRejected(t *testing.T) {
	var attempts int
	s := newStubSender("mailer@greenpassgroup.com", func(ctx context.Context, from string, rcpt []string, raw []byte) error {
		attempts++
		return errors.New("sender must match authenticated user")
	})
	err := s.Send(context.Background(), "no-reply@greenpassgroup.com", []string{"lan@example.com"}, []byte("raw"))
	if !errors.Is(err, ErrSenderRejected) {
		t.Fatalf("expected ErrSenderRejected, got: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestSendNoRetryOnTransportError(t *testing.T) {
	var attempts int
	s := newStubSender("mailer@greenpassgroup.com", func(ctx context.Context, from string, rcpt []string, raw []byte) error {
		attempts++
		return errors.New("dial tcp 127.0.0.1:587: connect: connection refused")
	})
	err := s.Send(context.Background(), "no-reply@greenpassgroup.com", []string{"lan@example.com"}, []byte("raw"))
	if err == nil || errors.Is(err, ErrSenderRejected) {
		t.Fatalf("expected plain transport error, got: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestSendNoRetryWithoutLogin(t *testing.T) {
	var attempts int
	s := newStubSender("", func(ctx context.Context, from string, rcpt []string, raw []byte) error {
		attempts++
		return errors.New("sender address rejected")
	})
	err := s.Send(context.Background(), "no-reply@greenpassgroup.com", []string{"lan@example.com"}, []byte("raw"))
	if !errors.Is(err, ErrSenderRejected) {
		t.Fatalf("expected ErrSenderRejected, got: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}
