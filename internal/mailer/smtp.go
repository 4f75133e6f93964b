package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"gainfair/internal/config"
)

const defaultDialTimeout = 10 * time.Second

var ErrSenderRejected = errors.New("smtp sender rejected by policy")

// IsSenderPolicyError reports whether err looks like the relay refusing
// the envelope sender rather than a transport problem.
func IsSenderPolicyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"sender must match authenticated user",
		"sender address rejected",
		"not owned by user",
		"sender login mismatch",
		"not authorized to send as",
		"must be authenticated as",
		"sender rejected",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

type sendFunc func(ctx context.Context, from string, rcpt []string, raw []byte) error

// SMTPSender relays composed messages through the configured submission
// server.
type SMTPSender struct {
	cfg  config.Config
	send sendFunc
}

func NewSMTPSender(cfg config.Config) *SMTPSender {
	s := &SMTPSender{cfg: cfg}
	s.send = s.sendSMTP
	return s
}

// Send delivers raw to rcpt. When the relay rejects the envelope sender
// and an SMTP login is configured, it retries once with the login as the
// envelope sender.
func (s *SMTPSender) Send(ctx context.Context, from string, rcpt []string, raw []byte) error {
	envelopeFrom := from
	if a, err := mail.ParseAddress(from); err == nil {
		envelopeFrom = a.Address
	}
	err := s.send(ctx, envelopeFrom, rcpt, raw)
	if err == nil || !IsSenderPolicyError(err) {
		return err
	}
	login := strings.TrimSpace(s.cfg.SMTPUser)
	if login == "" || strings.EqualFold(login, envelopeFrom) {
		return fmt.Errorf("%w: %v", ErrSenderRejected, err)
	}
	if retryErr := s.send(ctx, login, rcpt, raw); retryErr != nil {
		if IsSenderPolicyError(retryErr) {
			return fmt.Errorf("%w: %v", ErrSenderRejected, retryErr)
		}
		return retryErr
	}
	return nil
}

func (s *SMTPSender) sendSMTP(ctx context.Context, from string, rcpt []string, raw []byte) error {
	addr := net.JoinHostPort(s.cfg.SMTPHost, strconv.Itoa(s.cfg.SMTPPort))
	tlsConfig := &tls.Config{ServerName: s.cfg.SMTPHost, InsecureSkipVerify: s.cfg.SMTPInsecureSkipVerify}

	dialer := &net.Dialer{Timeout: defaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if s.cfg.SMTPTLS {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, s.cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if s.cfg.SMTPStartTLS && !s.cfg.SMTPTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}
	if s.cfg.SMTPUser != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)); err != nil {
				return err
			}
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, r := range rcpt {
		if err := client.Rcpt(strings.TrimSpace(r)); err != nil {
			return err
		}
	}
	wc, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(raw); err != nil {
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return client.Quit()
}
