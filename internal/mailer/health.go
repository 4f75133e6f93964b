package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"gainfair/internal/config"
)

// ProbeSMTP checks that the relay answers and offers STARTTLS when it is
// required.
func ProbeSMTP(ctx context.Context, cfg config.Config) error {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))
	tlsCfg := &tls.Config{ServerName: cfg.SMTPHost, InsecureSkipVerify: cfg.SMTPInsecureSkipVerify}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if cfg.SMTPTLS {
		conn = tls.Client(conn, tlsCfg)
	}
	client, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if cfg.SMTPStartTLS && !cfg.SMTPTLS {
		ok, _ := client.Extension("STARTTLS")
		if !ok {
			return fmt.Errorf("SMTP STARTTLS extension not available")
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			return err
		}
	}
	return client.Quit()
}

// ProbeIMAP logs in to the archive account.
func ProbeIMAP(ctx context.Context, cfg config.Config) error {
	cli, err := (&IMAPArchiver{cfg: cfg}).connect(ctx)
	if err != nil {
		return err
	}
	return cli.Logout()
}
