package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"gainfair/internal/config"
)

// Archiver keeps a copy of every delivered message.
type Archiver interface {
	Archive(ctx context.Context, raw []byte, date time.Time) error
}

type NoopArchiver struct{}

func (NoopArchiver) Archive(ctx context.Context, raw []byte, date time.Time) error { return nil }

// IMAPArchiver appends delivered mail to a mailbox of the sending
// account, so staff see confirmations in their regular client.
type IMAPArchiver struct {
	cfg config.Config
}

func NewArchiver(cfg config.Config) Archiver {
	if !cfg.IMAPArchiveEnabled {
		return NoopArchiver{}
	}
	return &IMAPArchiver{cfg: cfg}
}

func (a *IMAPArchiver) Archive(ctx context.Context, raw []byte, date time.Time) error {
	cli, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer cli.Logout()

	mailbox := a.cfg.IMAPMailbox
	if err := cli.Append(mailbox, []string{imap.SeenFlag}, date, bytes.NewBuffer(raw)); err != nil {
		// The first append fails on servers without the folder.
		if createErr := cli.Create(mailbox); createErr != nil {
			return fmt.Errorf("append to %s: %w", mailbox, err)
		}
		return cli.Append(mailbox, []string{imap.SeenFlag}, date, bytes.NewBuffer(raw))
	}
	return nil
}

func (a *IMAPArchiver) connect(ctx context.Context) (*imapclient.Client, error) {
	if a.cfg.IMAPPassword == "" {
		return nil, fmt.Errorf("missing IMAP credentials")
	}
	dialer := &net.Dialer{Timeout: defaultDialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	addr := net.JoinHostPort(a.cfg.IMAPHost, strconv.Itoa(a.cfg.IMAPPort))
	tlsConfig := &tls.Config{ServerName: a.cfg.IMAPHost, InsecureSkipVerify: a.cfg.IMAPInsecureSkipVerify}

	var cli *imapclient.Client
	var err error
	if a.cfg.IMAPTLS {
		cli, err = imapclient.DialWithDialerTLS(dialer, addr, tlsConfig)
	} else {
		cli, err = imapclient.DialWithDialer(dialer, addr)
		if err == nil && a.cfg.IMAPStartTLS {
			err = cli.StartTLS(tlsConfig)
		}
	}
	if err != nil {
		return nil, err
	}
	if err := cli.Login(a.cfg.IMAPUser, a.cfg.IMAPPassword); err != nil {
		_ = cli.Logout()
		return nil, err
	}
	return cli, nil
}
