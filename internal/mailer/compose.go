package mailer

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Envelope is one outgoing message before MIME encoding.
type Envelope struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Recipients returns the bare addresses of To.
func (e Envelope) Recipients() ([]string, error) {
	out := make([]string, 0, len(e.To))
	for _, raw := range e.To {
		a, err := mail.ParseAddress(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("recipient %q: %w", raw, err)
		}
		out = append(out, a.Address)
	}
	return out, nil
}

// Compose renders e as an RFC 5322 message with text and HTML
// alternatives, both quoted-printable.
func Compose(e Envelope, date time.Time) ([]byte, error) {
	from, err := mail.ParseAddress(e.From)
	if err != nil {
		return nil, fmt.Errorf("from %q: %w", e.From, err)
	}
	if len(e.To) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}
	to := make([]*mail.Address, 0, len(e.To))
	for _, raw := range e.To {
		a, err := mail.ParseAddress(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("recipient %q: %w", raw, err)
		}
		to = append(to, a)
	}

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", to)
	if strings.TrimSpace(e.ReplyTo) != "" {
		rt, err := mail.ParseAddress(e.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("reply-to %q: %w", e.ReplyTo, err)
		}
		h.SetAddressList("Reply-To", []*mail.Address{rt})
	}
	h.SetSubject(e.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	alt, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	parts := []struct{ mediaType, body string }{
		{"text/plain", e.Text},
		{"text/html", e.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		var ph mail.InlineHeader
		ph.SetContentType(p.mediaType, map[string]string{"charset": "utf-8"})
		ph.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := alt.CreatePart(ph)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w, p.body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	if err := alt.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
