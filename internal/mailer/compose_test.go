package mailer

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeAlternativeParts(t *testing.T) {
	e := Envelope{
		From:    "GAIN FAIR 2025 <no-reply@greenpassgroup.com>",
		To:      []string{"Lan Pham <lan@example.com>"},
		ReplyTo: "info@greenpassgroup.com",
		Subject: "GAIN FAIR 2025 - Registration Confirmed - Invoice INV-1",
		Text:    "Thank you, Lan. Total: 256.25 USD",
		HTML:    "<p>Thank you, Lan. Total: <strong>256.25 USD</strong></p>",
	}
	raw, err := Compose(e, time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, e.Subject, subject)
	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "lan@example.com", to[0].Address)
	replyTo, err := mr.Header.AddressList("Reply-To")
	require.NoError(t, err)
	assert.Equal(t, "info@greenpassgroup.com", replyTo[0].Address)
	id, err := mr.Header.MessageID()
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	bodies := map[string]string{}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		h, ok := p.Header.(*mail.InlineHeader)
		require.True(t, ok)
		ct, _, err := h.ContentType()
		require.NoError(t, err)
		b, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		bodies[ct] = string(b)
	}
	assert.Equal(t, e.Text, bodies["text/plain"])
	assert.Equal(t, e.HTML, bodies["text/html"])
	assert.True(t, strings.Contains(string(raw), "quoted-printable"))
}

func TestComposeRejectsBadAddresses(t *testing.T) {
	_, err := Compose(Envelope{From: "not an address", To: []string{"a@example.com"}}, time.Now())
	assert.Error(t, err)
	_, err = Compose(Envelope{From: "a@example.com"}, time.Now())
	assert.Error(t, err)
	_, err = Compose(Envelope{From: "a@example.com", To: []string{"@@"}}, time.Now())
	assert.Error(t, err)
}
