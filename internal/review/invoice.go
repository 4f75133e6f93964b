package review

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"gainfair/internal/catalog"
	"gainfair/internal/models"
	"gainfair/internal/notify"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// Invoice is the confirmation email for one approved registration.
type Invoice struct {
	Number  string
	Issued  time.Time
	Subject string
	Message notify.Message
}

func InvoiceNumber(registrationID string, at time.Time) string {
	short := registrationID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("INV-%d-%s", at.UnixMilli(), short)
}

// BuildInvoice renders the confirmation for r. The body is written as
// markdown and converted to HTML; the markdown doubles as the text part.
func BuildInvoice(cat *catalog.Catalog, r models.Registration, at time.Time, replyTo string) (Invoice, error) {
	number := InvoiceNumber(r.ID, at)
	ev := cat.Event
	productLabel := r.ProductID
	if p, ok := cat.Product(r.ProductID); ok {
		productLabel = p.Label
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# Invoice %s\n\n", esc(number))
	fmt.Fprintf(&md, "Dear %s,\n\n", esc(r.Name))
	fmt.Fprintf(&md, "Your registration for %s has been confirmed! Below are your invoice details.\n\n", esc(ev.Name))
	fmt.Fprintf(&md, "Issued: %s\n\n", at.Format("January 2, 2006"))

	md.WriteString("## Event Details\n\n")
	table(&md, [][2]string{
		{"Event", ev.Name},
		{"Date", ev.Date},
		{"Venue", ev.Venue},
	})

	md.WriteString("## Registration Details\n\n")
	rows := [][2]string{
		{"Name", r.Name},
		{"Email", r.Email},
		{"Phone", r.Phone},
		{"Country", r.Country},
	}
	if r.Organization != nil && *r.Organization != "" {
		rows = append(rows, [2]string{"Organization", *r.Organization})
	}
	rows = append(rows,
		[2]string{"Registration Type", productLabel},
		[2]string{"Attendee Type", string(r.AttendeeType)},
	)
	table(&md, rows)

	md.WriteString("## Payment Details\n\n")
	amount := "FREE"
	if r.Amount.Positive() {
		amount = fmt.Sprintf("$%s %s", r.Amount, r.Currency)
	}
	rows = [][2]string{
		{"Amount", amount},
		{"Payment Status", string(r.PaymentStatus)},
	}
	if r.PayPalOrderID != nil {
		rows = append(rows, [2]string{"PayPal Order ID", *r.PayPalOrderID})
	}
	for _, id := range r.AddOns {
		if a, ok := cat.AddOn(id); ok {
			rows = append(rows, [2]string{"Add-on", fmt.Sprintf("%s ($%s)", a.Name, a.SettlementPrice)})
		} else {
			rows = append(rows, [2]string{"Add-on", id})
		}
	}
	table(&md, rows)

	fmt.Fprintf(&md, "**Registration Confirmed.** We look forward to seeing you at %s!\n\n", esc(ev.Name))
	if ev.SupportEmail != "" {
		fmt.Fprintf(&md, "For any questions, please contact us at <%s>.\n\n", ev.SupportEmail)
	}
	md.WriteString("Best regards,  \nGAIN FAIR Team\n")

	var html bytes.Buffer
	if err := markdown.Convert([]byte(md.String()), &html); err != nil {
		return Invoice{}, fmt.Errorf("render invoice: %w", err)
	}
	subject := fmt.Sprintf("%s - Registration Confirmed - Invoice %s", ev.Name, number)
	if replyTo == "" {
		replyTo = ev.SupportEmail
	}
	return Invoice{
		Number:  number,
		Issued:  at,
		Subject: subject,
		Message: notify.Message{
			To:      []string{r.Email},
			Subject: subject,
			HTML:    html.String(),
			Text:    md.String(),
			ReplyTo: replyTo,
		},
	}, nil
}

func table(md *strings.Builder, rows [][2]string) {
	md.WriteString("| | |\n|---|---|\n")
	for _, r := range rows {
		fmt.Fprintf(md, "| %s | %s |\n", esc(r[0]), esc(r[1]))
	}
	md.WriteString("\n")
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", `*`, `\*`, `_`, `\_`, `{`, `\{`, `}`, `\}`,
	`[`, `\[`, `]`, `\]`, `(`, `\(`, `)`, `\)`, `#`, `\#`, `+`, `\+`,
	`!`, `\!`, `|`, `\|`, `<`, `\<`, `>`, `\>`, `&`, `\&`, "\n", " ",
)

// esc makes visitor-supplied text inert inside markdown.
func esc(s string) string { return mdEscaper.Replace(s) }
