package review

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"gainfair/internal/models"
)

var csvHeader = []string{
	"Name", "Email", "Phone", "Country", "Organization", "Attendee Type",
	"Registration Type", "Amount", "Currency", "Payment Status",
	"Review Status", "PayPal Order ID", "Add-ons", "Created Date",
}

// ExportCSV writes every registration matching f. Pagination is ignored.
func (s *Service) ExportCSV(ctx context.Context, f Filter, w io.Writer) error {
	q, err := f.query()
	if err != nil {
		return err
	}
	items, _, err := s.st.ListRegistrations(ctx, q)
	if err != nil {
		return fmt.Errorf("list registrations: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range items {
		if err := cw.Write(s.csvRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) csvRow(r models.Registration) []string {
	product := r.ProductID
	if p, ok := s.cat.Product(r.ProductID); ok {
		product = p.Label
	}
	return []string{
		r.Name,
		r.Email,
		r.Phone,
		r.Country,
		deref(r.Organization),
		string(r.AttendeeType),
		product,
		r.Amount.String(),
		r.Currency,
		string(r.PaymentStatus),
		string(r.ReviewStatus),
		deref(r.PayPalOrderID),
		strings.Join(r.AddOns, "; "),
		r.CreatedAt.UTC().Format("2006-01-02"),
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
