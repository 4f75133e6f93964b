package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gainfair/internal/catalog"
	"gainfair/internal/models"
)

const registrationColumns = `id,name,email,phone,country,organization,registration_product_id,attendee_type,add_ons,amount_cents,currency,
payment_required,payment_provider,payment_status,paypal_order_id,paypal_capture_id,payer_email,payer_name,
review_status,reviewed_at,reviewed_by,review_note,created_at`

// CreateRegistration stores a new registration. The id and created_at
// are assigned here; a repeated order id yields ErrConflict.
func (s *Store) CreateRegistration(ctx context.Context, r models.Registration) (models.Registration, error) {
	r.ID = uuid.NewString()
	r.CreatedAt = s.now()
	if r.ReviewStatus == "" {
		r.ReviewStatus = models.ReviewPending
	}
	if r.AddOns == nil {
		r.AddOns = []string{}
	}
	addOns, err := json.Marshal(r.AddOns)
	if err != nil {
		return models.Registration{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO registrations(`+registrationColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Name, r.Email, r.Phone, r.Country, nullString(r.Organization), r.ProductID, string(r.AttendeeType), string(addOns),
		int64(r.Amount), r.Currency, boolToInt(r.PaymentRequired), nullString(r.PaymentProvider), string(r.PaymentStatus),
		nullString(r.PayPalOrderID), nullString(r.PayPalCaptureID), nullString(r.PayerEmail), nullString(r.PayerName),
		string(r.ReviewStatus), nil, nil, nil, r.CreatedAt,
	)
	if isUniqueErr(err) {
		return models.Registration{}, ErrConflict
	}
	if err != nil {
		return models.Registration{}, err
	}
	return r, nil
}

func (s *Store) GetRegistrationByID(ctx context.Context, id string) (models.Registration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id=?`, id)
	return scanRegistration(row)
}

func (s *Store) GetRegistrationByOrderID(ctx context.Context, orderID string) (models.Registration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE paypal_order_id=?`, orderID)
	return scanRegistration(row)
}

func registrationFilter(q models.RegistrationQuery) (string, []any) {
	var where []string
	var args []any
	if q.PaymentStatus != "" {
		where = append(where, "payment_status=?")
		args = append(args, string(q.PaymentStatus))
	}
	if q.AttendeeType != "" {
		where = append(where, "attendee_type=?")
		args = append(args, string(q.AttendeeType))
	}
	if q.ReviewStatus != "" {
		where = append(where, "review_status=?")
		args = append(args, string(q.ReviewStatus))
	}
	if term := strings.ToLower(strings.TrimSpace(q.Q)); term != "" {
		like := "%" + escapeLike(term) + "%"
		where = append(where, `(lower(name) LIKE ? ESCAPE '\' OR lower(email) LIKE ? ESCAPE '\' OR lower(COALESCE(organization,'')) LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

// ListRegistrations returns matching rows newest first together with the
// total match count. Limit <= 0 returns every row.
func (s *Store) ListRegistrations(ctx context.Context, q models.RegistrationQuery) ([]models.Registration, int, error) {
	where, args := registrationFilter(q)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM registrations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + registrationColumns + ` FROM registrations` + where + ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, q.Limit, q.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]models.Registration, 0)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (s *Store) CountRegistrations(ctx context.Context) (models.RegistrationCounts, error) {
	var c models.RegistrationCounts
	err := s.db.QueryRowContext(ctx, `SELECT
  COALESCE(SUM(CASE WHEN payment_status='free' THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN payment_status='paid' THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN review_status='pending' THEN 1 ELSE 0 END),0)
FROM registrations`).Scan(&c.Free, &c.Paid, &c.Pending)
	return c, err
}

// UpdateRegistration applies the non-nil fields of p. With ExpectReview
// set, a row in any other review state is left alone and ErrConflict is
// returned.
func (s *Store) UpdateRegistration(ctx context.Context, id string, p models.RegistrationPatch) error {
	var sets []string
	var args []any
	if p.ReviewStatus != nil {
		sets = append(sets, "review_status=?", "reviewed_at=?")
		args = append(args, string(*p.ReviewStatus), s.now())
	}
	if p.ReviewedBy != nil {
		sets = append(sets, "reviewed_by=?")
		args = append(args, *p.ReviewedBy)
	}
	if p.ReviewNote != nil {
		sets = append(sets, "review_note=?")
		args = append(args, *p.ReviewNote)
	}
	if p.PaymentStatus != nil {
		sets = append(sets, "payment_status=?")
		args = append(args, string(*p.PaymentStatus))
	}
	if p.PayPalCaptureID != nil {
		sets = append(sets, "paypal_capture_id=?")
		args = append(args, *p.PayPalCaptureID)
	}
	if p.PayerEmail != nil {
		sets = append(sets, "payer_email=?")
		args = append(args, *p.PayerEmail)
	}
	if p.PayerName != nil {
		sets = append(sets, "payer_name=?")
		args = append(args, *p.PayerName)
	}
	if len(sets) == 0 {
		return fmt.Errorf("empty registration update")
	}
	query := `UPDATE registrations SET ` + strings.Join(sets, ",") + ` WHERE id=?`
	args = append(args, id)
	if p.ExpectReview != nil {
		query += ` AND review_status=?`
		args = append(args, string(*p.ExpectReview))
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetRegistrationByID(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (models.Registration, error) {
	var r models.Registration
	var org, provider, orderID, captureID, payerEmail, payerName, reviewedBy, reviewNote sql.NullString
	var reviewedAt sql.NullTime
	var attendee, addOns, payStatus, review string
	var amount int64
	var payRequired int
	err := row.Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &r.Country, &org, &r.ProductID, &attendee, &addOns, &amount, &r.Currency,
		&payRequired, &provider, &payStatus, &orderID, &captureID, &payerEmail, &payerName,
		&review, &reviewedAt, &reviewedBy, &reviewNote, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return models.Registration{}, ErrNotFound
	}
	if err != nil {
		return models.Registration{}, err
	}
	r.Organization = stringPtr(org)
	r.AttendeeType = catalog.Category(attendee)
	if err := json.Unmarshal([]byte(addOns), &r.AddOns); err != nil {
		return models.Registration{}, fmt.Errorf("registration %s add_ons: %w", r.ID, err)
	}
	r.Amount = catalog.Money(amount)
	r.PaymentRequired = payRequired == 1
	r.PaymentProvider = stringPtr(provider)
	r.PaymentStatus = models.PaymentStatus(payStatus)
	r.PayPalOrderID = stringPtr(orderID)
	r.PayPalCaptureID = stringPtr(captureID)
	r.PayerEmail = stringPtr(payerEmail)
	r.PayerName = stringPtr(payerName)
	r.ReviewStatus = models.ReviewStatus(review)
	r.ReviewedAt = timePtr(reviewedAt)
	r.ReviewedBy = stringPtr(reviewedBy)
	r.ReviewNote = stringPtr(reviewNote)
	return r, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
