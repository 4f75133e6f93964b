package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gainfair/internal/catalog"
	"gainfair/internal/models"
	"gainfair/internal/notify"
	"gainfair/internal/store"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

var (
	ErrEmailNotQueued = errors.New("confirmation email could not be queued")
	// ErrAlreadyReviewed matches store.ErrConflict.
	ErrAlreadyReviewed = fmt.Errorf("registration already reviewed: %w", store.ErrConflict)
	ErrInvalidFilter   = errors.New("invalid registration filter")
)

type Store interface {
	GetRegistrationByID(ctx context.Context, id string) (models.Registration, error)
	ListRegistrations(ctx context.Context, q models.RegistrationQuery) ([]models.Registration, int, error)
	CountRegistrations(ctx context.Context) (models.RegistrationCounts, error)
	UpdateRegistration(ctx context.Context, id string, p models.RegistrationPatch) error
	InsertAudit(ctx context.Context, actorID, action, target, metadata string) error
}

type Tab string

const (
	TabAll  Tab = "all"
	TabFree Tab = "free"
	TabPaid Tab = "paid"
)

type Filter struct {
	Tab          Tab
	AttendeeType catalog.Category
	ReviewStatus models.ReviewStatus
	Q            string
	Page         int
	PageSize     int
}

type Listing struct {
	Items    []models.Registration     `json:"items"`
	Total    int                       `json:"total"`
	Page     int                       `json:"page"`
	PageSize int                       `json:"page_size"`
	Counts   models.RegistrationCounts `json:"counts"`
}

// Approval describes the confirmation queued for an approved registration.
type Approval struct {
	RegistrationID string `json:"registration_id"`
	InvoiceNumber  string `json:"invoice_number"`
}

type Service struct {
	st      Store
	cat     *catalog.Catalog
	queue   notify.Queue
	replyTo string
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(st Store, cat *catalog.Catalog, queue notify.Queue, replyTo string, log zerolog.Logger) *Service {
	return &Service{
		st:      st,
		cat:     cat,
		queue:   queue,
		replyTo: replyTo,
		log:     log.With().Str("component", "review").Logger(),
		now:     time.Now,
	}
}

func (f Filter) query() (models.RegistrationQuery, error) {
	q := models.RegistrationQuery{
		AttendeeType: f.AttendeeType,
		ReviewStatus: f.ReviewStatus,
		Q:            strings.TrimSpace(f.Q),
	}
	switch f.Tab {
	case "", TabAll:
	case TabFree:
		q.PaymentStatus = models.PaymentFree
	case TabPaid:
		q.PaymentStatus = models.PaymentPaid
	default:
		return q, fmt.Errorf("%w: tab %q", ErrInvalidFilter, f.Tab)
	}
	if f.AttendeeType != "" && !f.AttendeeType.Valid() {
		return q, fmt.Errorf("%w: attendee_type %q", ErrInvalidFilter, f.AttendeeType)
	}
	switch f.ReviewStatus {
	case "", models.ReviewPending, models.ReviewApproved, models.ReviewRejected:
	default:
		return q, fmt.Errorf("%w: review_status %q", ErrInvalidFilter, f.ReviewStatus)
	}
	return q, nil
}

func (f Filter) normalizedPage() (page, size int) {
	page, size = f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// List returns one page of registrations, newest first, with the tab counts.
func (s *Service) List(ctx context.Context, f Filter) (Listing, error) {
	q, err := f.query()
	if err != nil {
		return Listing{}, err
	}
	page, size := f.normalizedPage()
	q.Limit = size
	q.Offset = (page - 1) * size

	items, total, err := s.st.ListRegistrations(ctx, q)
	if err != nil {
		return Listing{}, fmt.Errorf("list registrations: %w", err)
	}
	counts, err := s.st.CountRegistrations(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("count registrations: %w", err)
	}
	return Listing{Items: items, Total: total, Page: page, PageSize: size, Counts: counts}, nil
}

// Approve queues the invoice email and then marks the registration
// approved. Nothing is written when the email cannot be queued.
func (s *Service) Approve(ctx context.Context, adminID, id string) (Approval, error) {
	reg, err := s.st.GetRegistrationByID(ctx, id)
	if err != nil {
		return Approval{}, err
	}
	if reg.ReviewStatus != models.ReviewPending {
		return Approval{}, ErrAlreadyReviewed
	}

	inv, err := BuildInvoice(s.cat, reg, s.now().UTC(), s.replyTo)
	if err != nil {
		return Approval{}, err
	}
	if err := s.queue.Enqueue(ctx, inv.Message); err != nil {
		s.log.Error().Err(err).Str("registration_id", id).Msg("invoice enqueue failed")
		return Approval{}, fmt.Errorf("%w: %v", ErrEmailNotQueued, err)
	}

	approved, pending := models.ReviewApproved, models.ReviewPending
	err = s.st.UpdateRegistration(ctx, id, models.RegistrationPatch{
		ReviewStatus: &approved,
		ReviewedBy:   &adminID,
		ExpectReview: &pending,
	})
	if errors.Is(err, store.ErrConflict) {
		// Another reviewer won after the invoice was queued.
		s.log.Warn().Str("registration_id", id).Str("invoice", inv.Number).Msg("registration reviewed concurrently; invoice already queued")
		return Approval{}, ErrAlreadyReviewed
	}
	if err != nil {
		s.log.Error().Err(err).Str("registration_id", id).Str("invoice", inv.Number).Msg("approve update failed after invoice queued")
		return Approval{}, fmt.Errorf("approve registration: %w", err)
	}
	s.audit(ctx, adminID, "registration.approve", id, map[string]string{"invoice": inv.Number, "email": reg.Email})
	s.log.Info().Str("registration_id", id).Str("invoice", inv.Number).Msg("registration approved")
	return Approval{RegistrationID: id, InvoiceNumber: inv.Number}, nil
}

func (s *Service) Reject(ctx context.Context, adminID, id, note string) error {
	reg, err := s.st.GetRegistrationByID(ctx, id)
	if err != nil {
		return err
	}
	if reg.ReviewStatus != models.ReviewPending {
		return ErrAlreadyReviewed
	}
	rejected, pending := models.ReviewRejected, models.ReviewPending
	patch := models.RegistrationPatch{
		ReviewStatus: &rejected,
		ReviewedBy:   &adminID,
		ExpectReview: &pending,
	}
	if note = strings.TrimSpace(note); note != "" {
		patch.ReviewNote = &note
	}
	err = s.st.UpdateRegistration(ctx, id, patch)
	if errors.Is(err, store.ErrConflict) {
		return ErrAlreadyReviewed
	}
	if err != nil {
		return fmt.Errorf("reject registration: %w", err)
	}
	s.audit(ctx, adminID, "registration.reject", id, map[string]string{"note": note})
	return nil
}

func (s *Service) audit(ctx context.Context, actorID, action, target string, meta map[string]string) {
	b, _ := json.Marshal(meta)
	if err := s.st.InsertAudit(ctx, actorID, action, target, string(b)); err != nil {
		s.log.Warn().Err(err).Str("action", action).Str("target", target).Msg("audit insert failed")
	}
}
