package models

import (
	"time"

	"gainfair/internal/catalog"
)

type PaymentStatus string

const (
	PaymentFree    PaymentStatus = "free"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

const ProviderPayPal = "paypal"

type Registration struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Email           string           `json:"email"`
	Phone           string           `json:"phone"`
	Country         string           `json:"country"`
	Organization    *string          `json:"organization,omitempty"`
	ProductID       string           `json:"registration_product_id"`
	AttendeeType    catalog.Category `json:"attendee_type"`
	AddOns          []string         `json:"add_ons"`
	Amount          catalog.Money    `json:"amount"`
	Currency        string           `json:"currency"`
	PaymentRequired bool             `json:"payment_required"`
	PaymentProvider *string          `json:"payment_provider,omitempty"`
	PaymentStatus   PaymentStatus    `json:"payment_status"`
	PayPalOrderID   *string          `json:"paypal_order_id,omitempty"`
	PayPalCaptureID *string          `json:"paypal_capture_id,omitempty"`
	PayerEmail      *string          `json:"payer_email,omitempty"`
	PayerName       *string          `json:"payer_name,omitempty"`
	ReviewStatus    ReviewStatus     `json:"review_status"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	ReviewedBy      *string          `json:"reviewed_by,omitempty"`
	ReviewNote      *string          `json:"review_note,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// RegistrationPatch lists the fields an update may touch. Nil fields are
// left as stored. ExpectReview makes the update conditional.
type RegistrationPatch struct {
	ReviewStatus    *ReviewStatus
	ReviewedBy      *string
	ReviewNote      *string
	PaymentStatus   *PaymentStatus
	PayPalCaptureID *string
	PayerEmail      *string
	PayerName       *string

	ExpectReview *ReviewStatus
}

type RegistrationQuery struct {
	PaymentStatus PaymentStatus
	AttendeeType  catalog.Category
	ReviewStatus  ReviewStatus
	Q             string
	Limit         int
	Offset        int
}

type RegistrationCounts struct {
	Free    int `json:"free"`
	Paid    int `json:"paid"`
	Pending int `json:"pending"`
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

type Session struct {
	ID            string
	UserID        string
	TokenHash     string
	IPHint        string
	UserAgentHash string
	ExpiresAt     time.Time
	IdleExpiresAt time.Time
	CreatedAt     time.Time
	LastSeenAt    time.Time
	RevokedAt     *time.Time
}

type AuditEntry struct {
	ID           string    `json:"id"`
	ActorUserID  string    `json:"actor_user_id"`
	Action       string    `json:"action"`
	Target       string    `json:"target"`
	MetadataJSON string    `json:"metadata_json"`
	CreatedAt    time.Time `json:"created_at"`
}

type OutboxState string

const (
	OutboxPending OutboxState = "pending"
	OutboxSent    OutboxState = "sent"
	OutboxFailed  OutboxState = "failed"
)

type OutboxMessage struct {
	ID            string
	To            []string
	Subject       string
	HTML          string
	Text          string
	ReplyTo       string
	State         OutboxState
	Attempts      int
	LastError     *string
	CreatedAt     time.Time
	NextAttemptAt time.Time
	SentAt        *time.Time
}
