package registration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"gainfair/internal/catalog"
	"gainfair/internal/models"
	"gainfair/internal/payment"
	"gainfair/internal/store"
)

type State string

const (
	StateFillingForm     State = "filling_form"
	StateWritingFree     State = "writing_free"
	StateAwaitingPayment State = "awaiting_payment"
	StateWritingPaid     State = "writing_paid"
	StateSuccess         State = "success"
	StateFailed          State = "failed"
)

const (
	MsgWriteFailed      = "Registration failed. Please try again."
	MsgPaymentFailed    = "Payment failed. Please try again or contact support."
	MsgPaymentCancelled = "Payment was cancelled."
	MsgPaymentOffline   = "Online payment is unavailable right now. Please try again later."
	msgPaidWriteFailed  = "Registration failed after payment. Please contact support with order ID: "
)

// PaidWriteFailedMessage is shown when money moved but no record was
// stored.
func PaidWriteFailedMessage(orderID string) string {
	if orderID == "" {
		orderID = "N/A"
	}
	return msgPaidWriteFailed + orderID
}

// Store is the part of the registration store a flow writes to.
type Store interface {
	CreateRegistration(ctx context.Context, r models.Registration) (models.Registration, error)
	GetRegistrationByOrderID(ctx context.Context, orderID string) (models.Registration, error)
}

// Payments mounts pay buttons; *payment.Widget implements it.
type Payments interface {
	Mount(ctx context.Context, amount catalog.Money, currency string, h payment.Handlers) (*payment.Button, error)
}

type ButtonView struct {
	OrderID  string        `json:"order_id"`
	SDKURL   string        `json:"sdk_url"`
	Amount   catalog.Money `json:"amount"`
	Currency string        `json:"currency"`
}

// View is a snapshot of a flow for rendering.
type View struct {
	ID             string               `json:"id"`
	State          State                `json:"state"`
	Form           Form                 `json:"form"`
	Errors         FieldErrors          `json:"errors,omitempty"`
	Message        string               `json:"message,omitempty"`
	Quote          *catalog.Quote       `json:"quote,omitempty"`
	Button         *ButtonView          `json:"button,omitempty"`
	Registration   *models.Registration `json:"registration,omitempty"`
	SupportOrderID string               `json:"support_order_id,omitempty"`
}

// Flow is one visitor's registration attempt. Transitions are serialized
// by mu. Button callbacks take mu themselves, so no button method is
// called with mu held except Teardown.
type Flow struct {
	ID string

	cat      *catalog.Catalog
	store    Store
	payments Payments
	log      zerolog.Logger
	now      func() time.Time

	mu             sync.Mutex
	state          State
	form           Form
	errs           FieldErrors
	message        string
	quote          *catalog.Quote
	button         *payment.Button
	gen            int
	reg            *models.Registration
	supportOrderID string
	settled        map[string]bool
	paidWritten    bool
	touched        time.Time
}

func NewFlow(id string, cat *catalog.Catalog, st Store, payments Payments, log zerolog.Logger) *Flow {
	now := func() time.Time { return time.Now().UTC() }
	return &Flow{
		ID:       id,
		cat:      cat,
		store:    st,
		payments: payments,
		log:      log.With().Str("attempt_id", id).Logger(),
		now:      now,
		state:    StateFillingForm,
		errs:     FieldErrors{},
		settled:  map[string]bool{},
		touched:  now(),
	}
}

// Submit validates f and either writes a free registration or mounts a
// pay button for the quoted total.
func (f *Flow) Submit(ctx context.Context, form Form) View {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = f.now()
	if f.state != StateFillingForm && f.state != StateAwaitingPayment {
		return f.viewLocked()
	}

	form = form.Normalize()
	f.form = form
	f.message = ""
	f.errs = ValidateSelection(ctx, f.cat, form)
	if len(f.errs) > 0 {
		f.dropButtonLocked()
		f.quote = nil
		f.state = StateFillingForm
		return f.viewLocked()
	}
	q, err := f.cat.Quote(form.ProductID, form.AddOns)
	if err != nil {
		// ValidateSelection already vetted the ids.
		f.errs["registration_product_id"] = MsgSelectProduct
		f.state = StateFillingForm
		return f.viewLocked()
	}
	f.quote = &q

	if !q.PaymentRequired() {
		f.dropButtonLocked()
		f.writeFreeLocked(ctx, q)
		return f.viewLocked()
	}

	if f.state == StateAwaitingPayment && f.button != nil &&
		f.button.Amount == q.Total && f.button.Currency == q.Currency {
		return f.viewLocked()
	}
	f.dropButtonLocked()
	f.state = StateAwaitingPayment
	f.mountLocked(ctx, q)
	return f.viewLocked()
}

func (f *Flow) writeFreeLocked(ctx context.Context, q catalog.Quote) {
	f.state = StateWritingFree
	rec := f.recordLocked(q)
	rec.PaymentStatus = models.PaymentFree
	saved, err := f.store.CreateRegistration(ctx, rec)
	if err != nil {
		f.log.Error().Err(err).Str("product", q.Product.ID).Msg("free registration write failed")
		f.state = StateFillingForm
		f.message = MsgWriteFailed
		return
	}
	f.succeedLocked(saved)
}

// mountLocked asks the widget for a button. Callbacks fired while Mount is
// still running are ignored; its error return covers them.
func (f *Flow) mountLocked(ctx context.Context, q catalog.Quote) {
	f.gen++
	gen := f.gen
	var armed atomic.Bool
	h := payment.Handlers{
		OnApproved: func(ctx context.Context, c payment.Confirmation) {
			if armed.Load() {
				f.approve(ctx, gen, c)
			}
		},
		OnError: func(err error) {
			if armed.Load() {
				f.paymentFailed(gen, err)
			}
		},
		OnCancelled: func() {
			if armed.Load() {
				f.cancelled(gen)
			}
		},
	}
	b, err := f.payments.Mount(ctx, q.Total, q.Currency, h)
	if err != nil {
		f.log.Warn().Err(err).Str("amount", q.Total.String()).Msg("pay button unavailable")
		f.message = paymentMessage(err)
		return
	}
	f.button = b
	armed.Store(true)
}

func (f *Flow) dropButtonLocked() {
	if f.button != nil {
		f.button.Teardown()
		f.button = nil
	}
	f.gen++
}

// Capture asks the processor to capture the mounted order. The outcome
// arrives through the button callbacks before Capture returns.
func (f *Flow) Capture(ctx context.Context) View {
	b := f.activeButton()
	if b != nil {
		b.Capture(ctx)
	}
	return f.View()
}

// Confirm handles a browser-side capture payload for the mounted order.
func (f *Flow) Confirm(ctx context.Context, raw []byte) View {
	b := f.activeButton()
	if b != nil {
		b.Confirm(ctx, raw)
	}
	return f.View()
}

// Fail reports a processor error seen by the browser.
func (f *Flow) Fail(reason string) View {
	if b := f.activeButton(); b != nil {
		b.Fail(reason)
	}
	return f.View()
}

// Cancel abandons the payment step and returns to the form.
func (f *Flow) Cancel() View {
	if b := f.activeButton(); b != nil {
		b.Cancel()
		return f.View()
	}
	f.mu.Lock()
	f.cancelLocked()
	f.mu.Unlock()
	return f.View()
}

func (f *Flow) activeButton() *payment.Button {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = f.now()
	if f.state != StateAwaitingPayment {
		return nil
	}
	return f.button
}

// Approve records a paid registration for c. It writes at most once per
// order id and at most once per flow. A confirmation naming an order
// other than the mounted button's is ignored; one without an order id is
// accepted so the support message can still say N/A.
func (f *Flow) Approve(ctx context.Context, c payment.Confirmation) View {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.button == nil {
		return f.viewLocked()
	}
	if c.OrderID != "" && c.OrderID != f.button.OrderID {
		f.log.Warn().Str("order_id", c.OrderID).Str("mounted", f.button.OrderID).Msg("approval for an order this attempt did not mount")
		return f.viewLocked()
	}
	f.approveLocked(ctx, c)
	return f.viewLocked()
}

func (f *Flow) approve(ctx context.Context, gen int, c payment.Confirmation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return
	}
	f.approveLocked(ctx, c)
}

func (f *Flow) approveLocked(ctx context.Context, c payment.Confirmation) {
	f.touched = f.now()
	if f.paidWritten || (c.OrderID != "" && f.settled[c.OrderID]) {
		return
	}
	if f.state != StateAwaitingPayment || f.quote == nil {
		return
	}
	f.paidWritten = true
	if c.OrderID != "" {
		f.settled[c.OrderID] = true
	}
	f.dropButtonLocked()
	f.state = StateWritingPaid

	rec := f.recordLocked(*f.quote)
	provider := models.ProviderPayPal
	rec.PaymentProvider = &provider
	rec.PaymentStatus = models.PaymentPaid
	rec.PayPalOrderID = optional(c.OrderID)
	rec.PayPalCaptureID = optional(c.CaptureID)
	rec.PayerEmail = optional(c.PayerEmail)
	rec.PayerName = optional(c.PayerName)

	log := f.log.With().Str("order_id", c.OrderID).Logger()
	saved, err := f.store.CreateRegistration(ctx, rec)
	if errors.Is(err, store.ErrConflict) && c.OrderID != "" {
		// Another attempt already recorded this order.
		saved, err = f.store.GetRegistrationByOrderID(ctx, c.OrderID)
	}
	if err != nil {
		log.Error().Err(err).Str("amount", rec.Amount.String()).Msg("paid registration write failed")
		f.state = StateFailed
		f.supportOrderID = c.OrderID
		f.message = PaidWriteFailedMessage(c.OrderID)
		return
	}
	log.Info().Str("registration_id", saved.ID).Msg("paid registration stored")
	f.succeedLocked(saved)
}

// PaymentFailed keeps the flow waiting for payment and tells the visitor.
func (f *Flow) PaymentFailed(err error) View {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentFailedLocked(err)
	return f.viewLocked()
}

func (f *Flow) paymentFailed(gen int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return
	}
	f.paymentFailedLocked(err)
}

func (f *Flow) paymentFailedLocked(err error) {
	f.touched = f.now()
	if f.state != StateAwaitingPayment {
		return
	}
	f.log.Warn().Err(err).Msg("payment error")
	f.message = paymentMessage(err)
}

func (f *Flow) cancelled(gen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return
	}
	f.cancelLocked()
}

func (f *Flow) cancelLocked() {
	f.touched = f.now()
	if f.state != StateAwaitingPayment {
		return
	}
	f.dropButtonLocked()
	f.state = StateFillingForm
	f.message = MsgPaymentCancelled
}

func (f *Flow) succeedLocked(saved models.Registration) {
	f.state = StateSuccess
	f.reg = &saved
	f.message = ""
	f.errs = FieldErrors{}
	f.form = Form{ProductID: f.form.ProductID}
}

func (f *Flow) recordLocked(q catalog.Quote) models.Registration {
	return models.Registration{
		Name:            f.form.Name,
		Email:           f.form.Email,
		Phone:           f.form.Phone,
		Country:         f.form.Country,
		Organization:    optional(f.form.Organization),
		ProductID:       q.Product.ID,
		AttendeeType:    q.Product.Category,
		AddOns:          q.AddOnIDs(),
		Amount:          q.Total,
		Currency:        q.Currency,
		PaymentRequired: q.PaymentRequired(),
		ReviewStatus:    models.ReviewPending,
	}
}

func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

func (f *Flow) viewLocked() View {
	v := View{
		ID:             f.ID,
		State:          f.state,
		Form:           f.form,
		Message:        f.message,
		Registration:   f.reg,
		SupportOrderID: f.supportOrderID,
	}
	v.Form.AddOns = append([]string(nil), f.form.AddOns...)
	if len(f.errs) > 0 {
		v.Errors = make(FieldErrors, len(f.errs))
		for k, msg := range f.errs {
			v.Errors[k] = msg
		}
	}
	if f.quote != nil {
		q := *f.quote
		v.Quote = &q
	}
	if f.button != nil {
		v.Button = &ButtonView{OrderID: f.button.OrderID, SDKURL: f.button.SDKURL, Amount: f.button.Amount, Currency: f.button.Currency}
	}
	return v
}

// idleSince reports when the flow last changed and whether it may be
// dropped. Flows in the middle of a write are never dropped.
func (f *Flow) idleSince() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case StateWritingFree, StateWritingPaid:
		return f.touched, false
	}
	return f.touched, true
}

func paymentMessage(err error) string {
	if errors.Is(err, payment.ErrSDKUnavailable) {
		return MsgPaymentOffline
	}
	return MsgPaymentFailed
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
