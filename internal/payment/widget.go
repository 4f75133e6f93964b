package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"gainfair/internal/catalog"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount for PayPal payment")
	ErrSDKUnavailable = errors.New("PayPal is not available right now")
	ErrPaymentFailed  = errors.New("payment failed")
	ErrNotCompleted   = errors.New("payment not completed")
	ErrOrderMismatch  = errors.New("confirmation does not match the pending order")
)

// Handlers receive the outcome of a mounted button. Nil handlers are
// skipped.
type Handlers struct {
	OnApproved  func(ctx context.Context, c Confirmation)
	OnError     func(err error)
	OnCancelled func()
}

func (h Handlers) approved(ctx context.Context, c Confirmation) {
	if h.OnApproved != nil {
		h.OnApproved(ctx, c)
	}
}

func (h Handlers) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h Handlers) cancelled() {
	if h.OnCancelled != nil {
		h.OnCancelled()
	}
}

// Widget mounts pay buttons. It owns order creation and the browser SDK
// URL the page loads.
type Widget struct {
	clientID string
	sdkBase  string
	gw       Gateway
	log      zerolog.Logger

	mu   sync.Mutex
	urls map[string]string
}

func NewWidget(clientID, sdkBase string, gw Gateway, log zerolog.Logger) *Widget {
	return &Widget{
		clientID: strings.TrimSpace(clientID),
		sdkBase:  sdkBase,
		gw:       gw,
		log:      log.With().Str("component", "payment").Logger(),
		urls:     map[string]string{},
	}
}

// Enabled reports whether buttons can be mounted at all.
func (w *Widget) Enabled() bool { return w.clientID != "" && w.gw != nil }

// SDKURL returns the script URL for currency. Repeated calls reuse the
// first result.
func (w *Widget) SDKURL(currency string) (string, error) {
	if !w.Enabled() {
		return "", fmt.Errorf("%w: missing PayPal client id", ErrSDKUnavailable)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	w.mu.Lock()
	defer w.mu.Unlock()
	if u, ok := w.urls[currency]; ok {
		return u, nil
	}
	q := url.Values{}
	q.Set("client-id", w.clientID)
	q.Set("currency", currency)
	u := w.sdkBase + "?" + q.Encode()
	w.urls[currency] = u
	return u, nil
}

// Mount creates a processor order for amount and returns the button that
// will report its outcome. A non-positive amount is rejected through
// h.OnError before anything is created.
func (w *Widget) Mount(ctx context.Context, amount catalog.Money, currency string, h Handlers) (*Button, error) {
	if !amount.Positive() {
		h.fail(ErrInvalidAmount)
		return nil, ErrInvalidAmount
	}
	sdk, err := w.SDKURL(currency)
	if err != nil {
		h.fail(err)
		return nil, err
	}
	order, err := w.gw.CreateOrder(ctx, amount, currency)
	if err != nil {
		w.log.Error().Err(err).Str("amount", amount.String()).Msg("create order failed")
		err = fmt.Errorf("%w: %w", ErrSDKUnavailable, err)
		h.fail(err)
		return nil, err
	}
	w.log.Info().Str("order_id", order.ID).Str("amount", amount.String()).Str("currency", currency).Msg("order created")
	return &Button{
		OrderID:  order.ID,
		Amount:   amount,
		Currency: currency,
		SDKURL:   sdk,
		w:        w,
		h:        h,
	}, nil
}

// Button is one mounted pay button bound to one processor order.
type Button struct {
	OrderID  string
	Amount   catalog.Money
	Currency string
	SDKURL   string

	w    *Widget
	h    Handlers
	mu   sync.Mutex
	torn bool
}

// live reports whether callbacks may still be delivered. Handlers are
// called without b.mu held.
func (b *Button) live() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.torn
}

// Capture captures the order server side and reports the outcome.
func (b *Button) Capture(ctx context.Context) {
	if !b.live() {
		return
	}
	order, err := b.w.gw.CaptureOrder(ctx, b.OrderID)
	if err != nil {
		b.w.log.Warn().Err(err).Str("order_id", b.OrderID).Msg("capture failed")
		b.deliverError(fmt.Errorf("%w: %w", ErrPaymentFailed, err))
		return
	}
	b.settle(ctx, order)
}

// Confirm handles a capture performed by the browser SDK. The payload is
// only trusted for its order id; the order itself is re-read from the
// processor.
func (b *Button) Confirm(ctx context.Context, raw []byte) {
	if !b.live() {
		return
	}
	claimed := ParseConfirmation(raw)
	if claimed.OrderID != "" && claimed.OrderID != b.OrderID {
		b.deliverError(ErrOrderMismatch)
		return
	}
	order, err := b.w.gw.GetOrder(ctx, b.OrderID)
	if err != nil {
		b.w.log.Warn().Err(err).Str("order_id", b.OrderID).Msg("order lookup failed")
		b.deliverError(fmt.Errorf("%w: %w", ErrPaymentFailed, err))
		return
	}
	b.settle(ctx, order)
}

func (b *Button) settle(ctx context.Context, order Order) {
	c := ParseConfirmation(order.Raw)
	if c.OrderID == "" {
		c.OrderID = b.OrderID
	}
	if c.Status == "" {
		c.Status = order.Status
	}
	if c.Status != StatusCompleted {
		b.deliverError(fmt.Errorf("%w: order status %s", ErrNotCompleted, c.Status))
		return
	}
	if b.live() {
		b.h.approved(ctx, c)
	}
}

// Fail reports a processor-side error seen by the browser.
func (b *Button) Fail(reason string) {
	b.deliverError(fmt.Errorf("%w: %s", ErrPaymentFailed, reason))
}

func (b *Button) deliverError(err error) {
	if b.live() {
		b.h.fail(err)
	}
}

func (b *Button) Cancel() {
	if b.live() {
		b.h.cancelled()
	}
}

// Teardown detaches the handlers. It is safe to call more than once.
func (b *Button) Teardown() {
	b.mu.Lock()
	b.torn = true
	b.mu.Unlock()
}
