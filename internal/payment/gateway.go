package payment

import (
	"context"
	"errors"
	"fmt"

	"gainfair/internal/catalog"
)

const StatusCompleted = "COMPLETED"

var ErrGateway = errors.New("payment gateway error")

// Order is a processor-side order. Raw holds the full response body.
type Order struct {
	ID     string
	Status string
	Raw    []byte
}

// Gateway is the server-side half of the processor API.
type Gateway interface {
	CreateOrder(ctx context.Context, amount catalog.Money, currency string) (Order, error)
	CaptureOrder(ctx context.Context, orderID string) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
}

// GatewayError carries the processor's error body.
type GatewayError struct {
	StatusCode int
	Name       string
	Message    string
	DebugID    string
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("paypal HTTP %d", e.StatusCode)
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.DebugID != "" {
		msg += " (debug_id " + e.DebugID + ")"
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return ErrGateway }
