package api

import (
	"context"
	"net/http"
	"testing"

	"gainfair/internal/models"
	"gainfair/internal/registration"
)

func startCheckout(t *testing.T, c *client) string {
	t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/checkout", nil)
	expectStatus(t, rec, http.StatusCreated)
	var v registration.View
	decode(t, rec, &v)
	if v.ID == "" || v.State != registration.StateFillingForm {
		t.Fatalf("unexpected new checkout: %+v", v)
	}
	return v.ID
}

func visitorForm(product string) map[string]any {
	return map[string]any{
		"name":                    "Lan Tran",
		"email":                   "lan@example.com",
		"phone":                   "+84 90 123 4567",
		"country":                 "Vietnam",
		"organization":            "Study Abroad Co",
		"registration_product_id": product,
		"add_ons":                 []string{"workshop"},
	}
}

func TestFreeCheckoutStoresRegistration(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	id := startCheckout(t, c)

	rec := c.do(http.MethodPost, "/api/v1/checkout/"+id+"/submit", map[string]any{
		"name": "Minh", "email": "minh@example.com", "phone": "0901", "country": "Vietnam",
		"registration_product_id": "user_free",
	})
	expectStatus(t, rec, 200)
	var v registration.View
	decode(t, rec, &v)
	if v.State != registration.StateSuccess || v.Registration == nil {
		t.Fatalf("unexpected view: %+v", v)
	}
	if v.Form.Name != "" || v.Form.ProductID != "user_free" {
		t.Fatalf("form must be cleared except the product: %+v", v.Form)
	}

	rec = c.do(http.MethodGet, "/api/v1/registrations/"+v.Registration.ID, nil)
	expectStatus(t, rec, 200)
	var summary struct {
		RegistrationType string               `json:"registration_type"`
		PaymentStatus    models.PaymentStatus `json:"payment_status"`
		Email            string               `json:"email"`
	}
	decode(t, rec, &summary)
	if summary.RegistrationType != "Visitor (Free)" || summary.PaymentStatus != models.PaymentFree || summary.Email != "" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestCheckoutValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	id := startCheckout(t, c)

	form := visitorForm("agent")
	form["organization"] = ""
	form["email"] = "not-an-email"
	rec := c.do(http.MethodPost, "/api/v1/checkout/"+id+"/submit", form)
	expectStatus(t, rec, 200)
	var v registration.View
	decode(t, rec, &v)
	if v.State != registration.StateFillingForm {
		t.Fatalf("unexpected state %s", v.State)
	}
	if v.Errors["email"] != registration.MsgEmailInvalid || v.Errors["organization"] != registration.MsgOrganizationRequired {
		t.Fatalf("unexpected errors: %+v", v.Errors)
	}
}

func TestPaidCheckoutCaptureThenReplay(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	id := startCheckout(t, c)

	rec := c.do(http.MethodPost, "/api/v1/checkout/"+id+"/submit", visitorForm("agent"))
	expectStatus(t, rec, 200)
	var v registration.View
	decode(t, rec, &v)
	if v.State != registration.StateAwaitingPayment || v.Button == nil {
		t.Fatalf("expected a mounted button: %+v", v)
	}
	if v.Button.Amount.String() != "256.25" || v.Button.Currency != "USD" {
		t.Fatalf("unexpected button: %+v", v.Button)
	}
	orderID := v.Button.OrderID

	rec = c.do(http.MethodPost, "/api/v1/checkout/"+id+"/capture", nil)
	expectStatus(t, rec, 200)
	decode(t, rec, &v)
	if v.State != registration.StateSuccess || v.Registration == nil {
		t.Fatalf("unexpected view after capture: %+v", v)
	}

	// A replayed confirmation must not write again.
	rec = c.do(http.MethodPost, "/api/v1/checkout/"+id+"/confirm", `{"id":"`+orderID+`"}`)
	expectStatus(t, rec, 200)

	reg, err := env.store.GetRegistrationByOrderID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("lookup by order: %v", err)
	}
	if reg.PaymentStatus != models.PaymentPaid || reg.PayPalCaptureID == nil || *reg.PayPalCaptureID != "CAP-1" {
		t.Fatalf("unexpected stored registration: %+v", reg)
	}
	_, total, err := env.store.ListRegistrations(context.Background(), models.RegistrationQuery{})
	if err != nil || total != 1 {
		t.Fatalf("expected exactly one registration, got %d (%v)", total, err)
	}
}

func TestPaidCheckoutCancelAndError(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	id := startCheckout(t, c)
	expectStatus(t, c.do(http.MethodPost, "/api/v1/checkout/"+id+"/submit", visitorForm("exhibitor")), 200)

	rec := c.do(http.MethodPost, "/api/v1/checkout/"+id+"/error", map[string]string{"reason": "card declined"})
	expectStatus(t, rec, 200)
	var v registration.View
	decode(t, rec, &v)
	if v.State != registration.StateAwaitingPayment || v.Message != registration.MsgPaymentFailed {
		t.Fatalf("unexpected view after error: %+v", v)
	}

	rec = c.do(http.MethodPost, "/api/v1/checkout/"+id+"/cancel", nil)
	expectStatus(t, rec, 200)
	decode(t, rec, &v)
	if v.State != registration.StateFillingForm || v.Message != registration.MsgPaymentCancelled || v.Form.Name != "Lan Tran" {
		t.Fatalf("unexpected view after cancel: %+v", v)
	}
}

func TestUnknownCheckoutIs404(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	rec := c.do(http.MethodGet, "/api/v1/checkout/does-not-exist", nil)
	expectStatus(t, rec, 404)
	var e struct {
		Code      string `json:"code"`
		RequestID string `json:"request_id"`
	}
	decode(t, rec, &e)
	if e.Code != "checkout_not_found" || e.RequestID == "" {
		t.Fatalf("unexpected envelope: %+v", e)
	}
}
