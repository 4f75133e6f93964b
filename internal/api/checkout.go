package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gainfair/internal/captcha"
	"gainfair/internal/catalog"
	"gainfair/internal/middleware"
	"gainfair/internal/models"
	"gainfair/internal/registration"
	"gainfair/internal/store"
	"gainfair/internal/util"
)

type catalogResponse struct {
	Event           catalog.Event     `json:"event"`
	Currency        string            `json:"currency"`
	LocalCurrency   string            `json:"local_currency"`
	Products        []catalog.Product `json:"products"`
	AddOns          []catalog.AddOn   `json:"add_ons"`
	PaymentsEnabled bool              `json:"payments_enabled"`
	PayPalSDKURL    string            `json:"paypal_sdk_url,omitempty"`
	CaptchaEnabled  bool              `json:"captcha_enabled"`
}

func (h *Handlers) GetCatalog(w http.ResponseWriter, r *http.Request) {
	c := h.cat
	out := catalogResponse{
		Event:          c.Event,
		Currency:       c.Currency,
		LocalCurrency:  c.LocalCurrency,
		Products:       c.Products,
		AddOns:         c.AddOns,
		CaptchaEnabled: h.cfg.CaptchaEnabled,
	}
	if h.widget != nil && h.widget.Enabled() {
		if u, err := h.widget.SDKURL(c.Currency); err == nil {
			out.PaymentsEnabled = true
			out.PayPalSDKURL = u
		}
	}
	util.WriteJSON(w, 200, out)
}

type quoteRequest struct {
	ProductID string   `json:"registration_product_id"`
	AddOns    []string `json:"add_ons"`
}

func (h *Handlers) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", h.rid(r))
		return
	}
	form := registration.Form{ProductID: req.ProductID, AddOns: req.AddOns}.Normalize()
	if errs := registration.ValidateCatalogSelection(h.cat, form.ProductID, form.AddOns); len(errs) > 0 {
		util.WriteJSON(w, 400, map[string]any{
			"code":       "validation_failed",
			"message":    "invalid selection",
			"errors":     errs,
			"request_id": h.rid(r),
		})
		return
	}
	q, err := h.cat.Quote(form.ProductID, form.AddOns)
	if err != nil {
		util.WriteError(w, 400, "validation_failed", err.Error(), h.rid(r))
		return
	}
	util.WriteJSON(w, 200, q)
}

func (h *Handlers) StartCheckout(w http.ResponseWriter, r *http.Request) {
	f := h.flows.Start()
	w.Header().Set("Location", "/api/v1/checkout/"+f.ID)
	util.WriteJSON(w, http.StatusCreated, f.View())
}

func (h *Handlers) flow(w http.ResponseWriter, r *http.Request) (*registration.Flow, bool) {
	f, ok := h.flows.Get(chi.URLParam(r, "id"))
	if !ok {
		util.WriteError(w, http.StatusNotFound, "checkout_not_found", "checkout expired or not found; please start again", h.rid(r))
		return nil, false
	}
	return f, true
}

func (h *Handlers) GetCheckout(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	util.WriteJSON(w, 200, f.View())
}

type submitRequest struct {
	registration.Form
	CaptchaToken string `json:"captcha_token"`
}

func (h *Handlers) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", h.rid(r))
		return
	}
	if h.cfg.CaptchaEnabled {
		ip := middleware.ClientIP(r, h.cfg.TrustProxy)
		if err := h.captchaVerifier.Verify(r.Context(), req.CaptchaToken, ip); err != nil {
			if errors.Is(err, captcha.ErrCaptchaUnavailable) {
				h.log.Warn().Err(err).Str("attempt_id", f.ID).Msg("captcha verification unavailable")
				util.WriteError(w, http.StatusServiceUnavailable, "captcha_unavailable", "captcha verification is unavailable; please retry", h.rid(r))
				return
			}
			util.WriteError(w, 400, "captcha_required", "captcha validation failed", h.rid(r))
			return
		}
	}
	util.WriteJSON(w, 200, f.Submit(r.Context(), req.Form))
}

func (h *Handlers) CaptureCheckout(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	util.WriteJSON(w, 200, f.Capture(r.Context()))
}

func (h *Handlers) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, util.MaxJSONBody))
	if err != nil {
		util.WriteError(w, 400, "bad_request", "payload too large", h.rid(r))
		return
	}
	util.WriteJSON(w, 200, f.Confirm(r.Context(), raw))
}

func (h *Handlers) FailCheckout(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", h.rid(r))
		return
	}
	util.WriteJSON(w, 200, f.Fail(req.Reason))
}

func (h *Handlers) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	util.WriteJSON(w, 200, f.Cancel())
}

// registrationSummary is what the success page may show; contact
// details stay out.
type registrationSummary struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	RegistrationType string               `json:"registration_type"`
	AttendeeType     catalog.Category     `json:"attendee_type"`
	AddOns           []string             `json:"add_ons"`
	Amount           catalog.Money        `json:"amount"`
	Currency         string               `json:"currency"`
	PaymentStatus    models.PaymentStatus `json:"payment_status"`
	ReviewStatus     models.ReviewStatus  `json:"review_status"`
	PayPalOrderID    *string              `json:"paypal_order_id,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

func (h *Handlers) RegistrationSummary(w http.ResponseWriter, r *http.Request) {
	reg, err := h.store.GetRegistrationByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		util.WriteError(w, 404, "not_found", "registration not found", h.rid(r))
		return
	}
	if err != nil {
		h.internalError(w, r, err, "registration lookup failed")
		return
	}
	label := reg.ProductID
	if p, ok := h.cat.Product(reg.ProductID); ok {
		label = p.Label
	}
	addOns := make([]string, 0, len(reg.AddOns))
	for _, id := range reg.AddOns {
		if a, ok := h.cat.AddOn(id); ok {
			addOns = append(addOns, a.Name)
		} else {
			addOns = append(addOns, id)
		}
	}
	util.WriteJSON(w, 200, registrationSummary{
		ID:               reg.ID,
		Name:             reg.Name,
		RegistrationType: label,
		AttendeeType:     reg.AttendeeType,
		AddOns:           addOns,
		Amount:           reg.Amount,
		Currency:         reg.Currency,
		PaymentStatus:    reg.PaymentStatus,
		ReviewStatus:     reg.ReviewStatus,
		PayPalOrderID:    reg.PayPalOrderID,
		CreatedAt:        reg.CreatedAt,
	})
}
