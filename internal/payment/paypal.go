package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gainfair/internal/catalog"
)

// PayPalGateway calls the PayPal REST API (v2 checkout orders).
type PayPalGateway struct {
	base     string
	clientID string
	secret   string
	client   *http.Client
	now      func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewPayPalGateway(apiBase, clientID, secret string) *PayPalGateway {
	return &PayPalGateway{
		base:     strings.TrimRight(apiBase, "/"),
		clientID: clientID,
		secret:   secret,
		client:   &http.Client{Timeout: 20 * time.Second},
		now:      time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached client-credentials token, refreshing it a
// minute before expiry.
func (g *PayPalGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && g.now().Before(g.expiry) {
		return g.token, nil
	}
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.clientID, g.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token: %v", ErrGateway, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: token: %v", ErrGateway, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", decodeGatewayError(resp.StatusCode, body)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return "", fmt.Errorf("%w: malformed token response", ErrGateway)
	}
	ttl := time.Duration(tr.ExpiresIn)*time.Second - time.Minute
	if ttl < 0 {
		ttl = 0
	}
	g.token = tr.AccessToken
	g.expiry = g.now().Add(ttl)
	return g.token, nil
}

func (g *PayPalGateway) CreateOrder(ctx context.Context, amount catalog.Money, currency string) (Order, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{"currency_code": currency, "value": amount.String()},
		}},
		"application_context": map[string]string{"shipping_preference": "NO_SHIPPING"},
	}
	return g.do(ctx, http.MethodPost, "/v2/checkout/orders", body)
}

func (g *PayPalGateway) CaptureOrder(ctx context.Context, orderID string) (Order, error) {
	return g.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", struct{}{})
}

func (g *PayPalGateway) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return g.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil)
}

func (g *PayPalGateway) do(ctx context.Context, method, path string, payload any) (Order, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return Order{}, err
	}
	var rdr io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Order{}, err
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.base+path, rdr)
	if err != nil {
		return Order{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("PayPal-Request-Id", uuid.NewString())
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Order{}, decodeGatewayError(resp.StatusCode, body)
	}
	var head struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return Order{}, fmt.Errorf("%w: malformed order response", ErrGateway)
	}
	return Order{ID: head.ID, Status: head.Status, Raw: body}, nil
}

func decodeGatewayError(status int, body []byte) error {
	e := &GatewayError{StatusCode: status}
	var out struct {
		Name        string `json:"name"`
		Message     string `json:"message"`
		DebugID     string `json:"debug_id"`
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(body, &out) == nil {
		e.Name, e.Message, e.DebugID = out.Name, out.Message, out.DebugID
		if e.Name == "" {
			e.Name, e.Message = out.Error, out.Description
		}
	}
	return e
}
