package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainfair/internal/catalog"
)

func newPayPalStub(t *testing.T, tokenCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"Client Authentication failed"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":32400}`))
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Intent        string `json:"intent"`
			PurchaseUnits []struct {
				Amount struct {
					CurrencyCode string `json:"currency_code"`
					Value        string `json:"value"`
				} `json:"amount"`
			} `json:"purchase_units"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body.Intent)
		assert.Equal(t, "256.25", body.PurchaseUnits[0].Amount.Value)
		assert.NotEmpty(t, r.Header.Get("PayPal-Request-Id"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"CREATED"}`))
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-1"}]}}]}`))
	})
	mux.HandleFunc("/v2/checkout/orders/MISSING", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"name":"RESOURCE_NOT_FOUND","message":"The specified resource does not exist.","debug_id":"abc"}`))
	})
	return httptest.NewServer(mux)
}

func TestPayPalGatewayOrderLifecycle(t *testing.T) {
	var tokenCalls int32
	ts := newPayPalStub(t, &tokenCalls)
	defer ts.Close()

	g := NewPayPalGateway(ts.URL, "client", "secret")
	order, err := g.CreateOrder(context.Background(), catalog.Money(25625), "USD")
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", order.ID)
	assert.Equal(t, "CREATED", order.Status)

	captured, err := g.CaptureOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, captured.Status)
	assert.Equal(t, "CAP-1", ParseConfirmation(captured.Raw).CaptureID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&tokenCalls), "token is cached")
}

func TestPayPalGatewayErrors(t *testing.T) {
	var tokenCalls int32
	ts := newPayPalStub(t, &tokenCalls)
	defer ts.Close()

	g := NewPayPalGateway(ts.URL, "client", "secret")
	_, err := g.GetOrder(context.Background(), "MISSING")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGateway))
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "RESOURCE_NOT_FOUND", ge.Name)
	assert.Equal(t, "abc", ge.DebugID)

	bad := NewPayPalGateway(ts.URL, "client", "wrong")
	_, err = bad.GetOrder(context.Background(), "ORDER-1")
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, http.StatusUnauthorized, ge.StatusCode)
	assert.Equal(t, "invalid_client", ge.Name)
}
