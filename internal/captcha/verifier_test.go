package captcha

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gainfair/internal/config"
)

func TestSiteVerifierSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("secret") != "secret" || r.PostForm.Get("response") != "token" {
			t.Fatalf("unexpected form: %v", r.PostForm)
		}
		_, _ = w.Write([]byte(`{"success":true,"hostname":"gainfair.example"}`))
	}))
	defer ts.Close()

	v := &SiteVerifier{verifyURL: ts.URL, secret: "secret", hostname: "gainfair.example", client: ts.Client()}
	if err := v.Verify(context.Background(), "token", "127.0.0.1"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestSiteVerifierRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer ts.Close()

	v := &SiteVerifier{verifyURL: ts.URL, secret: "secret", client: ts.Client()}
	err := v.Verify(context.Background(), "token", "127.0.0.1")
	if !errors.Is(err, ErrCaptchaRequired) {
		t.Fatalf("expected ErrCaptchaRequired, got %v", err)
	}
}

func TestSiteVerifierHostnameMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"hostname":"evil.example"}`))
	}))
	defer ts.Close()

	v := &SiteVerifier{verifyURL: ts.URL, secret: "secret", hostname: "gainfair.example", client: ts.Client()}
	if err := v.Verify(context.Background(), "token", ""); !errors.Is(err, ErrCaptchaRequired) {
		t.Fatalf("expected ErrCaptchaRequired, got %v", err)
	}
}

func TestSiteVerifierUpstreamDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	v := &SiteVerifier{verifyURL: ts.URL, secret: "secret", client: ts.Client()}
	if err := v.Verify(context.Background(), "token", ""); !errors.Is(err, ErrCaptchaUnavailable) {
		t.Fatalf("expected ErrCaptchaUnavailable, got %v", err)
	}
}

func TestMissingTokenAndNoop(t *testing.T) {
	v := &SiteVerifier{verifyURL: "http://127.0.0.1:1", secret: "secret", client: http.DefaultClient}
	if err := v.Verify(context.Background(), "  ", ""); !errors.Is(err, ErrCaptchaRequired) {
		t.Fatalf("expected ErrCaptchaRequired, got %v", err)
	}
	if _, ok := NewVerifier(config.Config{}).(NoopVerifier); !ok {
		t.Fatalf("disabled captcha must use NoopVerifier")
	}
}
