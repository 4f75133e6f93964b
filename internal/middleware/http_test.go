package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gainfair/internal/auth"
	"gainfair/internal/rate"
)

func TestClientIPTrustProxy(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:12345"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.5")

	if got := ClientIP(r, false); got != "10.0.0.5" {
		t.Fatalf("unexpected direct IP: %s", got)
	}
	if got := ClientIP(r, true); got != "1.2.3.4" {
		t.Fatalf("unexpected proxied IP: %s", got)
	}
}

type resolverFunc func(ctx context.Context, raw string) (auth.SessionState, error)

func (f resolverFunc) Resolve(ctx context.Context, raw string) (auth.SessionState, error) {
	return f(ctx, raw)
}

func TestSessionProvider(t *testing.T) {
	res := resolverFunc(func(ctx context.Context, raw string) (auth.SessionState, error) {
		switch raw {
		case "good":
			return auth.SessionState{Present: true, UserID: "u1", Role: "admin"}, nil
		case "broken":
			return auth.SessionState{}, errors.New("db down")
		}
		return auth.SessionState{}, nil
	})
	var seen *auth.SessionState
	h := SessionProvider(res, "sid", zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = Session(r.Context())
	}))

	cases := []struct {
		cookie  string
		nilSess bool
		present bool
	}{
		{cookie: "", present: false},
		{cookie: "good", present: true},
		{cookie: "stale", present: false},
		{cookie: "broken", nilSess: true},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.cookie != "" {
			req.AddCookie(&http.Cookie{Name: "sid", Value: tc.cookie})
		}
		seen = nil
		h.ServeHTTP(httptest.NewRecorder(), req)
		if tc.nilSess {
			if seen != nil {
				t.Fatalf("cookie %q: expected unresolved session, got %+v", tc.cookie, seen)
			}
			continue
		}
		if seen == nil || seen.Present != tc.present {
			t.Fatalf("cookie %q: unexpected session %+v", tc.cookie, seen)
		}
	}
}

func TestCSRFFromCookie(t *testing.T) {
	h := CSRFFromCookie("csrf")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/", nil))
	if get.Code != http.StatusNoContent {
		t.Fatalf("GET must pass, got %d", get.Code)
	}

	missing := httptest.NewRecorder()
	h.ServeHTTP(missing, httptest.NewRequest(http.MethodPost, "/", nil))
	if missing.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without token, got %d", missing.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: "csrf", Value: "abc"})
	req.Header.Set("X-CSRF-Token", "abd")
	mismatch := httptest.NewRecorder()
	h.ServeHTTP(mismatch, req)
	if mismatch.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on mismatch, got %d", mismatch.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: "csrf", Value: "abc"})
	req.Header.Set("X-CSRF-Token", "abc")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	if ok.Code != http.StatusNoContent {
		t.Fatalf("expected pass with matching token, got %d", ok.Code)
	}
}

func TestRateLimitSetsRetryAfter(t *testing.T) {
	l := rate.NewLimiter()
	h := RateLimit(l, "quote", rate.Policy{Limit: 1, Window: time.Minute}, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request refused: %d", first.Code)
	}
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestRequestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	h := RequestIDMiddleware(RequestLogger(log, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil))

	line := buf.String()
	for _, want := range []string{`"status":418`, `"path":"/api/v1/catalog"`, `"bytes":3`, `"request_id":"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %s", line, want)
		}
	}
}
