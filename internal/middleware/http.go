package middleware

import (
	"context"
	"crypto/subtle"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gainfair/internal/auth"
	"gainfair/internal/rate"
	"gainfair/internal/util"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		r = r.WithContext(WithRequestID(r.Context(), rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// SessionResolver maps a session cookie value to the caller's state.
type SessionResolver interface {
	Resolve(ctx context.Context, rawToken string) (auth.SessionState, error)
}

// SessionProvider resolves the session cookie once per request. When
// resolution fails the request carries no session at all, which guards
// treat as still loading.
func SessionProvider(res SessionResolver, cookieName string, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ""
			if c, err := r.Cookie(cookieName); err == nil {
				raw = c.Value
			}
			state, err := res.Resolve(r.Context(), raw)
			if err != nil {
				log.Warn().Err(err).Str("request_id", RequestID(r.Context())).Msg("session resolve failed")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), state)))
		})
	}
}

func CSRFFromCookie(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			h := r.Header.Get("X-CSRF-Token")
			c, err := r.Cookie(cookieName)
			if err != nil || c.Value == "" || h == "" {
				util.WriteError(w, http.StatusForbidden, "csrf_failed", "missing csrf token", RequestID(r.Context()))
				return
			}
			if subtle.ConstantTimeCompare([]byte(h), []byte(c.Value)) != 1 {
				util.WriteError(w, http.StatusForbidden, "csrf_failed", "invalid csrf token", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RateLimit(l *rate.Limiter, route string, p rate.Policy, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := route + ":" + ClientIP(r, trustProxy)
			ok, retry := l.Allow(key, p)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				util.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func RequestLogger(log zerolog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)

			ev := log.Info()
			if sr.status >= 500 {
				ev = log.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sr.status).
				Int("bytes", sr.bytes).
				Dur("duration", time.Since(start)).
				Str("request_id", RequestID(r.Context())).
				Str("remote_ip", ClientIP(r, trustProxy)).
				Msg("request")
		})
	}
}
