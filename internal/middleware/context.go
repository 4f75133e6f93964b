package middleware

import (
	"context"
	"net/http"

	"gainfair/internal/auth"
)

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxSession   ctxKey = "session"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

func WithSession(ctx context.Context, s auth.SessionState) context.Context {
	return context.WithValue(ctx, ctxSession, s)
}

// Session returns the caller's resolved session, or nil when it could
// not be resolved for this request.
func Session(ctx context.Context) *auth.SessionState {
	s, ok := ctx.Value(ctxSession).(auth.SessionState)
	if !ok {
		return nil
	}
	return &s
}

// SecurityHeaders allows the PayPal JS SDK and the captcha widgets; the
// rest is same-origin.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "same-origin")
		w.Header().Set(
			"Content-Security-Policy",
			"default-src 'self'; "+
				"img-src 'self' data: https://*.paypal.com https://*.paypalobjects.com; "+
				"media-src 'self'; "+
				"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; "+
				"font-src 'self' data: https://fonts.gstatic.com; "+
				"connect-src 'self' https://*.paypal.com; "+
				"script-src 'self' https://www.paypal.com https://challenges.cloudflare.com https://js.hcaptcha.com; "+
				"frame-src https://*.paypal.com https://challenges.cloudflare.com https://*.hcaptcha.com; "+
				"frame-ancestors 'none'; base-uri 'self'",
		)
		next.ServeHTTP(w, r)
	})
}
