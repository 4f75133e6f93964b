// Package access decides whether a caller may reach a protected page or
// endpoint.
package access

import (
	"net/http"
	"net/url"

	"gainfair/internal/auth"
	"gainfair/internal/middleware"
	"gainfair/internal/util"
)

type Outcome string

const (
	Loading         Outcome = "loading"
	Unauthenticated Outcome = "unauthenticated"
	WrongRole       Outcome = "wrong_role"
	Authorized      Outcome = "authorized"
)

// SafePage is where callers without the required role are sent.
const SafePage = "/"

type Decision struct {
	Outcome  Outcome
	Redirect string
}

// HasRole is the only capability check; everything else goes through it.
func HasRole(s *auth.SessionState, role string) bool {
	return s != nil && s.Present && s.Role == role
}

type Guard struct {
	Role      string
	LoginPath string
}

func NewGuard(role, loginPath string) Guard {
	return Guard{Role: role, LoginPath: loginPath}
}

// Evaluate classifies a session. s is nil while it has not been resolved.
// next is the page to come back to after signing in.
func (g Guard) Evaluate(s *auth.SessionState, next string) Decision {
	switch {
	case s == nil:
		return Decision{Outcome: Loading}
	case !s.Present:
		return Decision{Outcome: Unauthenticated, Redirect: g.loginURL(next)}
	case !HasRole(s, g.Role):
		return Decision{Outcome: WrongRole, Redirect: SafePage}
	default:
		return Decision{Outcome: Authorized}
	}
}

func (g Guard) loginURL(next string) string {
	if next == "" {
		return g.LoginPath
	}
	return g.LoginPath + "?next=" + url.QueryEscape(next)
}

// Page protects HTML routes with redirects.
func (g Guard) Page(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(middleware.Session(r.Context()), r.URL.RequestURI())
		switch d.Outcome {
		case Authorized:
			next.ServeHTTP(w, r)
		case Loading:
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Loading, please retry.", http.StatusServiceUnavailable)
		default:
			http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
		}
	})
}

// API protects JSON routes.
func (g Guard) API(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := middleware.RequestID(r.Context())
		switch g.Evaluate(middleware.Session(r.Context()), "").Outcome {
		case Authorized:
			next.ServeHTTP(w, r)
		case Loading:
			util.WriteError(w, http.StatusServiceUnavailable, "session_unavailable", "session could not be resolved", rid)
		case Unauthenticated:
			util.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", rid)
		default:
			util.WriteError(w, http.StatusForbidden, "forbidden", g.Role+" role required", rid)
		}
	})
}
