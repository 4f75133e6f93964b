package api

import (
	"errors"
	"net/http"
	"time"

	"gainfair/internal/auth"
	"gainfair/internal/captcha"
	"gainfair/internal/middleware"
	"gainfair/internal/store"
	"gainfair/internal/util"
)

type credentials struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

type sessionResponse struct {
	auth.SessionState
	CSRFToken string `json:"csrf_token,omitempty"`
}

func (h *Handlers) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", h.rid(r))
		return
	}
	ip := middleware.ClientIP(r, h.cfg.TrustProxy)
	token, state, err := h.auth.SignIn(r.Context(), req.Email, req.Password, ip, r.UserAgent())
	if errors.Is(err, auth.ErrInvalidCredentials) {
		util.WriteError(w, 401, "invalid_credentials", "invalid email or password", h.rid(r))
		return
	}
	if err != nil {
		h.internalError(w, r, err, "sign in failed")
		return
	}
	csrf, _, err := auth.NewOpaqueToken()
	if err != nil {
		h.internalError(w, r, err, "sign in failed")
		return
	}
	h.setAuthCookies(w, token, csrf)
	util.WriteJSON(w, 200, sessionResponse{SessionState: state, CSRFToken: csrf})
}

func (h *Handlers) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", h.rid(r))
		return
	}
	if h.cfg.CaptchaEnabled {
		ip := middleware.ClientIP(r, h.cfg.TrustProxy)
		if err := h.captchaVerifier.Verify(r.Context(), req.CaptchaToken, ip); err != nil {
			if errors.Is(err, captcha.ErrCaptchaUnavailable) {
				util.WriteError(w, 503, "captcha_unavailable", "captcha verification is unavailable; please retry", h.rid(r))
				return
			}
			util.WriteError(w, 400, "captcha_required", "captcha validation failed", h.rid(r))
			return
		}
	}
	u, err := h.auth.SignUp(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrSignUpDisabled):
		util.WriteError(w, 403, "signup_disabled", "sign up is disabled", h.rid(r))
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, store.ErrConflict):
		util.WriteError(w, 409, "email_taken", "email already registered", h.rid(r))
	case errors.Is(err, auth.ErrWeakPassword):
		util.WriteError(w, 400, "weak_password", err.Error(), h.rid(r))
	case err != nil:
		h.internalError(w, r, err, "sign up failed")
	default:
		util.WriteJSON(w, 201, map[string]string{"user_id": u.ID, "email": u.Email, "role": u.Role})
	}
}

func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cfg.SessionCookieName); err == nil && c.Value != "" {
		if err := h.auth.SignOut(r.Context(), c.Value); err != nil {
			h.log.Warn().Err(err).Str("request_id", h.rid(r)).Msg("sign out failed")
		}
	}
	h.clearAuthCookies(w)
	util.WriteJSON(w, 200, map[string]string{"status": "ok"})
}

func (h *Handlers) SessionInfo(w http.ResponseWriter, r *http.Request) {
	s := middleware.Session(r.Context())
	if s == nil {
		util.WriteError(w, 503, "session_unavailable", "session could not be resolved", h.rid(r))
		return
	}
	util.WriteJSON(w, 200, s)
}

func (h *Handlers) setAuthCookies(w http.ResponseWriter, sessionToken, csrfToken string) {
	maxAge := int(h.cfg.SessionAbsoluteDuration().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (h *Handlers) clearAuthCookies(w http.ResponseWriter) {
	expiredAt := time.Unix(1, 0).UTC()
	for _, c := range []struct {
		name     string
		httpOnly bool
	}{{h.cfg.SessionCookieName, true}, {h.cfg.CSRFCookieName, false}} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     "/",
			HttpOnly: c.httpOnly,
			Secure:   h.cfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
			Expires:  expiredAt,
		})
	}
}
