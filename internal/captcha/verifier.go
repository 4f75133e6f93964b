package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gainfair/internal/config"
)

var (
	ErrCaptchaRequired    = errors.New("captcha_required")
	ErrCaptchaUnavailable = errors.New("captcha_unavailable")
)

// Verifier checks a widget token before checkout and sign up.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

type NoopVerifier struct{}

func (NoopVerifier) Verify(ctx context.Context, token, remoteIP string) error { return nil }

// SiteVerifier talks to a Turnstile or hCaptcha siteverify endpoint. Both
// accept the same form-encoded request.
type SiteVerifier struct {
	verifyURL string
	secret    string
	hostname  string
	client    *http.Client
}

func NewVerifier(cfg config.Config) Verifier {
	if !cfg.CaptchaEnabled {
		return NoopVerifier{}
	}
	host := ""
	if u, err := url.Parse(cfg.PublicBaseURL); err == nil {
		host = u.Hostname()
	}
	return &SiteVerifier{
		verifyURL: strings.TrimSpace(cfg.CaptchaVerifyURL),
		secret:    strings.TrimSpace(cfg.CaptchaSecret),
		hostname:  host,
		client:    &http.Client{Timeout: 8 * time.Second},
	}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *SiteVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: captcha token is required", ErrCaptchaRequired)
	}
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if ip := strings.TrimSpace(remoteIP); ip != "" {
		form.Set("remoteip", ip)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: captcha verify HTTP %d", ErrCaptchaUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: captcha verify HTTP %d", ErrCaptchaRequired, resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	if !out.Success {
		if len(out.ErrorCodes) > 0 {
			return fmt.Errorf("%w: captcha rejected: %s", ErrCaptchaRequired, strings.Join(out.ErrorCodes, ","))
		}
		return fmt.Errorf("%w: captcha rejected", ErrCaptchaRequired)
	}
	// localhost tokens are issued by test keys; only pin real hosts.
	if v.hostname != "" && v.hostname != "localhost" && out.Hostname != "" && !strings.EqualFold(out.Hostname, v.hostname) {
		return fmt.Errorf("%w: token issued for %s", ErrCaptchaRequired, out.Hostname)
	}
	return nil
}
