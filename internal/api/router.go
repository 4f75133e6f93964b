package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"gainfair/internal/access"
	"gainfair/internal/auth"
	"gainfair/internal/captcha"
	"gainfair/internal/catalog"
	"gainfair/internal/config"
	"gainfair/internal/content"
	"gainfair/internal/middleware"
	"gainfair/internal/models"
	"gainfair/internal/payment"
	"gainfair/internal/rate"
	"gainfair/internal/registration"
	"gainfair/internal/review"
	"gainfair/internal/store"
	"gainfair/internal/uploads"
	"gainfair/internal/util"
	"gainfair/internal/version"
)

// Probe is one readiness dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps is everything the HTTP layer talks to.
type Deps struct {
	Config  config.Config
	Log     zerolog.Logger
	Store   *store.Store
	Catalog *catalog.Catalog
	Content *content.Service
	Flows   *registration.Registry
	Widget  *payment.Widget
	Auth    *auth.Provider
	Review  *review.Service
	Uploads *uploads.LocalStore
	Captcha captcha.Verifier
	Probes  []Probe
}

type Handlers struct {
	cfg             config.Config
	log             zerolog.Logger
	store           *store.Store
	cat             *catalog.Catalog
	content         *content.Service
	flows           *registration.Registry
	widget          *payment.Widget
	auth            *auth.Provider
	review          *review.Service
	uploads         *uploads.LocalStore
	captchaVerifier captcha.Verifier
	probes          []Probe
	limiter         *rate.Limiter
	guard           access.Guard
}

const loginPath = "/login"

var (
	quotePolicy    = rate.Policy{Limit: 60, Window: time.Minute}
	checkoutPolicy = rate.Policy{Limit: 20, Window: time.Minute}
	submitPolicy   = rate.Policy{Limit: 30, Window: time.Minute}
	signInPolicy   = rate.Policy{Limit: 20, Window: time.Minute}
	signUpPolicy   = rate.Policy{Limit: 10, Window: time.Minute}
)

func NewRouter(d Deps) http.Handler {
	if d.Captcha == nil {
		d.Captcha = captcha.NoopVerifier{}
	}
	h := &Handlers{
		cfg:             d.Config,
		log:             d.Log,
		store:           d.Store,
		cat:             d.Catalog,
		content:         d.Content,
		flows:           d.Flows,
		widget:          d.Widget,
		auth:            d.Auth,
		review:          d.Review,
		uploads:         d.Uploads,
		captchaVerifier: d.Captcha,
		probes:          d.Probes,
		limiter:         rate.NewLimiter(),
		guard:           access.NewGuard(models.RoleAdmin, loginPath),
	}
	cfg := d.Config
	limit := func(route string, p rate.Policy) func(http.Handler) http.Handler {
		return middleware.RateLimit(h.limiter, route, p, cfg.TrustProxy)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(d.Log, cfg.TrustProxy))
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token"},
			AllowCredentials: true,
		}))
	}
	r.Use(middleware.SessionProvider(d.Auth, cfg.SessionCookieName, d.Log))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", h.Ready)
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, version.Current())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog", h.GetCatalog)
		r.With(limit("quote", quotePolicy)).Post("/quote", h.Quote)

		r.With(limit("checkout", checkoutPolicy)).Post("/checkout", h.StartCheckout)
		r.Route("/checkout/{id}", func(r chi.Router) {
			r.Get("/", h.GetCheckout)
			r.With(limit("checkout_submit", submitPolicy)).Post("/submit", h.SubmitCheckout)
			r.Post("/capture", h.CaptureCheckout)
			r.Post("/confirm", h.ConfirmCheckout)
			r.Post("/error", h.FailCheckout)
			r.Post("/cancel", h.CancelCheckout)
		})
		r.Get("/registrations/{id}", h.RegistrationSummary)
		r.Get("/pages/{page}", h.PublicPage)

		r.With(limit("signin", signInPolicy)).Post("/auth/signin", h.SignIn)
		r.With(limit("signup", signUpPolicy)).Post("/auth/signup", h.SignUp)
		r.Post("/auth/signout", h.SignOut)
		r.Get("/auth/session", h.SessionInfo)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.guard.API)
			r.Use(middleware.CSRFFromCookie(cfg.CSRFCookieName))
			r.Get("/registrations", h.AdminListRegistrations)
			r.Get("/registrations/export", h.AdminExportRegistrations)
			r.Post("/registrations/{id}/approve", h.AdminApproveRegistration)
			r.Post("/registrations/{id}/reject", h.AdminRejectRegistration)
			r.Get("/content", h.AdminListContent)
			r.Get("/content/templates", h.AdminContentTemplates)
			r.Put("/content/{page}/{key}", h.AdminSaveContent)
			r.Delete("/content/{id}", h.AdminDeleteContent)
			r.Post("/uploads", h.AdminUpload)
			r.Get("/audit-log", h.AdminAuditLog)
		})
	})

	r.With(h.guard.Page).Get("/cms-dashboard", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(cfg.WebDir, "cms-dashboard.html"))
	})

	if d.Uploads != nil {
		files := http.StripPrefix(strings.TrimSuffix(uploads.URLPrefix, "/"), http.FileServer(noDirFS{http.Dir(d.Uploads.Dir())}))
		r.Get(uploads.URLPrefix+"*", files.ServeHTTP)
	}

	fs := http.FileServer(http.Dir(cfg.WebDir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/health/") {
			http.NotFound(w, r)
			return
		}
		if p == "/" {
			http.ServeFile(w, r, filepath.Join(cfg.WebDir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})

	return r
}

// Ready reports sqlite and every configured probe. Any failure degrades.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	comps := map[string]any{}
	ok := true
	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			ok = false
			comps[name] = map[string]any{"ok": false, "error": err.Error()}
			return
		}
		comps[name] = map[string]any{"ok": true}
	}
	check("sqlite", h.store.Ping)
	for _, p := range h.probes {
		check(p.Name, p.Check)
	}

	out := map[string]any{
		"checked_at": time.Now().UTC().Format(time.RFC3339),
		"components": comps,
	}
	if ok {
		out["status"] = "ready"
		util.WriteJSON(w, 200, out)
		return
	}
	out["status"] = "degraded"
	util.WriteJSON(w, 503, out)
}

// noDirFS hides directory listings.
type noDirFS struct{ fs http.FileSystem }

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}

func (h *Handlers) rid(r *http.Request) string { return middleware.RequestID(r.Context()) }

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.log.Error().Err(err).Str("request_id", h.rid(r)).Str("path", r.URL.Path).Msg(msg)
	util.WriteError(w, http.StatusInternalServerError, "internal_error", msg, h.rid(r))
}
