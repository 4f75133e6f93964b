package access

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"gainfair/internal/auth"
	"gainfair/internal/middleware"
	"gainfair/internal/models"
)

var (
	admin  = &auth.SessionState{Present: true, UserID: "u1", Email: "admin@example.com", Role: models.RoleAdmin}
	viewer = &auth.SessionState{Present: true, UserID: "u2", Email: "viewer@example.com", Role: models.RoleViewer}
	absent = &auth.SessionState{}
)

func TestHasRole(t *testing.T) {
	assert.True(t, HasRole(admin, models.RoleAdmin))
	assert.False(t, HasRole(viewer, models.RoleAdmin))
	assert.False(t, HasRole(absent, ""))
	assert.False(t, HasRole(nil, models.RoleAdmin))
}

func TestEvaluate(t *testing.T) {
	g := NewGuard(models.RoleAdmin, "/login")
	cases := []struct {
		name string
		s    *auth.SessionState
		want Decision
	}{
		{"loading", nil, Decision{Outcome: Loading}},
		{"anonymous", absent, Decision{Outcome: Unauthenticated, Redirect: "/login?next=%2Fcms-dashboard"}},
		{"viewer", viewer, Decision{Outcome: WrongRole, Redirect: "/"}},
		{"admin", admin, Decision{Outcome: Authorized}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, g.Evaluate(tc.s, "/cms-dashboard"))
		})
	}
}

func serve(h http.Handler, s *auth.SessionState) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/cms-dashboard?tab=paid", nil)
	if s != nil {
		req = req.WithContext(middleware.WithSession(req.Context(), *s))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPageGuard(t *testing.T) {
	g := NewGuard(models.RoleAdmin, "/login")
	h := g.Page(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	assert.Equal(t, http.StatusServiceUnavailable, serve(h, nil).Code)

	rec := serve(h, absent)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fcms-dashboard%3Ftab%3Dpaid", rec.Header().Get("Location"))

	rec = serve(h, viewer)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusOK, serve(h, admin).Code)
}

func TestAPIGuard(t *testing.T) {
	g := NewGuard(models.RoleAdmin, "/login")
	h := g.API(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, absent).Code)
	assert.Equal(t, http.StatusForbidden, serve(h, viewer).Code)
	assert.Equal(t, http.StatusNoContent, serve(h, admin).Code)
}
