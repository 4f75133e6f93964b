package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainfair/internal/config"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("APP_DB_PATH", filepath.Join(dir, "app.db"))
	t.Setenv("UPLOAD_DIR", filepath.Join(dir, "uploads"))
	t.Setenv("WEB_DIR", dir)
	t.Setenv("MAIL_QUEUE", "log")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:40000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewAppServesDefaults(t *testing.T) {
	setupEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	assert.NotEmpty(t, a.jobs, "checkout sweeper must be scheduled")

	rec := serve(a.handler, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(a.handler, http.MethodGet, "/api/v1/pages/home", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(a.handler, http.MethodPost, "/api/v1/quote", `{"registration_product_id":"exhibitor","add_ons":["workshop","vip"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var q struct {
		Total json.Number `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, "977.08", q.Total.String())
}

func TestNewAppFailsOnMissingCatalog(t *testing.T) {
	dir := setupEnv(t)
	t.Setenv("CATALOG_PATH", filepath.Join(dir, "nope.yaml"))
	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = newApp(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "load catalog")
}
