package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainfair/internal/catalog"
	"gainfair/internal/db"
	"gainfair/internal/models"
	"gainfair/internal/store"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("APP_DB_PATH", filepath.Join(dir, "app.db"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func openTestStore(t *testing.T, dir string) *store.Store {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(dir, "app.db"), 1, 1, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqdb.Close() })
	return store.New(sqdb)
}

func TestCatalogQuote(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "", "catalog", "quote", "exhibitor", "workshop", "vip")
	require.NoError(t, err)
	assert.Contains(t, out, "Exhibitor")
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "977.08 USD")

	_, err = run(t, "", "catalog", "quote", "nope")
	assert.ErrorIs(t, err, catalog.ErrUnknownProduct)
}

func TestMigrateIsIdempotent(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied")

	out, err = run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema is up to date")
}

func TestCreateAdminAndGrantRole(t *testing.T) {
	dir := setupEnv(t)
	_, err := run(t, "Admin-Password-1\n", "create-admin", "--password-stdin", "Ops@Example.com")
	require.NoError(t, err)

	st := openTestStore(t, dir)
	u, err := st.GetUserByEmail(context.Background(), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)

	out, err := run(t, "", "grant-role", "ops@example.com", "viewer")
	require.NoError(t, err)
	assert.Contains(t, out, "ops@example.com is now viewer")
	u, err = st.GetUserByEmail(context.Background(), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, u.Role)

	_, err = run(t, "", "grant-role", "ops@example.com", "owner")
	assert.Error(t, err)
	_, err = run(t, "short\n", "create-admin", "--password-stdin", "weak@example.com")
	assert.Error(t, err)
}

func TestSeedContentAndExport(t *testing.T) {
	dir := setupEnv(t)
	seed := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte("faqs:\n  contact_email:\n    value: info@greenpassgroup.com\n"), 0o600))

	out, err := run(t, "", "seed-content", seed)
	require.NoError(t, err)
	assert.Contains(t, out, "1 records written")

	st := openTestStore(t, dir)
	_, err = st.CreateRegistration(context.Background(), models.Registration{
		Name: "Lan Pham", Email: "lan@example.com", Phone: "0900000000", Country: "Vietnam",
		ProductID: "user_free", AttendeeType: catalog.CategoryUser, Currency: "USD",
		PaymentStatus: models.PaymentFree,
	})
	require.NoError(t, err)

	csvPath := filepath.Join(dir, "out.csv")
	_, err = run(t, "", "export", "--tab", "free", "-o", csvPath)
	require.NoError(t, err)
	b, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Name,Email,"))
	assert.Contains(t, lines[1], "lan@example.com")

	_, err = run(t, "", "export", "--tab", "bogus")
	assert.Error(t, err)
}
