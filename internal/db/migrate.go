package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every embedded migration that has not been recorded in
// schema_migrations yet, in file name order.
func Migrate(db *sql.DB) ([]string, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at DATETIME NOT NULL)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var applied []string
	for _, name := range names {
		base := strings.TrimPrefix(name, "migrations/")
		var n int
		if err := db.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name=?`, base).Scan(&n); err != nil {
			return applied, err
		}
		if n > 0 {
			continue
		}
		b, err := migrationFS.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("read migration: %w", err)
		}
		if _, err := db.Exec(string(b)); err != nil && !isDuplicateColumnErr(err) {
			return applied, fmt.Errorf("apply migration %s: %w", base, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations(name,applied_at) VALUES(?,?)`, base, time.Now().UTC()); err != nil {
			return applied, err
		}
		applied = append(applied, base)
	}
	return applied, nil
}

func isDuplicateColumnErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}
