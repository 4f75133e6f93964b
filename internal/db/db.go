package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// pragmas applied to every pooled connection. WAL lets the admin
// listing read while a checkout confirmation writes.
const pragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// OpenSQLite opens (creating if needed) the database file at path and
// applies the pool limits from config.
func OpenSQLite(path string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	sqdb, err := sql.Open("sqlite", "file:"+path+"?"+pragmas)
	if err != nil {
		return nil, err
	}
	sqdb.SetMaxOpenConns(maxOpen)
	sqdb.SetMaxIdleConns(maxIdle)
	sqdb.SetConnMaxLifetime(maxLifetime)
	if err := sqdb.Ping(); err != nil {
		_ = sqdb.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return sqdb, nil
}
