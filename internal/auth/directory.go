package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gainfair/internal/config"
)

// RoleDirectory is an optional external source of staff role claims.
// Role reports found=false when the directory has no entry for email.
type RoleDirectory interface {
	Role(ctx context.Context, email string) (role string, found bool, err error)
	SetRole(ctx context.Context, email, role string) error
}

// LocalDirectory defers to the role stored on the local user row.
type LocalDirectory struct{}

func (LocalDirectory) Role(ctx context.Context, email string) (string, bool, error) {
	return "", false, nil
}

func (LocalDirectory) SetRole(ctx context.Context, email, role string) error { return nil }

var identRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLDirectory reads role claims from a shared staff table in MySQL or
// Postgres.
type SQLDirectory struct {
	db        *sql.DB
	driver    string
	table     string
	emailCol  string
	roleCol   string
	activeCol string
}

func NewRoleDirectory(cfg config.Config) (RoleDirectory, error) {
	if cfg.RoleDirectoryDriver == "" {
		return LocalDirectory{}, nil
	}
	driver := cfg.RoleDirectoryDriver
	if driver == "postgres" {
		driver = "pgx"
	}
	for _, ident := range []string{cfg.RoleDirectoryTable, cfg.RoleDirectoryEmailCol, cfg.RoleDirectoryRoleCol} {
		if !identRx.MatchString(ident) {
			return nil, fmt.Errorf("invalid role directory identifier %q", ident)
		}
	}
	if cfg.RoleDirectoryActiveCol != "" && !identRx.MatchString(cfg.RoleDirectoryActiveCol) {
		return nil, fmt.Errorf("invalid role directory identifier %q", cfg.RoleDirectoryActiveCol)
	}
	db, err := sql.Open(driver, cfg.RoleDirectoryDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	return &SQLDirectory{
		db:        db,
		driver:    driver,
		table:     cfg.RoleDirectoryTable,
		emailCol:  cfg.RoleDirectoryEmailCol,
		roleCol:   cfg.RoleDirectoryRoleCol,
		activeCol: cfg.RoleDirectoryActiveCol,
	}, nil
}

func (d *SQLDirectory) Role(ctx context.Context, email string) (string, bool, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s=%s", d.roleCol, d.table, d.emailCol, d.ph(1))
	if d.activeCol != "" {
		q += fmt.Sprintf(" AND %s=%s", d.activeCol, d.ph(2))
	}
	args := []any{strings.ToLower(strings.TrimSpace(email))}
	if d.activeCol != "" {
		args = append(args, 1)
	}
	var role sql.NullString
	err := d.db.QueryRowContext(ctx, q, args...).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(role.String), true, nil
}

func (d *SQLDirectory) SetRole(ctx context.Context, email, role string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	updateQ := fmt.Sprintf("UPDATE %s SET %s=%s WHERE %s=%s", d.table, d.roleCol, d.ph(1), d.emailCol, d.ph(2))
	res, err := d.db.ExecContext(ctx, updateQ, role, email)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}
	cols := []string{d.emailCol, d.roleCol}
	vals := []any{email, role}
	if d.activeCol != "" {
		cols = append(cols, d.activeCol)
		vals = append(vals, 1)
	}
	phs := make([]string, len(vals))
	for i := range vals {
		phs[i] = d.ph(i + 1)
	}
	insertQ := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.table, strings.Join(cols, ","), strings.Join(phs, ","))
	if _, err := d.db.ExecContext(ctx, insertQ, vals...); err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique") {
			_, err = d.db.ExecContext(ctx, updateQ, role, email)
		}
		return err
	}
	return nil
}

func (d *SQLDirectory) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

func (d *SQLDirectory) Close() error { return d.db.Close() }

func (d *SQLDirectory) ph(i int) string {
	if d.driver == "pgx" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}
