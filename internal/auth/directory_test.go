package auth

import (
	"testing"

	"gainfair/internal/config"
)

func TestNewRoleDirectoryDefaultsToLocal(t *testing.T) {
	dir, err := NewRoleDirectory(config.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := dir.(LocalDirectory); !ok {
		t.Fatalf("expected LocalDirectory, got %T", dir)
	}
}

func TestNewRoleDirectoryRejectsBadIdentifiers(t *testing.T) {
	cfg := config.Config{
		RoleDirectoryDriver:   "mysql",
		RoleDirectoryDSN:      "user:pass@tcp(127.0.0.1:3306)/staff",
		RoleDirectoryTable:    "staff; DROP TABLE users",
		RoleDirectoryEmailCol: "email",
		RoleDirectoryRoleCol:  "user_role",
	}
	if _, err := NewRoleDirectory(cfg); err == nil {
		t.Fatalf("expected identifier validation error")
	}
}

func TestSQLDirectoryPlaceholders(t *testing.T) {
	cfg := config.Config{
		RoleDirectoryDriver:   "postgres",
		RoleDirectoryDSN:      "postgres://u:p@127.0.0.1:5432/staff",
		RoleDirectoryTable:    "public.staff",
		RoleDirectoryEmailCol: "email",
		RoleDirectoryRoleCol:  "user_role",
	}
	dir, err := NewRoleDirectory(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sd := dir.(*SQLDirectory)
	t.Cleanup(func() { _ = sd.Close() })
	if sd.driver != "pgx" || sd.ph(2) != "$2" {
		t.Fatalf("unexpected postgres placeholder: driver=%s ph=%s", sd.driver, sd.ph(2))
	}
	my := &SQLDirectory{driver: "mysql"}
	if my.ph(2) != "?" {
		t.Fatalf("unexpected mysql placeholder %s", my.ph(2))
	}
}
