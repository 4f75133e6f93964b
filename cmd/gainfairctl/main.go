package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gainfair/internal/config"
	"gainfair/internal/db"
	"gainfair/internal/logging"
	"gainfair/internal/store"
	"gainfair/internal/version"
)

// env is what every subcommand starts from.
type env struct {
	cfg config.Config
	log zerolog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "gainfairctl",
		Short:         "Operator tool for the GAIN FAIR registration server",
		Version:       version.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			e.cfg = cfg
			e.log = logging.NewWithWriter(cfg, os.Stderr)
			return nil
		},
	}

	root.AddCommand(migrateCmd(e))
	root.AddCommand(createAdminCmd(e))
	root.AddCommand(grantRoleCmd(e))
	root.AddCommand(seedContentCmd(e))
	root.AddCommand(exportCmd(e))
	root.AddCommand(catalogCmd(e))
	return root
}

// openStore opens the configured database and brings the schema up to
// date. The caller closes the returned handle.
func (e *env) openStore() (*sql.DB, *store.Store, error) {
	sqdb, err := db.OpenSQLite(e.cfg.DBPath, e.cfg.DBMaxOpenConns, e.cfg.DBMaxIdleConns, e.cfg.DBConnMaxLifetime)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Migrate(sqdb); err != nil {
		sqdb.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return sqdb, store.New(sqdb), nil
}
