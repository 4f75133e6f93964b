package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gainfair/internal/db"
)

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sqdb, err := db.OpenSQLite(e.cfg.DBPath, e.cfg.DBMaxOpenConns, e.cfg.DBMaxIdleConns, e.cfg.DBConnMaxLifetime)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer sqdb.Close()
			applied, err := db.Migrate(sqdb)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
}
