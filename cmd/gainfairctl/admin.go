package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gainfair/internal/auth"
	"gainfair/internal/models"
)

func createAdminCmd(e *env) *cobra.Command {
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "create-admin <email>",
		Short: "Create an admin account or reset an existing one",
		Long: `Create an admin account, or reset the password and role of an
existing account with the same email. The password is read from
GAINFAIR_ADMIN_PASSWORD, or from the first line of stdin with
--password-stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := strings.TrimSpace(args[0])
			if email == "" || !strings.Contains(email, "@") {
				return fmt.Errorf("invalid email %q", args[0])
			}
			pw := os.Getenv("GAINFAIR_ADMIN_PASSWORD")
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			if err := auth.CheckPasswordPolicy(pw, e.cfg.PasswordMinLength, e.cfg.PasswordMaxLength); err != nil {
				return err
			}
			hash, err := auth.HashPassword(pw)
			if err != nil {
				return err
			}

			sqdb, st, err := e.openStore()
			if err != nil {
				return err
			}
			defer sqdb.Close()
			if err := st.EnsureAdmin(cmd.Context(), email, hash); err != nil {
				return fmt.Errorf("save admin: %w", err)
			}
			e.log.Info().Str("email", strings.ToLower(email)).Msg("admin account ready")
			return nil
		},
	}
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func grantRoleCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "grant-role <email> <admin|viewer>",
		Short: "Change the role of an existing account",
		Long: `Change the role of an existing account. The role is also written to
the external role directory when one is configured, and every open
session of the account is revoked.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := strings.ToLower(strings.TrimSpace(args[1]))
			if role != models.RoleAdmin && role != models.RoleViewer {
				return fmt.Errorf("unknown role %q", args[1])
			}
			sqdb, st, err := e.openStore()
			if err != nil {
				return err
			}
			defer sqdb.Close()
			dir, err := auth.NewRoleDirectory(e.cfg)
			if err != nil {
				return err
			}
			if c, ok := dir.(io.Closer); ok {
				defer c.Close()
			}
			if err := auth.NewProvider(e.cfg, st, dir, e.log).GrantRole(cmd.Context(), args[0], role); err != nil {
				return fmt.Errorf("grant role: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", strings.ToLower(strings.TrimSpace(args[0])), role)
			return nil
		},
	}
}
