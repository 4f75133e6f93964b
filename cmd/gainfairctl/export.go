package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"gainfair/internal/catalog"
	"gainfair/internal/models"
	"gainfair/internal/notify"
	"gainfair/internal/review"
)

func exportCmd(e *env) *cobra.Command {
	var (
		out          string
		tab          string
		attendeeType string
		reviewStatus string
		query        string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write registrations as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(e.cfg.CatalogPath)
			if err != nil {
				return err
			}
			sqdb, st, err := e.openStore()
			if err != nil {
				return err
			}
			defer sqdb.Close()

			// Export never sends mail; the queue is only there to satisfy the service.
			svc := review.NewService(st, cat, notify.LogQueue{Log: e.log}, e.cfg.MailReplyTo, e.log)
			f := review.Filter{
				Tab:          review.Tab(tab),
				AttendeeType: catalog.Category(attendeeType),
				ReviewStatus: models.ReviewStatus(reviewStatus),
				Q:            query,
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				fh, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
				if err != nil {
					return err
				}
				defer fh.Close()
				w = fh
			}
			if err := svc.ExportCSV(cmd.Context(), f, w); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&tab, "tab", "all", "all, free or paid")
	cmd.Flags().StringVar(&attendeeType, "attendee-type", "", "user, agent, exhibitor or sponsor")
	cmd.Flags().StringVar(&reviewStatus, "review-status", "", "pending, approved or rejected")
	cmd.Flags().StringVarP(&query, "query", "q", "", "match name, email or organization")
	return cmd
}
