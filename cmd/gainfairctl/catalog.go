package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gainfair/internal/catalog"
)

func catalogCmd(e *env) *cobra.Command {
	var file string
	load := func() (*catalog.Catalog, error) {
		if file != "" {
			return catalog.Load(file)
		}
		return catalog.Load(e.cfg.CatalogPath)
	}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the registration catalog",
	}
	cmd.PersistentFlags().StringVarP(&file, "file", "f", "", "catalog file (default CATALOG_PATH or the built-in catalog)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Validate the catalog and print it as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := load()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cat); err != nil {
				return err
			}
			return enc.Close()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "quote <product-id> [add-on-id...]",
		Short: "Price a product with optional add-ons",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := load()
			if err != nil {
				return err
			}
			q, err := cat.Quote(args[0], args[1:])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "%s\t%s %s\n", q.Product.Label, q.Product.Amount, q.Currency)
			for _, a := range q.AddOns {
				fmt.Fprintf(tw, "+ %s\t%s %s\n", a.Name, a.SettlementPrice, q.Currency)
			}
			fmt.Fprintf(tw, "total\t%s %s\n", q.Total, q.Currency)
			return tw.Flush()
		},
	})
	return cmd
}
