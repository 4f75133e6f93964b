package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gainfair/internal/content"
)

func seedContentCmd(e *env) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "seed-content <file.yaml>",
		Short: "Load page content records from a YAML file",
		Long: `Load page content records from a YAML file shaped as

  home:
    hero_title:
      value: Your Future Starts at
    hero_video_url:
      type: video_url
      value: https://cdn.example.com/hero.mp4

Keys that already have a stored record are left alone unless
--overwrite is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			seed, err := content.ParseSeed(b)
			if err != nil {
				return err
			}
			templates, err := content.LoadTemplates(e.cfg.ContentTemplatesPath)
			if err != nil {
				return err
			}
			repo, closeRepo, err := e.contentRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			n, err := content.NewService(repo, templates, e.log).Seed(cmd.Context(), seed, overwrite)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records written\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace records that already exist")
	return cmd
}

// contentRepository opens the configured content backend.
func (e *env) contentRepository(ctx context.Context) (content.Repository, func(), error) {
	if e.cfg.ContentBackend == "mongo" {
		client, err := content.OpenMongo(ctx, e.cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		repo := content.NewMongoRepository(client.Database(e.cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil
	}
	sqdb, st, err := e.openStore()
	if err != nil {
		return nil, nil, err
	}
	return st.Content(), func() { sqdb.Close() }, nil
}
