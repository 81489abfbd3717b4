package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/obsidiansec/personaforge/api/schemas"
	"github.com/obsidiansec/personaforge/internal/observability"
	"github.com/obsidiansec/personaforge/internal/store"
)

// newBulkCmd creates the `bulk` command, which generates personas for the
// whole corpus and optionally persists them.
func newBulkCmd() *cobra.Command {
	var (
		bundleFile  string
		concurrency int
		persist     bool
	)

	bulkCmd := &cobra.Command{
		Use:   "bulk",
		Short: "Generate personas for every known threat group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			comp, err := buildComponents(ctx, bundleFile, logger)
			if err != nil {
				return err
			}

			if concurrency == 0 {
				concurrency = comp.Config.Bulk.Concurrency
			}
			result, err := comp.Library.GenerateAll(ctx, concurrency)
			if err != nil {
				return err
			}

			if persist {
				if err := persistPersonas(ctx, comp, logger); err != nil {
					return err
				}
			}
			return printJSON(result)
		},
	}

	bulkCmd.Flags().StringVar(&bundleFile, "bundle-file", "", "load a local bundle file instead of the fetcher cache")
	bulkCmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker count (default from config)")
	bulkCmd.Flags().BoolVar(&persist, "persist", false, "save generated personas to the configured database")
	return bulkCmd
}

// persistPersonas writes every cached persona to Postgres.
func persistPersonas(ctx context.Context, comp *components, logger *zap.Logger) error {
	if comp.Config.Database.URL == "" {
		return fmt.Errorf("database.url must be configured to persist personas")
	}

	pool, err := pgxpool.New(ctx, comp.Config.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	repo, err := store.New(ctx, pool, logger)
	if err != nil {
		return err
	}

	summaries, err := comp.Library.List()
	if err != nil {
		return err
	}
	personas := make([]*schemas.Persona, 0, len(summaries))
	for _, sum := range summaries {
		// Corpus entries resolve unambiguously by entity id; custom personas
		// are keyed by name.
		ref := sum.ID
		if sum.Provenance == schemas.ProvenanceCustom {
			ref = sum.Name
		}
		p, err := comp.Library.Resolve(ref)
		if err != nil {
			return err
		}
		personas = append(personas, p)
	}
	return repo.SavePersonas(ctx, personas)
}
