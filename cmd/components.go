package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/obsidiansec/personaforge/internal/campaign"
	"github.com/obsidiansec/personaforge/internal/config"
	"github.com/obsidiansec/personaforge/internal/inference"
	"github.com/obsidiansec/personaforge/internal/intel"
	"github.com/obsidiansec/personaforge/internal/persona"
	"github.com/obsidiansec/personaforge/internal/signals"
)

// components bundles the loaded pipeline shared by every subcommand.
type components struct {
	Config  *config.Config
	Store   *intel.Store
	Engine  *inference.Engine
	Library *persona.Library
	Agent   *campaign.Agent
}

// buildComponents loads the bundle (fetching it if the cache is stale or
// missing), builds the store, and wires the engine and library. bundleFile,
// when non-empty, bypasses the fetcher and loads a local file directly.
func buildComponents(ctx context.Context, bundleFile string, logger *zap.Logger) (*components, error) {
	cfg, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}

	path := bundleFile
	if path == "" {
		fetcher := intel.NewFetcher(cfg.Fetcher, logger)
		path, err = fetcher.Ensure(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain intelligence bundle: %w", err)
		}
	}

	bundle, err := intel.LoadBundleFile(path)
	if err != nil {
		return nil, err
	}
	store, err := intel.Load(bundle, logger)
	if err != nil {
		return nil, err
	}

	tables := signals.DefaultTables()
	if cfg.Inference.TablesFile != "" {
		tables, err = signals.LoadTables(cfg.Inference.TablesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load keyword tables: %w", err)
		}
	}

	curated := persona.DefaultCuratedTable()
	if cfg.Curated.File != "" {
		curated, err = persona.LoadCuratedFile(cfg.Curated.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load curated overrides: %w", err)
		}
	}

	engine := inference.New(store, cfg.Inference, tables, logger)
	library := persona.NewLibrary(store, engine, curated, logger)
	agent := campaign.NewAgent(store, logger)

	logger.Info("Intelligence loaded",
		zap.String("bundle", path),
		zap.Int("entities", store.Len()),
		zap.Int("dropped_edges", store.DroppedEdges()),
	)
	return &components{
		Config:  cfg,
		Store:   store,
		Engine:  engine,
		Library: library,
		Agent:   agent,
	}, nil
}

// printJSON renders a value as indented JSON on stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
