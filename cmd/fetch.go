package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/obsidiansec/personaforge/internal/config"
	"github.com/obsidiansec/personaforge/internal/intel"
	"github.com/obsidiansec/personaforge/internal/observability"
)

// newFetchCmd creates the `fetch` command, which refreshes the cached
// intelligence bundle.
func newFetchCmd() *cobra.Command {
	var force bool

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download or refresh the cached intelligence bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			fetcher := intel.NewFetcher(cfg.Fetcher, logger)
			if !force && !fetcher.Stale() {
				logger.Info("Bundle cache is fresh; nothing to do",
					zap.String("cache_dir", cfg.Fetcher.CacheDir))
				return nil
			}
			return fetcher.Refresh(cmd.Context())
		},
	}

	fetchCmd.Flags().BoolVar(&force, "force", false, "re-download even if the cache is fresh")
	return fetchCmd
}
