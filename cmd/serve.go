package cmd

import (
	"github.com/spf13/cobra"

	"github.com/obsidiansec/personaforge/internal/observability"
	"github.com/obsidiansec/personaforge/internal/server"
)

// newServeCmd creates the `serve` command, which hosts the persona library
// over the JSON HTTP API until interrupted.
func newServeCmd() *cobra.Command {
	var (
		bundleFile string
		addr       string
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the persona library over an HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			comp, err := buildComponents(cmd.Context(), bundleFile, logger)
			if err != nil {
				return err
			}

			cfg := comp.Config.Server
			if addr != "" {
				cfg.Addr = addr
			}
			srv := server.New(cfg, comp.Library, comp.Agent, logger)
			return srv.Serve(cmd.Context())
		},
	}

	serveCmd.Flags().StringVar(&bundleFile, "bundle-file", "", "load a local bundle file instead of the fetcher cache")
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return serveCmd
}
