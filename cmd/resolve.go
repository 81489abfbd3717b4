package cmd

import (
	"github.com/spf13/cobra"

	"github.com/obsidiansec/personaforge/internal/observability"
)

// newResolveCmd creates the `resolve` command, which generates or retrieves
// the persona for one group and prints it as JSON.
func newResolveCmd() *cobra.Command {
	var bundleFile string

	resolveCmd := &cobra.Command{
		Use:   "resolve <name-or-id>",
		Short: "Resolve a threat group to its behavioral persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			comp, err := buildComponents(cmd.Context(), bundleFile, logger)
			if err != nil {
				return err
			}

			p, err := comp.Library.Resolve(args[0])
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}

	resolveCmd.Flags().StringVar(&bundleFile, "bundle-file", "", "load a local bundle file instead of the fetcher cache")
	return resolveCmd
}
