package cmd

import (
	"github.com/spf13/cobra"

	"github.com/obsidiansec/personaforge/internal/observability"
)

// newListCmd creates the `list` command, which enumerates persona summaries
// for every known group.
func newListCmd() *cobra.Command {
	var bundleFile string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List persona summaries for all known threat groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			comp, err := buildComponents(cmd.Context(), bundleFile, logger)
			if err != nil {
				return err
			}

			summaries, err := comp.Library.List()
			if err != nil {
				return err
			}
			return printJSON(summaries)
		},
	}

	listCmd.Flags().StringVar(&bundleFile, "bundle-file", "", "load a local bundle file instead of the fetcher cache")
	return listCmd
}
