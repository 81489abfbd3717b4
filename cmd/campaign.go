package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/obsidiansec/personaforge/internal/campaign"
	"github.com/obsidiansec/personaforge/internal/observability"
)

// newCampaignCmd creates the `campaign` command, which simulates an attack
// campaign driven by a persona's operational parameters.
func newCampaignCmd() *cobra.Command {
	var (
		bundleFile string
		scenario   string
		seed       int64
	)

	campaignCmd := &cobra.Command{
		Use:   "campaign <persona-name-or-id>",
		Short: fmt.Sprintf("Simulate an attack campaign (scenarios: %s)", strings.Join(campaign.Scenarios(), ", ")),
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
			if seed == 0 {
				seed = time.Now().UnixNano()
			}

			clog, err := comp.Agent.Run(p, scenario, seed)
			if err != nil {
				return err
			}
			return printJSON(clog)
		},
	}

	campaignCmd.Flags().StringVar(&bundleFile, "bundle-file", "", "load a local bundle file instead of the fetcher cache")
	campaignCmd.Flags().StringVar(&scenario, "scenario", "full_chain", "campaign scenario to run")
	campaignCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one from the clock)")
	return campaignCmd
}
