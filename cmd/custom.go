package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obsidiansec/personaforge/api/schemas"
	"github.com/obsidiansec/personaforge/internal/observability"
	"github.com/obsidiansec/personaforge/internal/persona"
)

// newCustomCmd creates the `custom` command, which derives a named variant of
// an existing persona.
func newCustomCmd() *cobra.Command {
	var (
		bundleFile    string
		base          string
		overridesFile string
		stealth       string
		speed         string
	)

	customCmd := &cobra.Command{
		Use:   "custom <name>",
		Short: "Create a custom persona derived from an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			comp, err := buildComponents(cmd.Context(), bundleFile, logger)
			if err != nil {
				return err
			}

			var overrides persona.CustomOverrides
			if overridesFile != "" {
				raw, err := os.ReadFile(overridesFile)
				if err != nil {
					return fmt.Errorf("failed to read overrides file: %w", err)
				}
				if err := json.Unmarshal(raw, &overrides); err != nil {
					return fmt.Errorf("failed to parse overrides file: %w", err)
				}
			}
			if stealth != "" {
				overrides.Stealth = schemas.StealthLevel(stealth)
			}
			if speed != "" {
				overrides.Speed = schemas.AttackSpeed(speed)
			}

			p, err := comp.Library.CreateCustom(args[0], base, overrides)
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}

	customCmd.Flags().StringVar(&bundleFile, "bundle-file", "", "load a local bundle file instead of the fetcher cache")
	customCmd.Flags().StringVar(&base, "base", "", "base persona name or id (required)")
	customCmd.Flags().StringVar(&overridesFile, "overrides", "", "JSON file of field overrides")
	customCmd.Flags().StringVar(&stealth, "stealth", "", "override stealth level (noisy, balanced, stealthy)")
	customCmd.Flags().StringVar(&speed, "speed", "", "override attack speed (slow, moderate, aggressive)")
	_ = customCmd.MarkFlagRequired("base")
	return customCmd
}
