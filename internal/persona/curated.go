// Package persona composes final behavioral profiles from inference drafts,
// curated overrides, and user-derived custom variants, and memoizes them in a
// process-scoped library.
package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/obsidiansec/personaforge/api/schemas"
)

// Override is one curated (premium) configuration for a group. Every field is
// optional: an unset field falls back to the auto-generated draft value, so
// partial curation is allowed.
type Override struct {
	Description    string                      `yaml:"description,omitempty"`
	Sophistication schemas.SophisticationLevel `yaml:"sophistication,omitempty"`
	Stealth        schemas.StealthLevel        `yaml:"stealth,omitempty"`
	Speed          schemas.AttackSpeed         `yaml:"speed,omitempty"`
	Industries     []string                    `yaml:"industries,omitempty"`
	Regions        []string                    `yaml:"regions,omitempty"`
	Motivations    []schemas.Motivation        `yaml:"motivations,omitempty"`
}

// CuratedTable maps a group's canonical name (case-insensitive) or entity id
// to its curated override.
type CuratedTable map[string]Override

// Lookup finds the override for an entity by id or name.
func (t CuratedTable) Lookup(ent schemas.Entity) (Override, bool) {
	if o, ok := t[ent.ID]; ok {
		return o, true
	}
	o, ok := t[strings.ToLower(ent.Name)]
	return o, ok
}

// normalize lowercases all non-id keys so lookups are case-insensitive.
func (t CuratedTable) normalize() CuratedTable {
	out := make(CuratedTable, len(t))
	for key, o := range t {
		out[strings.ToLower(key)] = o
	}
	return out
}

// DefaultCuratedTable returns the built-in premium configurations for
// well-researched groups. Deployments extend or replace it via
// LoadCuratedFile.
func DefaultCuratedTable() CuratedTable {
	return CuratedTable{
		"apt29": {
			Description:    "Russian state-sponsored group (SVR) known for sophisticated, stealthy operations",
			Sophistication: schemas.SophisticationAdvanced,
			Stealth:        schemas.StealthStealthy,
			Speed:          schemas.SpeedSlow,
			Industries:     []string{"Government", "Technology", "Energy", "Healthcare"},
			Regions:        []string{"North America", "Europe"},
			Motivations:    []schemas.Motivation{schemas.MotivationEspionage},
		},
		"apt28": {
			Description:    "Russian military intelligence (GRU) with an aggressive operational style",
			Sophistication: schemas.SophisticationAdvanced,
			Stealth:        schemas.StealthBalanced,
			Speed:          schemas.SpeedModerate,
			Industries:     []string{"Government", "Aviation", "Media"},
			Regions:        []string{"Europe", "North America", "Middle East"},
			Motivations:    []schemas.Motivation{schemas.MotivationEspionage, schemas.MotivationDisruption},
		},
		"lazarus group": {
			Description:    "North Korean state-sponsored group known for destructive attacks and financial theft",
			Sophistication: schemas.SophisticationAdvanced,
			Stealth:        schemas.StealthNoisy,
			Speed:          schemas.SpeedAggressive,
			Industries:     []string{"Financial", "Technology", "Media"},
			Regions:        []string{"Global"},
			Motivations: []schemas.Motivation{
				schemas.MotivationFinancial, schemas.MotivationDisruption,
				schemas.MotivationEspionage, schemas.MotivationDestruction,
			},
		},
		"fin7": {
			Description:    "Financially motivated cybercriminal group targeting payment card data",
			Sophistication: schemas.SophisticationHigh,
			Stealth:        schemas.StealthStealthy,
			Speed:          schemas.SpeedModerate,
			Industries:     []string{"Retail", "Financial"},
			Regions:        []string{"North America", "Europe"},
			Motivations:    []schemas.Motivation{schemas.MotivationFinancial},
		},
		"sandworm team": {
			Description:    "Russian group known for destructive attacks on critical infrastructure",
			Sophistication: schemas.SophisticationAdvanced,
			Stealth:        schemas.StealthNoisy,
			Speed:          schemas.SpeedAggressive,
			Industries:     []string{"Energy", "Critical Infrastructure", "Government"},
			Regions:        []string{"Europe", "North America"},
			Motivations: []schemas.Motivation{
				schemas.MotivationDisruption, schemas.MotivationDestruction, schemas.MotivationEspionage,
			},
		},
	}
}

// LoadCuratedFile reads a curated override table from a YAML file.
func LoadCuratedFile(path string) (CuratedTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curated file: %w", err)
	}
	var table CuratedTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("failed to parse curated file: %w", err)
	}
	return table.normalize(), nil
}
