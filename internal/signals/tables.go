// Package signals implements the independent behavioral-signal extractors.
// Each extractor is a pure function of an entity, the intelligence store, and
// immutable keyword/weight tables; no extractor ever returns an error.
package signals

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/obsidiansec/personaforge/api/schemas"
)

// KeywordCategory maps one targeting category to its trigger keywords.
type KeywordCategory struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// MotivationRule maps technique tactics and description keywords to one
// motivation.
type MotivationRule struct {
	Motivation schemas.Motivation `yaml:"motivation"`
	Tactics    []string           `yaml:"tactics"`
	Keywords   []string           `yaml:"keywords"`
}

// Tables is the immutable heuristic configuration shared by all extractors.
// It is loaded once at startup; extractors treat it as read-only.
type Tables struct {
	Industries []KeywordCategory `yaml:"industries"`
	Regions    []KeywordCategory `yaml:"regions"`

	// Tactic sets driving the ratio heuristics.
	AdvancedTactics []string `yaml:"advanced_tactics"`
	StealthyTactics []string `yaml:"stealthy_tactics"`
	NoisyTactics    []string `yaml:"noisy_tactics"`

	// Name/tactic keywords driving the attack-speed heuristic.
	AutomationKeywords  []string `yaml:"automation_keywords"`
	PersistenceKeywords []string `yaml:"persistence_keywords"`

	Motivations []MotivationRule `yaml:"motivations"`
}

// DefaultTables returns the built-in keyword tables. Deployments tune these
// against their own corpus via LoadTables.
func DefaultTables() Tables {
	return Tables{
		Industries: []KeywordCategory{
			{Category: "Government", Keywords: []string{"government", "military", "defense", "embassy", "diplomatic", "ministry", "agency"}},
			{Category: "Financial", Keywords: []string{"bank", "financial", "finance", "payment", "credit", "treasury"}},
			{Category: "Technology", Keywords: []string{"technology", "software", "semiconductor", "cloud", "telecom"}},
			{Category: "Healthcare", Keywords: []string{"healthcare", "hospital", "medical", "pharmaceutical", "patient"}},
			{Category: "Energy", Keywords: []string{"energy", "oil", "gas", "electric", "power grid", "utility", "nuclear"}},
			{Category: "Manufacturing", Keywords: []string{"manufacturing", "industrial", "factory", "automotive"}},
			{Category: "Education", Keywords: []string{"university", "academic", "research institute", "education"}},
			{Category: "Media", Keywords: []string{"media", "journalism", "news", "broadcast", "press"}},
			{Category: "Retail", Keywords: []string{"retail", "hospitality", "restaurant", "point-of-sale", "e-commerce"}},
			{Category: "Aviation", Keywords: []string{"aviation", "airline", "aerospace", "aircraft"}},
			{Category: "Critical Infrastructure", Keywords: []string{"infrastructure", "transportation", "water", "dam", "pipeline"}},
		},
		Regions: []KeywordCategory{
			{Category: "North America", Keywords: []string{"united states", "america", "canada", "mexico", "north america"}},
			{Category: "Europe", Keywords: []string{"europe", "european", "germany", "france", "britain", "nato", "ukraine", "russia"}},
			{Category: "Asia Pacific", Keywords: []string{"asia", "china", "japan", "korea", "taiwan", "australia", "pacific"}},
			{Category: "Middle East", Keywords: []string{"middle east", "israel", "iran", "saudi", "turkey", "gulf"}},
			{Category: "Africa", Keywords: []string{"africa", "nigeria", "egypt"}},
			{Category: "South America", Keywords: []string{"south america", "brazil", "argentina", "colombia"}},
			{Category: "Russia", Keywords: []string{"russia", "russian", "soviet", "belarus", "cis"}},
		},
		AdvancedTactics: []string{"defense-evasion", "lateral-movement"},
		StealthyTactics: []string{"defense-evasion", "discovery"},
		NoisyTactics:    []string{"impact", "exfiltration"},
		AutomationKeywords: []string{
			"script", "scheduled", "automat", "command and scripting", "service execution",
		},
		PersistenceKeywords: []string{
			"persistence", "boot", "logon", "autostart", "browser extension",
		},
		Motivations: []MotivationRule{
			{
				Motivation: schemas.MotivationEspionage,
				Tactics:    []string{"collection", "credential-access"},
				Keywords:   []string{"espionage", "intelligence", "surveillance", "state-sponsored", "diplomatic"},
			},
			{
				Motivation: schemas.MotivationFinancial,
				Keywords:   []string{"financial", "bank", "money", "payment", "ransom", "cryptocurrency", "fraud"},
			},
			{
				Motivation: schemas.MotivationDisruption,
				Keywords:   []string{"disrupt", "disruption", "sabotage", "denial-of-service", "defacement"},
			},
			{
				Motivation: schemas.MotivationDestruction,
				Tactics:    []string{"impact"},
				Keywords:   []string{"destructive", "wiper", "destroy"},
			},
		},
	}
}

// LoadTables reads a YAML tables file, for deployments that tune the
// heuristics without rebuilding.
func LoadTables(path string) (Tables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("failed to read tables file: %w", err)
	}
	tables := DefaultTables()
	if err := yaml.Unmarshal(raw, &tables); err != nil {
		return Tables{}, fmt.Errorf("failed to parse tables file: %w", err)
	}
	return tables, nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
