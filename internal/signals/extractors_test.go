package signals

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/obsidiansec/personaforge/api/schemas"
	"github.com/obsidiansec/personaforge/internal/config"
	"github.com/obsidiansec/personaforge/internal/intel"
)

// buildStore assembles a store around a single group with the given
// description and technique/software objects, all attributed to the group.
func buildStore(t *testing.T, description string, objects ...schemas.RawObject) (*intel.Store, schemas.Entity) {
	t.Helper()

	group := schemas.RawObject{
		ID: "G1", Kind: "group", Name: "Test Group", Description: description,
	}
	for _, obj := range objects {
		group.Relationships = append(group.Relationships, schemas.RawRelationship{
			Kind: schemas.RelUses, TargetID: obj.ID,
		})
	}
	bundle := schemas.Bundle{Objects: append([]schemas.RawObject{
		group,
		// A baseline technique is always present so minimal fixtures still
		// satisfy the loader's kind requirements.
		{ID: "T-base", Kind: "technique", Name: "Baseline", Tactic: "reconnaissance"},
	}, objects...)}

	store, err := intel.Load(bundle, zap.NewNop())
	require.NoError(t, err)
	ent, err := store.Entity("G1")
	require.NoError(t, err)
	return store, ent
}

// nTechniques produces n technique objects spread evenly over the given
// tactics.
func nTechniques(n int, tactics ...string) []schemas.RawObject {
	out := make([]schemas.RawObject, n)
	for i := 0; i < n; i++ {
		out[i] = schemas.RawObject{
			ID:     fmt.Sprintf("T%03d", i),
			Kind:   "technique",
			Name:   fmt.Sprintf("Technique %d", i),
			Tactic: tactics[i%len(tactics)],
		}
	}
	return out
}

func defaultSet() *Set {
	return NewSet(config.NewDefaultConfig().Inference, DefaultTables())
}

func TestSophistication(t *testing.T) {
	t.Parallel()
	set := defaultSet()

	t.Run("no evidence is low", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "")
		sig := set.Sophistication(ent, store)
		assert.Equal(t, string(schemas.SophisticationLow), sig.Value)
		assert.Zero(t, sig.Strength)
	})

	t.Run("large stealthy arsenal with custom tooling is advanced", func(t *testing.T) {
		t.Parallel()
		objects := nTechniques(80, "defense-evasion", "discovery")
		objects = append(objects, schemas.RawObject{
			ID: "S1", Kind: "software", Name: "Bespoke", Tags: []string{"custom"},
		})
		store, ent := buildStore(t, "A capable operator.", objects...)

		sig := set.Sophistication(ent, store)
		// 80 techniques saturate the count term; half carry an advanced
		// tactic; the custom tool maxes the tooling term.
		assert.InDelta(t, 0.825, sig.Strength, 1e-9)
		assert.Equal(t, string(schemas.SophisticationAdvanced), sig.Value)
	})

	t.Run("boundary score rounds up", func(t *testing.T) {
		t.Parallel()
		// Custom tooling alone lands exactly on the low/medium boundary.
		store, ent := buildStore(t, "",
			schemas.RawObject{ID: "S1", Kind: "software", Name: "Bespoke", Tags: []string{"custom"}})

		sig := set.Sophistication(ent, store)
		assert.InDelta(t, 0.25, sig.Strength, 1e-9)
		assert.Equal(t, string(schemas.SophisticationMedium), sig.Value)
	})
}

func TestStealth(t *testing.T) {
	t.Parallel()
	set := defaultSet()

	t.Run("stealthy tactics dominate", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "", nTechniques(10, "defense-evasion", "discovery")...)
		sig := set.Stealth(ent, store)
		assert.Equal(t, string(schemas.StealthStealthy), sig.Value)
		assert.InDelta(t, 1.0, sig.Strength, 1e-9)
	})

	t.Run("noisy tactics dominate", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "", nTechniques(10, "impact", "exfiltration")...)
		sig := set.Stealth(ent, store)
		assert.Equal(t, string(schemas.StealthNoisy), sig.Value)
	})

	t.Run("no classified tactics is balanced", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "", nTechniques(4, "execution")...)
		sig := set.Stealth(ent, store)
		assert.Equal(t, string(schemas.StealthBalanced), sig.Value)
		assert.InDelta(t, 0.5, sig.Strength, 1e-9)
	})
}

func TestSpeed(t *testing.T) {
	t.Parallel()
	set := defaultSet()

	t.Run("automation heavy is aggressive", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "",
			schemas.RawObject{ID: "T1", Kind: "technique", Name: "Scheduled Task", Tactic: "execution"},
			schemas.RawObject{ID: "T2", Kind: "technique", Name: "Service Execution", Tactic: "execution"},
		)
		sig := set.Speed(ent, store)
		assert.Equal(t, string(schemas.SpeedAggressive), sig.Value)
	})

	t.Run("persistence heavy is slow", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "",
			schemas.RawObject{ID: "T1", Kind: "technique", Name: "Boot or Logon Autostart Execution", Tactic: "persistence"},
			schemas.RawObject{ID: "T2", Kind: "technique", Name: "Browser Extension", Tactic: "persistence"},
		)
		sig := set.Speed(ent, store)
		assert.Equal(t, string(schemas.SpeedSlow), sig.Value)
	})

	t.Run("no keyword hits is moderate", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "",
			schemas.RawObject{ID: "T1", Kind: "technique", Name: "Phishing", Tactic: "initial-access"},
		)
		sig := set.Speed(ent, store)
		assert.Equal(t, string(schemas.SpeedModerate), sig.Value)
	})

	t.Run("cutoffs come from configuration", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewDefaultConfig().Inference
		cfg.AggressiveRatio = 0.4
		cfg.SlowRatio = 0.1
		eager := NewSet(cfg, DefaultTables())

		// One automation hit against one persistence hit: moderate under the
		// default cutoffs, aggressive under the lowered one.
		store, ent := buildStore(t, "",
			schemas.RawObject{ID: "T1", Kind: "technique", Name: "Scheduled Task", Tactic: "execution"},
			schemas.RawObject{ID: "T2", Kind: "technique", Name: "Boot or Logon Autostart Execution", Tactic: "persistence"},
		)
		assert.Equal(t, string(schemas.SpeedModerate), set.Speed(ent, store).Value)
		assert.Equal(t, string(schemas.SpeedAggressive), eager.Speed(ent, store).Value)
	})
}

func TestTargetIndustries(t *testing.T) {
	t.Parallel()
	set := defaultSet()

	t.Run("keywords accumulate strength", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "Targets bank and financial payment processors.")
		matches, sig := set.TargetIndustries(ent, store)
		require.Contains(t, matches, "Financial")
		// Repeated keyword hits saturate at 1.0.
		assert.InDelta(t, 1.0, matches["Financial"], 1e-9)
		assert.Equal(t, "1 industries", sig.Value)
	})

	t.Run("no match yields empty map", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "An actor of unknown focus.")
		matches, _ := set.TargetIndustries(ent, store)
		assert.Empty(t, matches)
	})
}

func TestTargetRegions(t *testing.T) {
	t.Parallel()
	set := defaultSet()

	t.Run("no match defaults to Global", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "An actor of unknown focus.")
		matches, _ := set.TargetRegions(ent, store)
		assert.Equal(t, map[string]float64{RegionGlobal: 1.0}, matches)
	})

	t.Run("one keyword may match several regions", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "Operations attributed to Russia.")
		matches, _ := set.TargetRegions(ent, store)
		assert.Contains(t, matches, "Russia")
		assert.Contains(t, matches, "Europe")
	})
}

func TestMotivations(t *testing.T) {
	t.Parallel()
	set := defaultSet()

	t.Run("tactic driven", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "", nTechniques(2, "impact")...)
		matched, _ := set.Motivations(ent, store)
		assert.Contains(t, matched, schemas.MotivationDestruction)
	})

	t.Run("keyword driven", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "Deploys ransom demands against victims.")
		matched, _ := set.Motivations(ent, store)
		assert.Contains(t, matched, schemas.MotivationFinancial)
	})

	t.Run("no evidence matches nothing", func(t *testing.T) {
		t.Parallel()
		store, ent := buildStore(t, "")
		matched, sig := set.Motivations(ent, store)
		assert.Empty(t, matched)
		assert.Zero(t, sig.Strength)
	})

	t.Run("empty rule table yields zero strength", func(t *testing.T) {
		t.Parallel()
		tables := DefaultTables()
		tables.Motivations = nil
		bare := NewSet(config.NewDefaultConfig().Inference, tables)

		store, ent := buildStore(t, "Deploys ransom demands against victims.")
		matched, sig := bare.Motivations(ent, store)
		assert.Empty(t, matched)
		assert.Zero(t, sig.Strength)
	})
}

func TestEvidenceConfidence(t *testing.T) {
	t.Parallel()
	set := defaultSet()

	t.Run("no evidence degrades to the floor", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 0.1, set.evidenceConfidence(0, 0), 1e-9)
	})

	t.Run("full evidence reaches 1.0", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 1.0, set.evidenceConfidence(5, 200), 1e-9)
	})

	t.Run("monotonic in technique count", func(t *testing.T) {
		t.Parallel()
		prev := 0.0
		for n := 0; n <= 6; n++ {
			c := set.evidenceConfidence(n, 0)
			assert.GreaterOrEqual(t, c, prev)
			prev = c
		}
	})
}
