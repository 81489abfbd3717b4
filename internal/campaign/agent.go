// Package campaign simulates attack campaigns driven by a persona's
// operational parameters. Runs are deterministic for a given seed and produce
// log records only; nothing here touches a network.
package campaign

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obsidiansec/personaforge/api/schemas"
	"github.com/obsidiansec/personaforge/internal/intel"
)

// ErrUnknownScenario means the requested scenario name has no phase plan.
var ErrUnknownScenario = errors.New("unknown scenario")

// scenarios maps a scenario name to its ordered kill-chain phases and final
// objective. A run achieves its objective when the last phase produces at
// least one successful step.
var scenarios = map[string]struct {
	phases    []string
	objective string
}{
	"full_chain": {
		phases: []string{
			"reconnaissance", "initial-access", "execution", "persistence",
			"privilege-escalation", "defense-evasion", "credential-access",
			"discovery", "lateral-movement", "collection", "exfiltration",
		},
		objective: "exfiltrate collected data",
	},
	"ransomware": {
		phases: []string{
			"initial-access", "execution", "privilege-escalation",
			"defense-evasion", "discovery", "lateral-movement", "impact",
		},
		objective: "encrypt targets for impact",
	},
	"data_theft": {
		phases: []string{
			"initial-access", "execution", "credential-access", "discovery",
			"collection", "exfiltration",
		},
		objective: "steal targeted data",
	},
}

// Scenarios lists the supported scenario names, sorted.
func Scenarios() []string {
	out := make([]string, 0, len(scenarios))
	for name := range scenarios {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Agent runs persona-driven campaign simulations against the technique
// catalog in the store.
type Agent struct {
	store *intel.Store
	log   *zap.Logger
}

func NewAgent(store *intel.Store, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{store: store, log: logger.Named("campaign")}
}

// Run simulates one campaign. The persona's parameters drive technique
// success odds, per-phase volume, noise, and dwell time; the seed makes the
// run reproducible.
func (a *Agent) Run(p *schemas.Persona, scenario string, seed int64) (*schemas.CampaignLog, error) {
	sc, ok := scenarios[scenario]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, scenario)
	}

	rng := rand.New(rand.NewSource(seed))
	byPhase := a.techniquesByTactic(p)

	clog := &schemas.CampaignLog{
		ID:            uuid.New().String(),
		PersonaID:     p.ID,
		PersonaName:   p.Name,
		Scenario:      scenario,
		Seed:          seed,
		StartedAt:     time.Now().UTC(),
		DwellTimeDays: p.Params.DwellTimeDays,
		Objective:     sc.objective,
	}

	lastPhaseSucceeded := false
	for _, phase := range sc.phases {
		candidates := byPhase[phase]
		if len(candidates) == 0 {
			continue
		}
		count := p.Params.MaxTechniquesPerPhase
		if count > len(candidates) {
			count = len(candidates)
		}
		lastPhaseSucceeded = false
		for _, t := range pick(rng, candidates, count) {
			step := schemas.CampaignStep{
				Phase:       phase,
				TechniqueID: t.ID,
				Technique:   t.Name,
				Succeeded:   rng.Float64() < p.Params.TechniqueSuccessRate,
				Noise:       noiseFor(rng, p.Stealth),
			}
			step.Detected = a.detected(rng, step.Noise, p.Params.DetectionSensitivity)
			if step.Detected {
				clog.StepsDetected++
			}
			if step.Succeeded {
				lastPhaseSucceeded = true
			}
			clog.Steps = append(clog.Steps, step)
		}
	}
	clog.Achieved = lastPhaseSucceeded

	a.log.Info("Campaign simulated",
		zap.String("persona", p.Name),
		zap.String("scenario", scenario),
		zap.Int64("seed", seed),
		zap.Int("steps", len(clog.Steps)),
		zap.Int("detected", clog.StepsDetected),
		zap.Bool("achieved", clog.Achieved),
	)
	return clog, nil
}

// techniquesByTactic indexes the persona's attributed techniques by their
// tactic, sorted by id for deterministic selection.
func (a *Agent) techniquesByTactic(p *schemas.Persona) map[string][]schemas.Entity {
	out := make(map[string][]schemas.Entity)
	for _, id := range p.Techniques {
		ent, err := a.store.Entity(id)
		if err != nil || ent.Kind != schemas.KindTechnique || ent.Tactic == "" {
			continue
		}
		out[ent.Tactic] = append(out[ent.Tactic], ent)
	}
	for tactic := range out {
		sort.Slice(out[tactic], func(i, j int) bool { return out[tactic][i].ID < out[tactic][j].ID })
	}
	return out
}

// pick draws count distinct entries from candidates without reordering the
// caller's slice.
func pick(rng *rand.Rand, candidates []schemas.Entity, count int) []schemas.Entity {
	idx := rng.Perm(len(candidates))[:count]
	sort.Ints(idx)
	out := make([]schemas.Entity, 0, count)
	for _, i := range idx {
		out = append(out, candidates[i])
	}
	return out
}

// noiseFor biases step noise by the persona's stealth preference. Stealthy
// operators mostly stay low, noisy ones mostly run high.
func noiseFor(rng *rand.Rand, stealth schemas.StealthLevel) schemas.NoiseLevel {
	r := rng.Float64()
	switch stealth {
	case schemas.StealthStealthy:
		if r < 0.7 {
			return schemas.NoiseLow
		}
		if r < 0.95 {
			return schemas.NoiseMedium
		}
		return schemas.NoiseHigh
	case schemas.StealthNoisy:
		if r < 0.6 {
			return schemas.NoiseHigh
		}
		if r < 0.9 {
			return schemas.NoiseMedium
		}
		return schemas.NoiseLow
	default:
		if r < 0.33 {
			return schemas.NoiseLow
		}
		if r < 0.66 {
			return schemas.NoiseMedium
		}
		return schemas.NoiseHigh
	}
}

// detected rolls detection for a step. Higher noise raises the base chance;
// the persona's detection sensitivity scales it, so careful operators evade
// more often.
func (a *Agent) detected(rng *rand.Rand, noise schemas.NoiseLevel, sensitivity float64) bool {
	base := map[schemas.NoiseLevel]float64{
		schemas.NoiseLow:    0.05,
		schemas.NoiseMedium: 0.2,
		schemas.NoiseHigh:   0.5,
	}[noise]
	// sensitivity here is the operator's own caution; cautious operators
	// suppress detection odds.
	return rng.Float64() < base*(1.5-sensitivity)
}
