// Package inference orchestrates the signal extractors into a scored persona
// draft with an aggregate confidence.
package inference

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/obsidiansec/personaforge/api/schemas"
	"github.com/obsidiansec/personaforge/internal/config"
	"github.com/obsidiansec/personaforge/internal/intel"
	"github.com/obsidiansec/personaforge/internal/signals"
)

// ErrNotAGroup means inference was requested for an entity that is not a
// group. That is a programmer error on the caller's side and is surfaced
// immediately rather than degraded.
var ErrNotAGroup = errors.New("entity is not a group")

// Evidence thresholds for the completeness score: the volume at which each
// field counts as fully present.
const (
	softwareSaturation = 2
	descSaturation     = 100
)

// maxConfidence caps the aggregate so a heuristic draft never presents
// itself as certain.
const maxConfidence = 0.95

// Engine derives persona drafts from the intelligence store. It is stateless
// apart from its read-only inputs and safe for concurrent use.
type Engine struct {
	store *intel.Store
	set   *signals.Set
	cfg   config.InferenceConfig
	log   *zap.Logger
}

// New creates an inference engine over the given store and heuristic tables.
func New(store *intel.Store, cfg config.InferenceConfig, tables signals.Tables, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store: store,
		set:   signals.NewSet(cfg, tables),
		cfg:   cfg,
		log:   logger.Named("inference"),
	}
}

// MinConfidence returns the configured gating default. Drafts below it are
// still produced; whether to act on them is the caller's policy.
func (e *Engine) MinConfidence() float64 { return e.cfg.MinConfidence }

// Infer runs every extractor against the group with the given id and
// assembles the draft. It fails only when the id does not resolve to a group
// entity; the heuristics themselves are total.
func (e *Engine) Infer(entityID string) (*schemas.PersonaDraft, error) {
	ent, err := e.store.Entity(entityID)
	if err != nil {
		return nil, err
	}
	if ent.Kind != schemas.KindGroup {
		return nil, fmt.Errorf("%w: %q is a %s", ErrNotAGroup, entityID, ent.Kind)
	}

	sophistication := e.set.Sophistication(ent, e.store)
	stealth := e.set.Stealth(ent, e.store)
	speed := e.set.Speed(ent, e.store)
	industries, industriesSig := e.set.TargetIndustries(ent, e.store)
	regions, regionsSig := e.set.TargetRegions(ent, e.store)
	motivations, motivationsSig := e.set.Motivations(ent, e.store)

	sigs := []schemas.Signal{sophistication, stealth, speed, industriesSig, regionsSig, motivationsSig}

	completeness := e.completeness(ent)
	// Multiplicative on purpose: sparse underlying data caps confidence even
	// when every heuristic independently looks confident.
	confidence := completeness * meanConfidence(sigs)
	if confidence < e.cfg.ConfidenceFloor {
		confidence = e.cfg.ConfidenceFloor
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	draft := &schemas.PersonaDraft{
		EntityID:       ent.ID,
		Name:           ent.Name,
		Sophistication: schemas.SophisticationLevel(sophistication.Value),
		Stealth:        schemas.StealthLevel(stealth.Value),
		Speed:          schemas.AttackSpeed(speed.Value),
		Industries:     industries,
		Regions:        regions,
		Motivations:    motivations,
		Signals:        sigs,
		Confidence:     confidence,
		Completeness:   completeness,
	}

	if confidence < e.cfg.MinConfidence {
		e.log.Warn("Draft confidence below configured minimum",
			zap.String("entity_id", ent.ID),
			zap.Float64("confidence", confidence),
			zap.Float64("minimum", e.cfg.MinConfidence),
		)
	} else {
		e.log.Debug("Draft inferred",
			zap.String("entity_id", ent.ID),
			zap.String("sophistication", sophistication.Value),
			zap.Float64("confidence", confidence),
		)
	}
	return draft, nil
}

// completeness measures the fraction of expected evidence present: technique
// count, software count, and description length, each saturating at its
// threshold.
func (e *Engine) completeness(ent schemas.Entity) float64 {
	techCount := 0
	swCount := 0
	for _, rel := range e.store.Related(ent.ID, schemas.RelUses, schemas.Forward) {
		switch rel.Kind {
		case schemas.KindTechnique:
			techCount++
		case schemas.KindSoftware:
			swCount++
		}
	}
	techTerm := capAtOne(float64(techCount) / float64(e.cfg.MinTechniques))
	swTerm := capAtOne(float64(swCount) / float64(softwareSaturation))
	descTerm := capAtOne(float64(len(ent.Description)) / float64(descSaturation))
	return (techTerm + swTerm + descTerm) / 3
}

func meanConfidence(sigs []schemas.Signal) float64 {
	if len(sigs) == 0 {
		return 0
	}
	sum := 0.0
	for _, sig := range sigs {
		sum += sig.Confidence
	}
	return sum / float64(len(sigs))
}

func capAtOne(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
