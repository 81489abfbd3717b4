package signals

import (
	"fmt"
	"strings"

	"github.com/obsidiansec/personaforge/api/schemas"
	"github.com/obsidiansec/personaforge/internal/config"
	"github.com/obsidiansec/personaforge/internal/intel"
)

// Signal dimension names.
const (
	DimSophistication = "sophistication"
	DimStealth        = "stealth"
	DimSpeed          = "speed"
	DimIndustries     = "industries"
	DimRegions        = "regions"
	DimMotivations    = "motivations"
)

// RegionGlobal is the undetermined-region default. It means "no regional
// evidence", which is distinct from "known to target everything".
const RegionGlobal = "Global"

// Set binds the extractors to one immutable tables/constants pair. All
// methods are pure with respect to their inputs and safe for concurrent use.
type Set struct {
	cfg    config.InferenceConfig
	tables Tables

	advanced    map[string]struct{}
	stealthy    map[string]struct{}
	noisy       map[string]struct{}
	motivTactic map[schemas.Motivation]map[string]struct{}
}

// NewSet builds an extractor set from the inference constants and tables.
func NewSet(cfg config.InferenceConfig, tables Tables) *Set {
	s := &Set{
		cfg:         cfg,
		tables:      tables,
		advanced:    toSet(tables.AdvancedTactics),
		stealthy:    toSet(tables.StealthyTactics),
		noisy:       toSet(tables.NoisyTactics),
		motivTactic: make(map[schemas.Motivation]map[string]struct{}),
	}
	for _, rule := range tables.Motivations {
		s.motivTactic[rule.Motivation] = toSet(rule.Tactics)
	}
	return s
}

// techniques returns the technique entities attributed to the given entity.
func techniques(ent schemas.Entity, store *intel.Store) []schemas.Entity {
	var out []schemas.Entity
	for _, rel := range store.Related(ent.ID, schemas.RelUses, schemas.Forward) {
		if rel.Kind == schemas.KindTechnique {
			out = append(out, rel)
		}
	}
	return out
}

// software returns the software entities attributed to the given entity.
func software(ent schemas.Entity, store *intel.Store) []schemas.Entity {
	var out []schemas.Entity
	for _, rel := range store.Related(ent.ID, schemas.RelUses, schemas.Forward) {
		if rel.Kind == schemas.KindSoftware {
			out = append(out, rel)
		}
	}
	return out
}

// evidenceConfidence converts evidence volume into a per-signal confidence:
// 1.0 when the technique count meets the threshold and a description exists,
// degrading linearly toward the floor as evidence shrinks. Never zero: total
// absence of a signal still yields a usable degraded default.
func (s *Set) evidenceConfidence(techniqueCount, descriptionLen int) float64 {
	techTerm := float64(techniqueCount) / float64(s.cfg.MinTechniques)
	if techTerm > 1 {
		techTerm = 1
	}
	descTerm := 0.0
	if descriptionLen > 0 {
		descTerm = 1.0
	}
	evidence := 0.7*techTerm + 0.3*descTerm
	return s.cfg.ConfidenceFloor + (1-s.cfg.ConfidenceFloor)*evidence
}

// Sophistication scores technique volume, advanced-tactic ratio, and custom
// tooling into a weighted sum, then buckets the result. A score landing
// exactly on a bucket boundary rounds up: for defensive simulation it is
// safer to overestimate an adversary than underestimate one.
func (s *Set) Sophistication(ent schemas.Entity, store *intel.Store) schemas.Signal {
	techs := techniques(ent, store)
	sw := software(ent, store)

	countTerm := float64(len(techs)) / float64(s.cfg.TechniqueSaturation)
	if countTerm > 1 {
		countTerm = 1
	}

	advancedCount := 0
	for _, t := range techs {
		if _, ok := s.advanced[t.Tactic]; ok {
			advancedCount++
		}
	}
	advRatio := 0.0
	if len(techs) > 0 {
		advRatio = float64(advancedCount) / float64(len(techs))
	}

	customTerm := 0.0
	for _, tool := range sw {
		if tool.HasTag("custom") {
			customTerm = 1.0
			break
		}
	}

	score := s.cfg.TechniqueCountWeight*countTerm +
		s.cfg.AdvancedRatioWeight*advRatio +
		s.cfg.CustomToolingWeight*customTerm

	var level schemas.SophisticationLevel
	switch {
	case score < 0.25:
		level = schemas.SophisticationLow
	case score < 0.5:
		level = schemas.SophisticationMedium
	case score < 0.75:
		level = schemas.SophisticationHigh
	default:
		level = schemas.SophisticationAdvanced
	}

	return schemas.Signal{
		Name:       DimSophistication,
		Value:      string(level),
		Strength:   score,
		Confidence: s.evidenceConfidence(len(techs), len(ent.Description)),
		Rationale: fmt.Sprintf("%d techniques, %d/%d advanced-tactic, custom tooling=%t",
			len(techs), advancedCount, len(techs), customTerm > 0),
	}
}

// Stealth compares stealthy-tactic techniques against noisy-tactic ones.
func (s *Set) Stealth(ent schemas.Entity, store *intel.Store) schemas.Signal {
	techs := techniques(ent, store)

	stealthyCount, noisyCount := 0, 0
	for _, t := range techs {
		if _, ok := s.stealthy[t.Tactic]; ok {
			stealthyCount++
		}
		if _, ok := s.noisy[t.Tactic]; ok {
			noisyCount++
		}
	}

	ratio := 0.5
	if stealthyCount+noisyCount > 0 {
		ratio = float64(stealthyCount) / float64(stealthyCount+noisyCount)
	}

	level := schemas.StealthBalanced
	switch {
	case ratio >= s.cfg.StealthyRatio:
		level = schemas.StealthStealthy
	case ratio <= s.cfg.NoisyRatio:
		level = schemas.StealthNoisy
	}

	return schemas.Signal{
		Name:       DimStealth,
		Value:      string(level),
		Strength:   ratio,
		Confidence: s.evidenceConfidence(len(techs), len(ent.Description)),
		Rationale:  fmt.Sprintf("%d stealthy vs %d noisy techniques", stealthyCount, noisyCount),
	}
}

// Speed compares automation-indicating techniques against
// persistence-indicating ones.
func (s *Set) Speed(ent schemas.Entity, store *intel.Store) schemas.Signal {
	techs := techniques(ent, store)

	autoCount, persistCount := 0, 0
	for _, t := range techs {
		haystack := strings.ToLower(t.Name + " " + t.Tactic)
		if containsAny(haystack, s.tables.AutomationKeywords) {
			autoCount++
		}
		if containsAny(haystack, s.tables.PersistenceKeywords) {
			persistCount++
		}
	}

	ratio := 0.5
	if autoCount+persistCount > 0 {
		ratio = float64(autoCount) / float64(autoCount+persistCount)
	}

	speed := schemas.SpeedModerate
	switch {
	case ratio >= s.cfg.AggressiveRatio:
		speed = schemas.SpeedAggressive
	case ratio <= s.cfg.SlowRatio:
		speed = schemas.SpeedSlow
	}

	return schemas.Signal{
		Name:       DimSpeed,
		Value:      string(speed),
		Strength:   ratio,
		Confidence: s.evidenceConfidence(len(techs), len(ent.Description)),
		Rationale:  fmt.Sprintf("%d automation vs %d persistence techniques", autoCount, persistCount),
	}
}

// matchKeywords scans text for every keyword of every category, incrementing
// the category strength per hit and saturating at 1.0.
func (s *Set) matchKeywords(text string, categories []KeywordCategory) map[string]float64 {
	matches := make(map[string]float64)
	for _, cat := range categories {
		hits := 0
		for _, kw := range cat.Keywords {
			hits += strings.Count(text, kw)
		}
		if hits == 0 {
			continue
		}
		strength := float64(hits) * s.cfg.KeywordIncrement
		if strength > 1 {
			strength = 1
		}
		matches[cat.Category] = strength
	}
	return matches
}

// searchText is the haystack shared by the keyword extractors: description
// plus aliases, lowercased.
func searchText(ent schemas.Entity) string {
	return strings.ToLower(ent.Description + " " + strings.Join(ent.Aliases, " "))
}

// TargetIndustries matches the industry keyword table over the entity's
// description and aliases. No match yields an empty map: the industry focus
// is undetermined, which is not an error.
func (s *Set) TargetIndustries(ent schemas.Entity, store *intel.Store) (map[string]float64, schemas.Signal) {
	matches := s.matchKeywords(searchText(ent), s.tables.Industries)
	return matches, schemas.Signal{
		Name:       DimIndustries,
		Value:      fmt.Sprintf("%d industries", len(matches)),
		Strength:   maxStrength(matches),
		Confidence: s.evidenceConfidence(len(techniques(ent, store)), len(ent.Description)),
		Rationale:  fmt.Sprintf("keyword scan over %d-char description and %d aliases", len(ent.Description), len(ent.Aliases)),
	}
}

// TargetRegions matches the region keyword table. No match yields the
// singleton {Global}.
func (s *Set) TargetRegions(ent schemas.Entity, store *intel.Store) (map[string]float64, schemas.Signal) {
	matches := s.matchKeywords(searchText(ent), s.tables.Regions)
	if len(matches) == 0 {
		matches = map[string]float64{RegionGlobal: 1.0}
	}
	return matches, schemas.Signal{
		Name:       DimRegions,
		Value:      fmt.Sprintf("%d regions", len(matches)),
		Strength:   maxStrength(matches),
		Confidence: s.evidenceConfidence(len(techniques(ent, store)), len(ent.Description)),
		Rationale:  fmt.Sprintf("keyword scan over %d-char description and %d aliases", len(ent.Description), len(ent.Aliases)),
	}
}

// Motivations applies the motivation rules over technique tactics and the
// description text. An entity may match several motivations; matching none
// is valid and yields an empty set.
func (s *Set) Motivations(ent schemas.Entity, store *intel.Store) ([]schemas.Motivation, schemas.Signal) {
	techs := techniques(ent, store)
	text := strings.ToLower(ent.Description)

	tacticsPresent := make(map[string]struct{})
	for _, t := range techs {
		tacticsPresent[t.Tactic] = struct{}{}
	}

	var matched []schemas.Motivation
	for _, rule := range s.tables.Motivations {
		hit := false
		for tactic := range s.motivTactic[rule.Motivation] {
			if _, ok := tacticsPresent[tactic]; ok {
				hit = true
				break
			}
		}
		if !hit && containsAny(text, rule.Keywords) {
			hit = true
		}
		if hit {
			matched = append(matched, rule.Motivation)
		}
	}

	// A tables file may legitimately carry no motivation rules; the strength
	// divisor must not go to zero.
	strength := 0.0
	if len(s.tables.Motivations) > 0 {
		strength = float64(len(matched)) / float64(len(s.tables.Motivations))
	}

	return matched, schemas.Signal{
		Name:       DimMotivations,
		Value:      fmt.Sprintf("%d motivations", len(matched)),
		Strength:   strength,
		Confidence: s.evidenceConfidence(len(techs), len(ent.Description)),
		Rationale:  fmt.Sprintf("rules over %d tactics and description text", len(tacticsPresent)),
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func maxStrength(matches map[string]float64) float64 {
	max := 0.0
	for _, v := range matches {
		if v > max {
			max = v
		}
	}
	return max
}
