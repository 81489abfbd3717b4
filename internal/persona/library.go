package persona

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/obsidiansec/personaforge/api/schemas"
	"github.com/obsidiansec/personaforge/internal/inference"
	"github.com/obsidiansec/personaforge/internal/intel"
)

var (
	// ErrBaseNotFound means a custom persona referenced a base that does not
	// resolve to any existing persona.
	ErrBaseNotFound = errors.New("base persona not found")
	// ErrUnknownTechnique means a custom override tried to attribute a
	// technique or software id absent from the intelligence store. Custom
	// personas may filter or replace their base's sets but never invent
	// entries the store has never seen.
	ErrUnknownTechnique = errors.New("unknown technique or software id")
	// ErrNameTaken means a custom persona name collides with an existing
	// persona; customs are addressed by their own distinct name and never
	// shadow a premium or auto-generated entry.
	ErrNameTaken = errors.New("persona name already in use")
)

// Stats counts library activity. Inferred tracks actual inference engine
// executions; Resolve hits served from cache do not increment it.
type Stats struct {
	Resolved int64 `json:"resolved"`
	Inferred int64 `json:"inferred"`
	Custom   int64 `json:"custom"`
}

// Library is the process-scoped persona cache. It lazily populates on first
// lookup per entity, is cleared explicitly, and is never silently
// invalidated. The library exclusively owns cached Persona values; callers
// receive shared read-only references.
type Library struct {
	store   *intel.Store
	engine  *inference.Engine
	curated CuratedTable
	log     *zap.Logger

	mu     sync.RWMutex
	cache  map[string]*schemas.Persona // keyed by entity id
	custom map[string]*schemas.Persona // keyed by lowercased custom name

	// sf serializes concurrent first-time resolution per entity id so the
	// engine runs at most once per key; late callers observe the first
	// caller's result.
	sf singleflight.Group

	resolved int64
	inferred int64
}

// NewLibrary creates an empty library over the given store and engine. A nil
// curated table disables premium overrides.
func NewLibrary(store *intel.Store, engine *inference.Engine, curated CuratedTable, logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{
		store:   store,
		engine:  engine,
		curated: curated.normalize(),
		log:     logger.Named("personalib"),
		cache:   make(map[string]*schemas.Persona),
		custom:  make(map[string]*schemas.Persona),
	}
}

// Resolve returns the persona for a group identified by entity id, canonical
// name, or alias (case-insensitive exact match; the library never guesses at
// partial names). Custom personas are found by their own name. The first
// resolution per group runs the inference engine; later ones return the
// cached persona unchanged.
func (l *Library) Resolve(nameOrID string) (*schemas.Persona, error) {
	atomic.AddInt64(&l.resolved, 1)

	l.mu.RLock()
	if p, ok := l.custom[strings.ToLower(strings.TrimSpace(nameOrID))]; ok {
		l.mu.RUnlock()
		return p, nil
	}
	l.mu.RUnlock()

	ent, err := l.store.ResolveName(nameOrID)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	if p, ok := l.cache[ent.ID]; ok {
		l.mu.RUnlock()
		return p, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.sf.Do(ent.ID, func() (interface{}, error) {
		// Re-check under the flight: a previous flight may have populated
		// the cache between our read and Do.
		l.mu.RLock()
		if p, ok := l.cache[ent.ID]; ok {
			l.mu.RUnlock()
			return p, nil
		}
		l.mu.RUnlock()

		atomic.AddInt64(&l.inferred, 1)
		draft, err := l.engine.Infer(ent.ID)
		if err != nil {
			return nil, err
		}
		p := l.compose(ent, draft)

		l.mu.Lock()
		l.cache[ent.ID] = p
		l.mu.Unlock()

		l.log.Info("Persona resolved",
			zap.String("entity_id", ent.ID),
			zap.String("name", p.Name),
			zap.String("provenance", string(p.Provenance)),
			zap.Float64("confidence", p.Confidence),
		)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*schemas.Persona), nil
}

// compose turns a draft into the final persona, applying the curated
// override field-by-field when one exists for the entity.
func (l *Library) compose(ent schemas.Entity, draft *schemas.PersonaDraft) *schemas.Persona {
	techniqueIDs, softwareIDs := l.attributedIDs(ent.ID)

	p := &schemas.Persona{
		ID:             ent.ID,
		Name:           ent.Name,
		Aliases:        append([]string(nil), ent.Aliases...),
		Description:    ent.Description,
		Sophistication: draft.Sophistication,
		Stealth:        draft.Stealth,
		Speed:          draft.Speed,
		Industries:     rankedCategories(draft.Industries),
		Regions:        rankedCategories(draft.Regions),
		Motivations:    append([]schemas.Motivation(nil), draft.Motivations...),
		Techniques:     techniqueIDs,
		Software:       softwareIDs,
		Confidence:     draft.Confidence,
		Provenance:     schemas.ProvenanceAuto,
	}

	if o, ok := l.curated.Lookup(ent); ok {
		p.Provenance = schemas.ProvenancePremium
		if o.Description != "" {
			p.Description = o.Description
		}
		if o.Sophistication != "" {
			p.Sophistication = o.Sophistication
		}
		if o.Stealth != "" {
			p.Stealth = o.Stealth
		}
		if o.Speed != "" {
			p.Speed = o.Speed
		}
		if len(o.Industries) > 0 {
			p.Industries = append([]string(nil), o.Industries...)
		}
		if len(o.Regions) > 0 {
			p.Regions = append([]string(nil), o.Regions...)
		}
		if len(o.Motivations) > 0 {
			p.Motivations = append([]schemas.Motivation(nil), o.Motivations...)
		}
	}

	p.Params = l.deriveParams(ent.ID, p)
	return p
}

// attributedIDs collects the sorted technique and software entity ids
// attributed to a group.
func (l *Library) attributedIDs(groupID string) (techniques, software []string) {
	techniques = []string{}
	software = []string{}
	for _, rel := range l.store.Related(groupID, schemas.RelUses, schemas.Forward) {
		switch rel.Kind {
		case schemas.KindTechnique:
			techniques = append(techniques, rel.ID)
		case schemas.KindSoftware:
			software = append(software, rel.ID)
		}
	}
	sort.Strings(techniques)
	sort.Strings(software)
	return techniques, software
}

// deriveParams computes the operational knobs the campaign agent consumes.
// All priorities are clamped to [0.1, 0.95], matching the bounds used for
// confidence.
func (l *Library) deriveParams(groupID string, p *schemas.Persona) schemas.OperationalParams {
	total, persist, exfil := 0, 0, 0
	for _, rel := range l.store.Related(groupID, schemas.RelUses, schemas.Forward) {
		if rel.Kind != schemas.KindTechnique {
			continue
		}
		total++
		switch rel.Tactic {
		case "persistence":
			persist++
		case "exfiltration":
			exfil++
		}
	}
	persistRatio, exfilRatio := 0.0, 0.0
	if total > 0 {
		persistRatio = float64(persist) / float64(total)
		exfilRatio = float64(exfil) / float64(total)
	}

	detection := 0.5
	switch p.Stealth {
	case schemas.StealthStealthy:
		detection += 0.3
	case schemas.StealthNoisy:
		detection -= 0.3
	}
	switch p.Sophistication {
	case schemas.SophisticationAdvanced:
		detection += 0.2
	case schemas.SophisticationLow:
		detection -= 0.2
	}

	exfilPriority := 0.5 + exfilRatio*2
	for _, m := range p.Motivations {
		switch m {
		case schemas.MotivationFinancial, schemas.MotivationEspionage:
			exfilPriority += 0.15
		case schemas.MotivationDestruction:
			exfilPriority -= 0.2
		}
	}

	successRate := map[schemas.SophisticationLevel]float64{
		schemas.SophisticationLow:      0.55,
		schemas.SophisticationMedium:   0.65,
		schemas.SophisticationHigh:     0.75,
		schemas.SophisticationAdvanced: 0.85,
	}[p.Sophistication]

	maxPerPhase := map[schemas.SophisticationLevel]int{
		schemas.SophisticationLow:      3,
		schemas.SophisticationMedium:   4,
		schemas.SophisticationHigh:     5,
		schemas.SophisticationAdvanced: 7,
	}[p.Sophistication]

	dwell := map[schemas.SophisticationLevel]float64{
		schemas.SophisticationLow:      30,
		schemas.SophisticationMedium:   90,
		schemas.SophisticationHigh:     180,
		schemas.SophisticationAdvanced: 365,
	}[p.Sophistication]
	switch p.Stealth {
	case schemas.StealthStealthy:
		dwell *= 1.5
	case schemas.StealthNoisy:
		dwell *= 0.5
	}

	return schemas.OperationalParams{
		DetectionSensitivity:  clamp(detection),
		PersistencePriority:   clamp(0.5 + persistRatio*2),
		ExfiltrationPriority:  clamp(exfilPriority),
		TechniqueSuccessRate:  successRate,
		MaxTechniquesPerPhase: maxPerPhase,
		DwellTimeDays:         int(dwell),
	}
}

// CustomOverrides carries the field replacements for a user-derived persona.
// Zero-valued fields inherit from the base.
type CustomOverrides struct {
	Description    string                      `json:"description,omitempty"`
	Sophistication schemas.SophisticationLevel `json:"sophistication,omitempty"`
	Stealth        schemas.StealthLevel        `json:"stealth,omitempty"`
	Speed          schemas.AttackSpeed         `json:"speed,omitempty"`
	Industries     []string                    `json:"industries,omitempty"`
	Regions        []string                    `json:"regions,omitempty"`
	Motivations    []schemas.Motivation        `json:"motivations,omitempty"`
	// Techniques and Software, when set, replace the base's sets wholesale.
	// Every id must already exist in the intelligence store.
	Techniques []string `json:"techniques,omitempty"`
	Software   []string `json:"software,omitempty"`
}

// CreateCustom derives a new persona from an existing one by explicit
// composition: the base's fields are deep-copied into a fresh record, the
// overrides applied, and the result stored under its own name with a
// back-reference to the base. The base persona is never mutated. All
// validation happens before any cache mutation, so a rejected request leaves
// prior state untouched.
func (l *Library) CreateCustom(name, baseRef string, overrides CustomOverrides) (*schemas.Persona, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("%w: empty name", ErrNameTaken)
	}

	l.mu.RLock()
	_, customExists := l.custom[key]
	l.mu.RUnlock()
	if customExists {
		return nil, fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	if _, err := l.store.ResolveName(name); err == nil {
		return nil, fmt.Errorf("%w: %q names an existing entity", ErrNameTaken, name)
	}

	base, err := l.Resolve(baseRef)
	if err != nil {
		if errors.Is(err, intel.ErrNotFound) || errors.Is(err, intel.ErrAmbiguousName) {
			return nil, fmt.Errorf("%w: %q: %v", ErrBaseNotFound, baseRef, err)
		}
		return nil, err
	}

	if err := l.validateKnown(overrides.Techniques, schemas.KindTechnique); err != nil {
		return nil, err
	}
	if err := l.validateKnown(overrides.Software, schemas.KindSoftware); err != nil {
		return nil, err
	}

	p := &schemas.Persona{
		ID:             "custom--" + uuid.New().String(),
		Name:           name,
		Description:    base.Description,
		Sophistication: base.Sophistication,
		Stealth:        base.Stealth,
		Speed:          base.Speed,
		Industries:     append([]string(nil), base.Industries...),
		Regions:        append([]string(nil), base.Regions...),
		Motivations:    append([]schemas.Motivation(nil), base.Motivations...),
		Techniques:     append([]string(nil), base.Techniques...),
		Software:       append([]string(nil), base.Software...),
		Params:         base.Params,
		Confidence:     base.Confidence,
		Provenance:     schemas.ProvenanceCustom,
		BaseID:         base.ID,
	}

	if overrides.Description != "" {
		p.Description = overrides.Description
	}
	if overrides.Sophistication != "" {
		p.Sophistication = overrides.Sophistication
	}
	if overrides.Stealth != "" {
		p.Stealth = overrides.Stealth
	}
	if overrides.Speed != "" {
		p.Speed = overrides.Speed
	}
	if overrides.Industries != nil {
		p.Industries = append([]string(nil), overrides.Industries...)
	}
	if overrides.Regions != nil {
		p.Regions = append([]string(nil), overrides.Regions...)
	}
	if overrides.Motivations != nil {
		p.Motivations = append([]schemas.Motivation(nil), overrides.Motivations...)
	}
	if overrides.Techniques != nil {
		p.Techniques = append([]string(nil), overrides.Techniques...)
		sort.Strings(p.Techniques)
	}
	if overrides.Software != nil {
		p.Software = append([]string(nil), overrides.Software...)
		sort.Strings(p.Software)
	}

	l.mu.Lock()
	l.custom[key] = p
	l.mu.Unlock()

	l.log.Info("Custom persona created",
		zap.String("name", name),
		zap.String("base_id", base.ID),
		zap.Int("techniques", len(p.Techniques)),
	)
	return p, nil
}

// validateKnown checks that every id exists in the store with the expected
// kind.
func (l *Library) validateKnown(ids []string, kind schemas.EntityKind) error {
	for _, id := range ids {
		ent, err := l.store.Entity(id)
		if err != nil || ent.Kind != kind {
			return fmt.Errorf("%w: %q", ErrUnknownTechnique, id)
		}
	}
	return nil
}

// List enumerates persona summaries for every group in the store, resolving
// uncached ones lazily, ordered by entity id. Custom personas follow, ordered
// by their own ids.
func (l *Library) List() ([]schemas.PersonaSummary, error) {
	var out []schemas.PersonaSummary
	for _, group := range l.store.Groups() {
		p, err := l.Resolve(group.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, summarize(p))
	}

	l.mu.RLock()
	customs := make([]*schemas.Persona, 0, len(l.custom))
	for _, p := range l.custom {
		customs = append(customs, p)
	}
	l.mu.RUnlock()
	sort.Slice(customs, func(i, j int) bool { return customs[i].ID < customs[j].ID })
	for _, p := range customs {
		out = append(out, summarize(p))
	}
	return out, nil
}

// Clear drops all cached auto-generated and premium personas, forcing
// recomputation on next resolve. Custom personas are user-created records,
// not derived cache state, and survive a clear.
func (l *Library) Clear() {
	l.mu.Lock()
	l.cache = make(map[string]*schemas.Persona)
	l.mu.Unlock()
	l.log.Info("Persona cache cleared")
}

// Stats returns the library's activity counters.
func (l *Library) Stats() Stats {
	l.mu.RLock()
	customs := int64(len(l.custom))
	l.mu.RUnlock()
	return Stats{
		Resolved: atomic.LoadInt64(&l.resolved),
		Inferred: atomic.LoadInt64(&l.inferred),
		Custom:   customs,
	}
}

func summarize(p *schemas.Persona) schemas.PersonaSummary {
	return schemas.PersonaSummary{
		ID:         p.ID,
		Name:       p.Name,
		Provenance: p.Provenance,
		Confidence: p.Confidence,
	}
}

// rankedCategories orders keyword-match categories by descending strength,
// breaking ties alphabetically.
func rankedCategories(matches map[string]float64) []string {
	out := make([]string, 0, len(matches))
	for cat := range matches {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool {
		if matches[out[i]] != matches[out[j]] {
			return matches[out[i]] > matches[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

func clamp(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 0.95 {
		return 0.95
	}
	return v
}
