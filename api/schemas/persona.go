package schemas

// SophisticationLevel buckets a group's technical capability.
type SophisticationLevel string

const (
	SophisticationLow      SophisticationLevel = "low"
	SophisticationMedium   SophisticationLevel = "medium"
	SophisticationHigh     SophisticationLevel = "high"
	SophisticationAdvanced SophisticationLevel = "advanced"
)

// StealthLevel describes a group's operational-security preference.
type StealthLevel string

const (
	StealthNoisy    StealthLevel = "noisy"
	StealthBalanced StealthLevel = "balanced"
	StealthStealthy StealthLevel = "stealthy"
)

// AttackSpeed describes the expected tempo between actions.
type AttackSpeed string

const (
	SpeedSlow       AttackSpeed = "slow"
	SpeedModerate   AttackSpeed = "moderate"
	SpeedAggressive AttackSpeed = "aggressive"
)

// Motivation is one inferred driver behind a group's operations.
type Motivation string

const (
	MotivationEspionage   Motivation = "espionage"
	MotivationFinancial   Motivation = "financial"
	MotivationDisruption  Motivation = "disruption"
	MotivationDestruction Motivation = "destruction"
)

// Provenance distinguishes how a persona was produced.
type Provenance string

const (
	// ProvenancePremium marks a persona whose fields come from the curated
	// override table (falling back to the draft for unset fields).
	ProvenancePremium Provenance = "premium"
	// ProvenanceAuto marks a persona generated purely by the inference engine.
	ProvenanceAuto Provenance = "auto-generated"
	// ProvenanceCustom marks a user-derived variant of a base persona.
	ProvenanceCustom Provenance = "custom"
)

// PersonaDraft is the unreviewed output of the inference engine, before any
// curated-override merge.
type PersonaDraft struct {
	EntityID       string              `json:"entity_id"`
	Name           string              `json:"name"`
	Sophistication SophisticationLevel `json:"sophistication"`
	Stealth        StealthLevel        `json:"stealth"`
	Speed          AttackSpeed         `json:"speed"`
	// Industries and Regions map keyword-table categories to match strength
	// in (0,1]; repeated hits saturate at 1.0.
	Industries  map[string]float64 `json:"industries"`
	Regions     map[string]float64 `json:"regions"`
	Motivations []Motivation       `json:"motivations"`
	Signals     []Signal           `json:"signals"`
	// Confidence is Completeness multiplied by the mean per-signal
	// confidence, so sparse data caps confidence regardless of how sure the
	// individual heuristics look.
	Confidence float64 `json:"confidence"`
	// Completeness is the fraction of expected evidence present (technique
	// count, software count, description length).
	Completeness float64 `json:"completeness"`
}

// OperationalParams are derived knobs the campaign agent consumes. All
// priorities are clamped to [0.1, 0.95].
type OperationalParams struct {
	DetectionSensitivity  float64 `json:"detection_sensitivity"`
	PersistencePriority   float64 `json:"persistence_priority"`
	ExfiltrationPriority  float64 `json:"exfiltration_priority"`
	TechniqueSuccessRate  float64 `json:"technique_success_rate"`
	MaxTechniquesPerPhase int     `json:"max_techniques_per_phase"`
	DwellTimeDays         int     `json:"dwell_time_days"`
}

// Persona is the final immutable behavioral profile for a group.
//
// A custom persona references its base via BaseID; the base is read-only and
// is never mutated through the custom variant. A custom persona's technique
// set is either an explicit override or a subset of its base's set.
type Persona struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Aliases        []string            `json:"aliases,omitempty"`
	Description    string              `json:"description,omitempty"`
	Sophistication SophisticationLevel `json:"sophistication"`
	Stealth        StealthLevel        `json:"stealth"`
	Speed          AttackSpeed         `json:"speed"`
	Industries     []string            `json:"target_industries"`
	Regions        []string            `json:"target_regions"`
	Motivations    []Motivation        `json:"motivations"`
	// Techniques and Software are the attributed entity identifiers, sorted.
	Techniques []string          `json:"techniques"`
	Software   []string          `json:"software"`
	Params     OperationalParams `json:"params"`
	Confidence float64           `json:"confidence"`
	Provenance Provenance        `json:"provenance"`
	// BaseID is set only for custom personas and names the base persona's ID.
	BaseID string `json:"base_id,omitempty"`
}

// PersonaSummary is the read-only enumeration row returned by List.
type PersonaSummary struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Provenance Provenance `json:"provenance"`
	Confidence float64    `json:"confidence"`
}
