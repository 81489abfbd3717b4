package schemas

import "time"

// NoiseLevel classifies how detectable a simulated step is.
type NoiseLevel string

const (
	NoiseLow    NoiseLevel = "low"
	NoiseMedium NoiseLevel = "medium"
	NoiseHigh   NoiseLevel = "high"
)

// CampaignStep is one simulated action in a campaign log.
type CampaignStep struct {
	Phase       string     `json:"phase"`
	TechniqueID string     `json:"technique_id"`
	Technique   string     `json:"technique"`
	Succeeded   bool       `json:"succeeded"`
	Noise       NoiseLevel `json:"noise"`
	Detected    bool       `json:"detected"`
}

// CampaignLog is the full record of one simulated campaign run. It is
// business-logic output only; no step performs real network activity.
type CampaignLog struct {
	ID            string         `json:"id"`
	PersonaID     string         `json:"persona_id"`
	PersonaName   string         `json:"persona_name"`
	Scenario      string         `json:"scenario"`
	Seed          int64          `json:"seed"`
	StartedAt     time.Time      `json:"started_at"`
	Steps         []CampaignStep `json:"steps"`
	StepsDetected int            `json:"steps_detected"`
	DwellTimeDays int            `json:"dwell_time_days"`
	Objective     string         `json:"objective"`
	Achieved      bool           `json:"achieved"`
}
