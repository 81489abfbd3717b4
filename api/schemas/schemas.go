// Package schemas defines the shared data types exchanged between the
// intelligence store, the inference engine, the persona library, and the
// outer surfaces (CLI, HTTP API, persistence).
package schemas

import "time"

// EntityKind identifies the type of an intelligence record.
type EntityKind string

const (
	KindGroup     EntityKind = "group"
	KindTechnique EntityKind = "technique"
	KindSoftware  EntityKind = "software"
)

// RelationshipKind identifies the type of a directed edge between entities.
type RelationshipKind string

const (
	// RelUses links a group to a technique or software it employs.
	RelUses RelationshipKind = "uses"
)

// Direction selects which adjacency index a relationship query walks.
type Direction int

const (
	// Forward follows edges from source to target ("techniques used by group X").
	Forward Direction = iota
	// Reverse follows edges from target to source ("groups using technique Y").
	Reverse
)

// RawRelationship is the wire form of a directed edge inside a bundle record.
type RawRelationship struct {
	Kind     RelationshipKind `json:"kind"`
	TargetID string           `json:"target_id"`
}

// RawObject is the wire form of one typed intelligence record in a bundle.
// Unknown Kind values are skipped (and counted) by the loader, not fatal.
type RawObject struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	Name          string            `json:"name"`
	Aliases       []string          `json:"aliases,omitempty"`
	Description   string            `json:"description,omitempty"`
	Tactic        string            `json:"tactic,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	FirstSeen     *time.Time        `json:"first_seen,omitempty"`
	LastSeen      *time.Time        `json:"last_seen,omitempty"`
	Relationships []RawRelationship `json:"relationships,omitempty"`
}

// Bundle is a complete corpus snapshot as fetched from an upstream feed.
type Bundle struct {
	Version string      `json:"version,omitempty"`
	Objects []RawObject `json:"objects"`
}

// Entity is one normalized, immutable intelligence subject.
type Entity struct {
	ID          string     `json:"id"`
	Kind        EntityKind `json:"kind"`
	Name        string     `json:"name"`
	Aliases     []string   `json:"aliases,omitempty"`
	Description string     `json:"description,omitempty"`
	// Tactic is the ATT&CK tactic category for technique entities
	// (e.g. "defense-evasion"); empty for other kinds.
	Tactic    string     `json:"tactic,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	FirstSeen *time.Time `json:"first_seen,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

// HasTag reports whether the entity carries the given tag (case-sensitive).
func (e Entity) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Signal is one scored behavioral dimension produced by a single extractor.
type Signal struct {
	// Name of the dimension, e.g. "sophistication".
	Name string `json:"name"`
	// Value is the enumerated result, e.g. "advanced" or "stealthy".
	Value string `json:"value"`
	// Strength is the raw score in [0,1] that produced Value.
	Strength float64 `json:"strength"`
	// Confidence is this extractor's own evidence confidence in [floor,1].
	Confidence float64 `json:"confidence"`
	// Rationale names the inputs that drove the value, for auditability.
	Rationale string `json:"rationale,omitempty"`
}
