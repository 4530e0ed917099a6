// Package types provides shared types used across multiple packages.
// This package has no dependencies on other lorecard packages to avoid import cycles.
package types

// EntityKind distinguishes the two record families the extractor produces.
type EntityKind string

const (
	// KindCharacter is a character extracted from narrative text.
	KindCharacter EntityKind = "character"
	// KindWorld is a world-setting item (place, faction, concept, object).
	KindWorld EntityKind = "world"
)

// ParseEntityKind converts a string to an EntityKind.
// Returns KindCharacter if the string is not recognized.
func ParseEntityKind(s string) EntityKind {
	switch s {
	case "world":
		return KindWorld
	default:
		return KindCharacter
	}
}

// EntityRecord is one validated extraction result for a single entity mention.
// Multiple records from different chunks may describe the same real entity;
// collapsing those is the merger's job.
type EntityRecord struct {
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`

	// Alternate names the extractor reported alongside the primary name.
	Aliases []string `json:"aliases,omitempty"`

	// Descriptive fields. Empty string means the extractor said nothing.
	Features    string `json:"features,omitempty"`
	Personality string `json:"personality,omitempty"`
	Quote       string `json:"quote,omitempty"`
	Motivation  string `json:"motivation,omitempty"`
	Notes       string `json:"notes,omitempty"`

	// Relationships as short "name: relation" strings.
	Relationships []string `json:"relationships,omitempty"`

	// Provenance is the set of chunk indices this record was drawn from.
	// A fresh extraction has exactly one; merged records accumulate more.
	Provenance []int `json:"provenance,omitempty"`
}

// MergedEntity is the canonical record for one distinct entity after
// reconciliation across all chunks.
type MergedEntity struct {
	EntityRecord

	// MergedFrom lists every distinct raw name that fed this entity.
	MergedFrom []string `json:"merged_from,omitempty"`
	// EntryCount is how many per-chunk records were collapsed into this one.
	EntryCount int `json:"entry_count"`
}

// FirstChunk returns the earliest provenance chunk index, or -1 when the
// record carries no provenance. Used as the deterministic tie-breaker in
// ranking and merge ordering.
func (e *EntityRecord) FirstChunk() int {
	first := -1
	for _, idx := range e.Provenance {
		if first == -1 || idx < first {
			first = idx
		}
	}
	return first
}

// ResponseStatus classifies a raw LLM response.
type ResponseStatus string

const (
	// StatusOK means the response parsed into at least one valid record.
	StatusOK ResponseStatus = "ok"
	// StatusMalformed means the response could not be parsed or failed validation.
	StatusMalformed ResponseStatus = "malformed"
	// StatusEmpty means the call succeeded but yielded no usable records.
	StatusEmpty ResponseStatus = "empty"
)
