// Package model holds the domain types shared across the engine. It depends
// only on the confidence algebra; everything else depends on it.
package model

import (
	"strings"
	"time"

	"github.com/agenthands/strata/internal/core/confidence"
)

// Layer is one of the four knowledge layers. Promotion moves up one layer at
// a time; the ordering of the constants is load-bearing for comparisons.
type Layer int

const (
	LayerPerception Layer = iota
	LayerSemantic
	LayerReasoning
	LayerApplication
)

func (l Layer) String() string {
	switch l {
	case LayerPerception:
		return "perception"
	case LayerSemantic:
		return "semantic"
	case LayerReasoning:
		return "reasoning"
	case LayerApplication:
		return "application"
	}
	return "unknown"
}

// Next returns the layer above, or false at the top.
func (l Layer) Next() (Layer, bool) {
	if l >= LayerApplication {
		return l, false
	}
	return l + 1, true
}

// ParseLayer maps a stored layer string back to the constant.
func ParseLayer(s string) (Layer, bool) {
	switch s {
	case "perception":
		return LayerPerception, true
	case "semantic":
		return LayerSemantic, true
	case "reasoning":
		return LayerReasoning, true
	case "application":
		return LayerApplication, true
	}
	return LayerPerception, false
}

// SourceRef ties an entity back to the document it was extracted from.
type SourceRef struct {
	DocumentID  string    `json:"document_id"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Entity is one resolved node in the knowledge graph. Version backs the
// optimistic concurrency check on every property update.
type Entity struct {
	ID              string                 `json:"id"`
	CanonicalName   string                 `json:"canonical_name"`
	Type            string                 `json:"type"`
	Layer           Layer                  `json:"layer"`
	Confidence      confidence.Value       `json:"confidence"`
	Aliases         []string               `json:"aliases,omitempty"`
	SourceRefs      []SourceRef            `json:"source_refs,omitempty"`
	Properties      map[string]interface{} `json:"properties,omitempty"`
	ValidationCount int                    `json:"validation_count"`
	OntologyMatch   bool                   `json:"ontology_match"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Version         int64                  `json:"version"`
}

// HasAlias reports whether the entity is known under the given name,
// case-insensitively.
func (e *Entity) HasAlias(name string) bool {
	if strings.EqualFold(e.CanonicalName, name) {
		return true
	}
	for _, a := range e.Aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// HasExactAlias reports whether this verbatim surface form is already
// recorded. Aliases keep every observed spelling, so only byte-identical
// repeats are deduplicated.
func (e *Entity) HasExactAlias(name string) bool {
	for _, a := range e.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// PromotionRecord is one immutable audit entry for a layer transition, in
// either direction (FromLayer > ToLayer marks a demotion).
type PromotionRecord struct {
	ID             string    `json:"id"`
	SubjectID      string    `json:"subject_id"`
	SubjectKind    string    `json:"subject_kind"`
	FromLayer      Layer     `json:"from_layer"`
	ToLayer        Layer     `json:"to_layer"`
	DecidedAt      time.Time `json:"decided_at"`
	RulesSatisfied []string  `json:"rules_satisfied,omitempty"`
	Confidence     float64   `json:"confidence"`
	Reason         string    `json:"reason,omitempty"`
}
