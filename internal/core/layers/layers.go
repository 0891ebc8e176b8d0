// Package layers encodes the four knowledge layers as a state machine with
// guarded transitions. Promotion moves exactly one layer per attempt;
// demotion happens only through an explicit call, and every transition in
// either direction appends a promotion record for audit.
package layers

import (
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/strata/internal/config"
	"github.com/agenthands/strata/internal/core/model"
)

type Machine struct {
	guards     map[model.Layer][]Guard
	thresholds map[model.Layer]float64
	now        func() time.Time
}

func NewMachine(cfg config.LayersConfig) *Machine {
	return &Machine{
		guards: guardsFor(cfg),
		thresholds: map[model.Layer]float64{
			model.LayerSemantic:    cfg.SemanticConfidence,
			model.LayerReasoning:   cfg.ReasoningConfidence,
			model.LayerApplication: cfg.ApplicationConfidence,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Threshold returns the confidence guard value for entering the given layer,
// used by the scanner as its cheap pre-filter.
func (m *Machine) Threshold(target model.Layer) float64 {
	return m.thresholds[target]
}

// AttemptPromotion evaluates the guards for the next layer only — no
// multi-hop jumps. On success the entity's layer is advanced and a promotion
// record returned; otherwise the unsatisfied guard names are listed. A
// blocked attempt is a normal outcome, not an error.
func (m *Machine) AttemptPromotion(e *model.Entity) model.PromotionResult {
	next, ok := e.Layer.Next()
	if !ok {
		return model.PromotionResult{Blocked: []string{"already_at_top_layer"}}
	}

	var unsatisfied []string
	var satisfied []string
	for _, g := range m.guards[next] {
		if g.Check(e) {
			satisfied = append(satisfied, g.Name)
		} else {
			unsatisfied = append(unsatisfied, g.Name)
		}
	}
	if len(unsatisfied) > 0 {
		return model.PromotionResult{Blocked: unsatisfied}
	}

	record := &model.PromotionRecord{
		ID:             uuid.New().String(),
		SubjectID:      e.ID,
		SubjectKind:    "entity",
		FromLayer:      e.Layer,
		ToLayer:        next,
		DecidedAt:      m.now(),
		RulesSatisfied: satisfied,
		Confidence:     e.Confidence.Score,
	}
	e.Layer = next
	return model.PromotionResult{Promoted: true, Record: record}
}

// AttemptRelationshipPromotion promotes an edge one layer, subject to the
// same confidence guard as entities plus the endpoint ceiling: a relationship
// never leads its endpoints.
func (m *Machine) AttemptRelationshipPromotion(rel *model.Relationship, sourceLayer, targetLayer model.Layer) model.PromotionResult {
	next, ok := rel.Layer.Next()
	if !ok {
		return model.PromotionResult{Blocked: []string{"already_at_top_layer"}}
	}

	ceiling := sourceLayer
	if targetLayer < ceiling {
		ceiling = targetLayer
	}
	if next > ceiling {
		return model.PromotionResult{Blocked: []string{"endpoint_layer_ceiling"}}
	}

	var unsatisfied []string
	satisfied := []string{"endpoint_layer_ceiling"}
	probe := &model.Entity{Confidence: rel.Confidence}
	for _, g := range m.guards[next] {
		if !g.AppliesToEdges {
			continue
		}
		if g.Check(probe) {
			satisfied = append(satisfied, g.Name)
		} else {
			unsatisfied = append(unsatisfied, g.Name)
		}
	}
	if len(unsatisfied) > 0 {
		return model.PromotionResult{Blocked: unsatisfied}
	}

	record := &model.PromotionRecord{
		ID:             uuid.New().String(),
		SubjectID:      rel.ID,
		SubjectKind:    "relationship",
		FromLayer:      rel.Layer,
		ToLayer:        next,
		DecidedAt:      m.now(),
		RulesSatisfied: satisfied,
		Confidence:     rel.Confidence.Score,
	}
	rel.Layer = next
	return model.PromotionResult{Promoted: true, Record: record}
}

// Demote moves an entity exactly one layer down after a failed post-hoc
// validation, resets its validation count, and returns the audit record
// (FromLayer > ToLayer). Demoting from Perception is a no-op.
func (m *Machine) Demote(e *model.Entity, reason string) *model.PromotionRecord {
	if e.Layer == model.LayerPerception {
		return nil
	}
	from := e.Layer
	e.Layer = from - 1
	e.ValidationCount = 0

	return &model.PromotionRecord{
		ID:          uuid.New().String(),
		SubjectID:   e.ID,
		SubjectKind: "entity",
		FromLayer:   from,
		ToLayer:     e.Layer,
		DecidedAt:   m.now(),
		Confidence:  e.Confidence.Score,
		Reason:      reason,
	}
}
