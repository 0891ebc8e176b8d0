package layers

import (
	"fmt"

	"github.com/agenthands/strata/internal/config"
	"github.com/agenthands/strata/internal/core/model"
)

// Guard is a named boolean predicate gating entry into a layer. All guards
// for a transition must hold. Guards marked AppliesToEdges also gate
// relationship promotion.
type Guard struct {
	Name           string
	AppliesToEdges bool
	Check          func(e *model.Entity) bool
}

func minConfidence(threshold float64) Guard {
	return Guard{
		Name:           fmt.Sprintf("confidence_at_least_%.2f", threshold),
		AppliesToEdges: true,
		Check: func(e *model.Entity) bool {
			return e.Confidence.Score >= threshold
		},
	}
}

func minValidations(count int) Guard {
	return Guard{
		Name: fmt.Sprintf("validation_count_at_least_%d", count),
		Check: func(e *model.Entity) bool {
			return e.ValidationCount >= count
		},
	}
}

func ontologyMatch() Guard {
	return Guard{
		Name: "ontology_match",
		Check: func(e *model.Entity) bool {
			return e.OntologyMatch
		},
	}
}

func hasSourceRef() Guard {
	return Guard{
		Name: "has_source_ref",
		Check: func(e *model.Entity) bool {
			return len(e.SourceRefs) > 0
		},
	}
}

// guardsFor builds the guard table from configured thresholds, keyed by the
// layer being entered. Perception has no entry: entities are born there.
func guardsFor(cfg config.LayersConfig) map[model.Layer][]Guard {
	return map[model.Layer][]Guard{
		model.LayerSemantic: {
			minConfidence(cfg.SemanticConfidence),
			ontologyMatch(),
			hasSourceRef(),
		},
		model.LayerReasoning: {
			minConfidence(cfg.ReasoningConfidence),
			minValidations(cfg.ReasoningValidations),
		},
		model.LayerApplication: {
			minConfidence(cfg.ApplicationConfidence),
			minValidations(cfg.ApplicationValidations),
		},
	}
}
