package reasoning

import (
	"fmt"
	"time"

	"github.com/agenthands/strata/internal/core/confidence"
)

// RegisterDefaults wires the built-in rule set. halfLife drives the staleness
// decay on periodic scans.
func RegisterDefaults(e *Engine, halfLife time.Duration) {
	e.Register(OpEntityCreated, typeSanityRule{})
	e.Register(OpEntityCreated, sourceEvidenceRule{})
	e.Register(OpEntityCreated, aliasCorroborationRule{})

	e.Register(OpRelationshipCreated, endpointCeilingRule{})
	e.Register(OpRelationshipCreated, weakEdgeRule{})
	e.Register(OpRelationshipCreated, edgeProvenanceRule{})

	e.Register(OpPeriodicScan, staleDecayRule{halfLife: halfLife})
	e.Register(OpPeriodicScan, corroborationCountRule{})
}

// typeSanityRule flags entities extracted without a type; downstream ontology
// matching needs one.
type typeSanityRule struct{}

func (typeSanityRule) Name() string       { return "type_sanity" }
func (typeSanityRule) Priority() Priority { return PriorityCritical }

func (typeSanityRule) Apply(rctx *Context, res *Result) error {
	if rctx.Entity == nil {
		return fmt.Errorf("no entity in context")
	}
	if rctx.Entity.Type == "" {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("entity %q has no type", rctx.Entity.CanonicalName))
	}
	return nil
}

// sourceEvidenceRule seeds the confidence trail from the extraction score.
type sourceEvidenceRule struct{}

func (sourceEvidenceRule) Name() string       { return "source_evidence" }
func (sourceEvidenceRule) Priority() Priority { return PriorityHigh }

func (sourceEvidenceRule) Apply(rctx *Context, res *Result) error {
	if rctx.Entity == nil {
		return fmt.Errorf("no entity in context")
	}
	res.Contributions = append(res.Contributions, Contribution{
		Rule:  "source_evidence",
		Score: rctx.Entity.Confidence.Score,
	})
	res.Provenance = append(res.Provenance,
		fmt.Sprintf("extraction confidence %.2f from %d source(s)",
			rctx.Entity.Confidence.Score, len(rctx.Entity.SourceRefs)))
	return nil
}

// aliasCorroborationRule infers that a concept seen under several names is
// better supported.
type aliasCorroborationRule struct{}

func (aliasCorroborationRule) Name() string       { return "alias_corroboration" }
func (aliasCorroborationRule) Priority() Priority { return PriorityMedium }

func (aliasCorroborationRule) Apply(rctx *Context, res *Result) error {
	if rctx.Entity == nil {
		return fmt.Errorf("no entity in context")
	}
	n := len(rctx.Entity.Aliases)
	if n < 2 {
		return nil
	}
	score := 0.6 + 0.1*float64(n)
	if score > 0.95 {
		score = 0.95
	}
	res.Inferences = append(res.Inferences,
		fmt.Sprintf("%q corroborated under %d aliases", rctx.Entity.CanonicalName, n))
	res.Contributions = append(res.Contributions, Contribution{
		Rule:  "alias_corroboration",
		Score: score,
	})
	return nil
}

// endpointCeilingRule halts the chain when an edge claims a layer above its
// endpoints; such an edge must never gain further confidence.
type endpointCeilingRule struct{}

func (endpointCeilingRule) Name() string       { return "endpoint_ceiling" }
func (endpointCeilingRule) Priority() Priority { return PriorityCritical }

func (endpointCeilingRule) Apply(rctx *Context, res *Result) error {
	if rctx.Relationship == nil {
		return fmt.Errorf("no relationship in context")
	}
	ceiling := rctx.SourceLayer
	if rctx.TargetLayer < ceiling {
		ceiling = rctx.TargetLayer
	}
	if rctx.Relationship.Layer > ceiling {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("relationship %s exceeds endpoint layer %s",
				rctx.Relationship.ID, ceiling))
		res.Halt = true
	}
	return nil
}

// weakEdgeRule flags low-confidence edges for review.
type weakEdgeRule struct{}

func (weakEdgeRule) Name() string       { return "weak_edge" }
func (weakEdgeRule) Priority() Priority { return PriorityHigh }

func (weakEdgeRule) Apply(rctx *Context, res *Result) error {
	if rctx.Relationship == nil {
		return fmt.Errorf("no relationship in context")
	}
	if rctx.Relationship.Confidence.Score < 0.5 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("low-confidence %s edge (%.2f)",
				rctx.Relationship.Type, rctx.Relationship.Confidence.Score))
	}
	return nil
}

// edgeProvenanceRule records the reasoning trail line for a new edge.
type edgeProvenanceRule struct{}

func (edgeProvenanceRule) Name() string       { return "edge_provenance" }
func (edgeProvenanceRule) Priority() Priority { return PriorityMedium }

func (edgeProvenanceRule) Apply(rctx *Context, res *Result) error {
	if rctx.Relationship == nil {
		return fmt.Errorf("no relationship in context")
	}
	rel := rctx.Relationship
	res.Provenance = append(res.Provenance,
		fmt.Sprintf("%s -[%s]-> %s at %s layer, confidence %.2f",
			rel.SourceID, rel.Type, rel.TargetID, rel.Layer, rel.Confidence.Score))
	res.Contributions = append(res.Contributions, Contribution{
		Rule:  "edge_provenance",
		Score: rel.Confidence.Score,
	})
	return nil
}

// staleDecayRule lowers confidence for facts whose newest evidence is old and
// unconfirmed.
type staleDecayRule struct {
	halfLife time.Duration
}

func (staleDecayRule) Name() string       { return "stale_decay" }
func (staleDecayRule) Priority() Priority { return PriorityHigh }

func (r staleDecayRule) Apply(rctx *Context, res *Result) error {
	if rctx.Entity == nil {
		return fmt.Errorf("no entity in context")
	}
	ev := rctx.Entity.Confidence.Evidence
	if len(ev) == 0 {
		return nil
	}
	newest := ev[len(ev)-1].RecordedAt
	elapsed := rctx.Now.Sub(newest)
	if elapsed <= 0 {
		return nil
	}

	decayed, err := confidence.Decay(rctx.Entity.Confidence.Score, elapsed, r.halfLife)
	if err != nil {
		return err
	}
	if decayed < rctx.Entity.Confidence.Score {
		res.Inferences = append(res.Inferences,
			fmt.Sprintf("%q unconfirmed for %s", rctx.Entity.CanonicalName, elapsed.Round(time.Minute)))
		res.Contributions = append(res.Contributions, Contribution{
			Rule:  "stale_decay",
			Score: decayed,
		})
	}
	return nil
}

// corroborationCountRule infers validation strength from distinct source
// documents.
type corroborationCountRule struct{}

func (corroborationCountRule) Name() string       { return "corroboration_count" }
func (corroborationCountRule) Priority() Priority { return PriorityMedium }

func (corroborationCountRule) Apply(rctx *Context, res *Result) error {
	if rctx.Entity == nil {
		return fmt.Errorf("no entity in context")
	}
	docs := map[string]bool{}
	for _, ref := range rctx.Entity.SourceRefs {
		docs[ref.DocumentID] = true
	}
	if len(docs) >= 2 {
		res.Inferences = append(res.Inferences,
			fmt.Sprintf("%q corroborated by %d distinct documents",
				rctx.Entity.CanonicalName, len(docs)))
	}
	return nil
}

// Combine folds a result's contributions into one confidence input using the
// shared confidence model; ok is false when no rule contributed.
func Combine(res Result, strategy confidence.Strategy) (float64, bool, error) {
	if len(res.Contributions) == 0 {
		return 0, false, nil
	}
	scores := make([]float64, len(res.Contributions))
	for i, c := range res.Contributions {
		scores[i] = c.Score
	}
	combined, err := confidence.Combine(scores, strategy)
	if err != nil {
		return 0, false, err
	}
	return combined, true, nil
}
