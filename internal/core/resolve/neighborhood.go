package resolve

import (
	"context"

	"github.com/agenthands/strata/internal/core/model"
)

// neighborhoodStrategy proposes two entities as the same concept when their
// relationship patterns to already-resolved neighbors overlap. Proposals
// carry a fixed low confidence and are flagged for review by the resolver,
// never auto-merged.
type neighborhoodStrategy struct {
	minOverlap float64
	confidence float64
}

func (neighborhoodStrategy) Name() string { return "graph_neighborhood" }

func (s neighborhoodStrategy) Match(_ context.Context, q Query, candidates []Candidate) ([]model.ResolutionCandidate, error) {
	if len(q.NeighborIDs) == 0 {
		return nil, nil
	}

	draftSet := make(map[string]bool, len(q.NeighborIDs))
	for _, id := range q.NeighborIDs {
		draftSet[id] = true
	}

	var matches []model.ResolutionCandidate
	for _, c := range candidates {
		if overlapCoefficient(draftSet, c.NeighborIDs) >= s.minOverlap {
			matches = append(matches, model.ResolutionCandidate{
				EntityID:   c.ID,
				Strategy:   "graph_neighborhood",
				Confidence: s.confidence,
			})
		}
	}
	return matches, nil
}

// overlapCoefficient is |A∩B| / min(|A|,|B|).
func overlapCoefficient(a map[string]bool, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	seen := make(map[string]bool, len(b))
	for _, id := range b {
		if seen[id] {
			continue
		}
		seen[id] = true
		if a[id] {
			shared++
		}
	}
	smaller := len(a)
	if len(seen) < smaller {
		smaller = len(seen)
	}
	return float64(shared) / float64(smaller)
}
