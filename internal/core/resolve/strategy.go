package resolve

import (
	"context"
	"strings"

	"github.com/agenthands/strata/internal/core/model"
)

// Candidate is an existing canonical entity projected down to what the
// matching strategies need.
type Candidate struct {
	ID          string
	Name        string
	Aliases     []string
	Embedding   []float32
	NeighborIDs []string
}

// Query is one resolution request: the draft plus the ids of its
// already-resolved neighbors from the same batch (used by the
// graph-neighborhood strategy).
type Query struct {
	Draft       model.EntityDraft
	NeighborIDs []string
}

// Strategy is one algorithm for deciding whether a draft refers to the same
// real-world concept as an existing entity. Strategies are independent and
// return only matches at or above their own cutoff.
type Strategy interface {
	Name() string
	Match(ctx context.Context, q Query, candidates []Candidate) ([]model.ResolutionCandidate, error)
}

// exactStrategy matches on case-insensitive equality with the canonical name
// or any alias. Confidence 1.0.
type exactStrategy struct{}

func (exactStrategy) Name() string { return "exact_name" }

func (exactStrategy) Match(_ context.Context, q Query, candidates []Candidate) ([]model.ResolutionCandidate, error) {
	var matches []model.ResolutionCandidate
	for _, c := range candidates {
		if candidateHasName(c, q.Draft.Name) {
			matches = append(matches, model.ResolutionCandidate{
				EntityID:   c.ID,
				Strategy:   "exact_name",
				Confidence: 1.0,
			})
		}
	}
	return matches, nil
}

// normalizedStrategy matches after abbreviation expansion and
// punctuation/apostrophe normalization. Confidence 0.9.
type normalizedStrategy struct {
	synonyms map[string]string
}

func (normalizedStrategy) Name() string { return "normalized_name" }

func (s normalizedStrategy) Match(_ context.Context, q Query, candidates []Candidate) ([]model.ResolutionCandidate, error) {
	key := NameKey(NormalizeName(q.Draft.Name, s.synonyms))
	var matches []model.ResolutionCandidate
	for _, c := range candidates {
		for _, name := range append([]string{c.Name}, c.Aliases...) {
			if NameKey(NormalizeName(name, s.synonyms)) == key {
				matches = append(matches, model.ResolutionCandidate{
					EntityID:   c.ID,
					Strategy:   "normalized_name",
					Confidence: 0.9,
				})
				break
			}
		}
	}
	return matches, nil
}

// fuzzyStrategy matches on edit-distance similarity over name keys above a
// configurable cutoff. Confidence scales with the similarity.
type fuzzyStrategy struct {
	cutoff float64
}

func (fuzzyStrategy) Name() string { return "fuzzy_name" }

func (s fuzzyStrategy) Match(_ context.Context, q Query, candidates []Candidate) ([]model.ResolutionCandidate, error) {
	key := NameKey(q.Draft.Name)
	var matches []model.ResolutionCandidate
	for _, c := range candidates {
		best := 0.0
		for _, name := range append([]string{c.Name}, c.Aliases...) {
			if sim := Similarity(key, NameKey(name)); sim > best {
				best = sim
			}
		}
		if best >= s.cutoff {
			matches = append(matches, model.ResolutionCandidate{
				EntityID:   c.ID,
				Strategy:   "fuzzy_name",
				Confidence: best,
			})
		}
	}
	return matches, nil
}

func candidateHasName(c Candidate, name string) bool {
	if strings.EqualFold(c.Name, name) {
		return true
	}
	for _, a := range c.Aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}
