package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/config"
	"github.com/agenthands/strata/internal/core/model"
)

func testResolver(t *testing.T, synonyms map[string]string) *Resolver {
	t.Helper()
	return New(config.Default().Resolution, synonyms, nil, zap.NewNop())
}

func draftQuery(name string) Query {
	return Query{Draft: model.EntityDraft{Name: name, Type: "Disease", Confidence: 0.8}}
}

func TestResolveExactMatchWinsFirst(t *testing.T) {
	r := testResolver(t, nil)
	candidates := []Candidate{
		{ID: "e1", Name: "Crohn's Disease"},
		{ID: "e2", Name: "Colitis"},
	}

	outcome, err := r.Resolve(context.Background(), draftQuery("crohn's disease"), candidates)
	assert.NoError(t, err)
	assert.Equal(t, model.OutcomeMergedInto, outcome.Kind)
	assert.Equal(t, "e1", outcome.EntityID)
	assert.Equal(t, "exact_name", outcome.Strategy)
	assert.Equal(t, 1.0, outcome.MatchConfidence)
}

func TestResolveMatchesAliases(t *testing.T) {
	r := testResolver(t, nil)
	candidates := []Candidate{
		{ID: "e1", Name: "Crohn's Disease", Aliases: []string{"Regional Enteritis"}},
	}

	outcome, err := r.Resolve(context.Background(), draftQuery("regional enteritis"), candidates)
	assert.NoError(t, err)
	assert.Equal(t, model.OutcomeMergedInto, outcome.Kind)
	assert.Equal(t, "e1", outcome.EntityID)
}

func TestResolveNormalizedExpandsAbbreviation(t *testing.T) {
	r := testResolver(t, map[string]string{"IBD": "Inflammatory Bowel Disease"})
	candidates := []Candidate{
		{ID: "e1", Name: "Inflammatory Bowel Disease"},
	}

	outcome, err := r.Resolve(context.Background(), draftQuery("IBD"), candidates)
	assert.NoError(t, err)
	assert.Equal(t, model.OutcomeMergedInto, outcome.Kind)
	assert.Equal(t, "normalized_name", outcome.Strategy)
	assert.Equal(t, 0.9, outcome.MatchConfidence)
}

func TestResolveFuzzyCatchesTypos(t *testing.T) {
	r := testResolver(t, nil)
	candidates := []Candidate{
		{ID: "e1", Name: "Ulcerative Colitis"},
	}

	outcome, err := r.Resolve(context.Background(), draftQuery("Ulcerative Collitis"), candidates)
	assert.NoError(t, err)
	assert.Equal(t, model.OutcomeMergedInto, outcome.Kind)
	assert.Equal(t, "fuzzy_name", outcome.Strategy)
	assert.Greater(t, outcome.MatchConfidence, 0.85)
}

func TestResolveNewEntityWhenNothingMatches(t *testing.T) {
	r := testResolver(t, nil)
	candidates := []Candidate{
		{ID: "e1", Name: "Aspirin"},
	}

	outcome, err := r.Resolve(context.Background(), draftQuery("Metformin"), candidates)
	assert.NoError(t, err)
	assert.Equal(t, model.OutcomeNewEntity, outcome.Kind)
	assert.Empty(t, outcome.EntityID)
}

func TestResolveEqualTopMatchesAreAmbiguous(t *testing.T) {
	r := testResolver(t, nil)
	candidates := []Candidate{
		{ID: "e1", Name: "Crohn's Disease"},
		{ID: "e2", Name: "Crohn's Disease", Aliases: []string{"duplicate import"}},
	}

	outcome, err := r.Resolve(context.Background(), draftQuery("Crohn's Disease"), candidates)
	assert.NoError(t, err)
	assert.Equal(t, model.OutcomeAmbiguous, outcome.Kind)
	assert.Len(t, outcome.Candidates, 2)
}

func TestResolveNeighborhoodIsReviewOnly(t *testing.T) {
	r := testResolver(t, nil)
	// No name resemblance, but a strongly overlapping neighborhood.
	q := Query{
		Draft:       model.EntityDraft{Name: "The Table Formerly Known As Users", Type: "Table"},
		NeighborIDs: []string{"a", "b", "c"},
	}
	candidates := []Candidate{
		{ID: "e1", Name: "user_accounts", NeighborIDs: []string{"a", "b", "c", "d"}},
	}

	outcome, err := r.Resolve(context.Background(), q, candidates)
	assert.NoError(t, err)
	assert.Equal(t, model.OutcomeAmbiguous, outcome.Kind)
	assert.Equal(t, "graph_neighborhood", outcome.Strategy)
	assert.Equal(t, "e1", outcome.Candidates[0].EntityID)
}

func TestResolveCancelledContext(t *testing.T) {
	r := testResolver(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, draftQuery("anything"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }
func (failingStrategy) Match(context.Context, Query, []Candidate) ([]model.ResolutionCandidate, error) {
	return nil, errors.New("backend down")
}

func TestResolveDegradesWhenStrategyFails(t *testing.T) {
	r := NewWithStrategies(zap.NewNop(), nil, failingStrategy{}, exactStrategy{})
	candidates := []Candidate{{ID: "e1", Name: "Aspirin"}}

	outcome, err := r.Resolve(context.Background(), draftQuery("Aspirin"), candidates)
	assert.NoError(t, err)
	assert.Equal(t, model.OutcomeMergedInto, outcome.Kind)
	assert.Equal(t, "e1", outcome.EntityID)
}
