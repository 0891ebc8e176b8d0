package resolve

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/config"
	"github.com/agenthands/strata/internal/core/model"
	"github.com/agenthands/strata/internal/llm"
)

// Resolver runs the matching strategies in order until one yields matches at
// its cutoff, then turns those matches into a ResolutionOutcome.
type Resolver struct {
	strategies []Strategy
	reviewOnly map[string]bool
	logger     *zap.Logger
}

// New wires the default strategy order: exact, normalized, fuzzy, embedding,
// graph-neighborhood. The embedder may be nil (strategy 4 is skipped).
func New(cfg config.ResolutionConfig, synonyms map[string]string, embedder llm.EmbedderClient, logger *zap.Logger) *Resolver {
	logger = logger.Named("resolver")
	return &Resolver{
		strategies: []Strategy{
			exactStrategy{},
			normalizedStrategy{synonyms: synonyms},
			fuzzyStrategy{cutoff: cfg.FuzzyCutoff},
			embeddingStrategy{embedder: embedder, cutoff: cfg.EmbeddingCutoff, logger: logger},
			neighborhoodStrategy{minOverlap: cfg.NeighborhoodOverlap, confidence: cfg.NeighborhoodConfidence},
		},
		reviewOnly: map[string]bool{"graph_neighborhood": true},
		logger:     logger,
	}
}

// NewWithStrategies builds a resolver with a custom strategy order; used by
// tests and callers that need a subset.
func NewWithStrategies(logger *zap.Logger, reviewOnly map[string]bool, strategies ...Strategy) *Resolver {
	if reviewOnly == nil {
		reviewOnly = map[string]bool{}
	}
	return &Resolver{strategies: strategies, reviewOnly: reviewOnly, logger: logger.Named("resolver")}
}

// Resolve decides whether the draft is a new entity, a merge into an existing
// one, or ambiguous. Multiple equally-strong matches surface as Ambiguous;
// weaker runners-up ride along as near-duplicate candidates for review.
func (r *Resolver) Resolve(ctx context.Context, q Query, candidates []Candidate) (model.ResolutionOutcome, error) {
	if err := ctx.Err(); err != nil {
		return model.ResolutionOutcome{}, err
	}

	for _, strategy := range r.strategies {
		matches, err := strategy.Match(ctx, q, candidates)
		if err != nil {
			// A failing strategy degrades resolution, never aborts it.
			r.logger.Warn("strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.String("name", q.Draft.Name),
				zap.Error(err))
			continue
		}
		if len(matches) == 0 {
			continue
		}

		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].Confidence > matches[j].Confidence
		})

		if r.reviewOnly[strategy.Name()] {
			r.logger.Info("match flagged for review",
				zap.String("strategy", strategy.Name()),
				zap.String("name", q.Draft.Name),
				zap.Int("candidates", len(matches)))
			return model.ResolutionOutcome{
				Kind:       model.OutcomeAmbiguous,
				Strategy:   strategy.Name(),
				Candidates: matches,
			}, nil
		}

		if len(matches) > 1 && matches[0].Confidence == matches[1].Confidence {
			return model.ResolutionOutcome{
				Kind:       model.OutcomeAmbiguous,
				Strategy:   strategy.Name(),
				Candidates: matches,
			}, nil
		}

		if len(matches) > 1 {
			r.logger.Info("near-duplicates recorded",
				zap.String("name", q.Draft.Name),
				zap.Int("count", len(matches)-1))
		}
		return model.ResolutionOutcome{
			Kind:            model.OutcomeMergedInto,
			EntityID:        matches[0].EntityID,
			Strategy:        strategy.Name(),
			MatchConfidence: matches[0].Confidence,
			Candidates:      matches[1:],
		}, nil
	}

	return model.ResolutionOutcome{Kind: model.OutcomeNewEntity}, nil
}
