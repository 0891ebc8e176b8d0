package resolve

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/core/model"
	"github.com/agenthands/strata/internal/llm"
)

// embeddingStrategy matches on cosine similarity between the draft's name
// embedding and stored candidate embeddings. It only runs when the fuzzy
// stage found nothing (the resolver stops at the first matching stage), which
// bounds embedding cost. Embedder failures degrade to no matches, never to a
// fatal error.
type embeddingStrategy struct {
	embedder llm.EmbedderClient
	cutoff   float64
	logger   *zap.Logger
}

func (embeddingStrategy) Name() string { return "embedding_similarity" }

func (s embeddingStrategy) Match(ctx context.Context, q Query, candidates []Candidate) ([]model.ResolutionCandidate, error) {
	if s.embedder == nil {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, q.Draft.Name)
	if err != nil {
		s.logger.Warn("embedding unavailable, skipping strategy",
			zap.String("name", q.Draft.Name), zap.Error(err))
		return nil, nil
	}

	var matches []model.ResolutionCandidate
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		sim := cosine(vec, c.Embedding)
		if sim >= s.cutoff {
			matches = append(matches, model.ResolutionCandidate{
				EntityID:   c.ID,
				Strategy:   "embedding_similarity",
				Confidence: sim,
			})
		}
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
