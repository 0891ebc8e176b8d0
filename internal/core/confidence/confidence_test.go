package confidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCombineWeightedAverage(t *testing.T) {
	got, err := Combine([]float64{0.6, 0.7, 0.8}, StrategyWeightedAverage)
	assert.NoError(t, err)
	// Weights 1,2,3: (0.6 + 1.4 + 2.4) / 6.
	assert.InDelta(t, 0.7333, got, 0.0001)
}

func TestCombineMaxMin(t *testing.T) {
	got, err := Combine([]float64{0.2, 0.9, 0.5}, StrategyMax)
	assert.NoError(t, err)
	assert.Equal(t, 0.9, got)

	got, err = Combine([]float64{0.2, 0.9, 0.5}, StrategyMin)
	assert.NoError(t, err)
	assert.Equal(t, 0.2, got)
}

func TestCombineBayesian(t *testing.T) {
	got, err := Combine([]float64{0.8, 0.8}, StrategyBayesian)
	assert.NoError(t, err)
	// Odds 4 * 4 = 16, probability 16/17.
	assert.InDelta(t, 0.9412, got, 0.0001)

	// Certainty short-circuits.
	got, err = Combine([]float64{1.0, 0.3}, StrategyBayesian)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestCombineRejectsInvalidScores(t *testing.T) {
	_, err := Combine([]float64{0.5, 1.2}, StrategyMax)
	assert.ErrorIs(t, err, ErrInvalidScore)

	_, err = Combine([]float64{-0.1}, StrategyMax)
	assert.ErrorIs(t, err, ErrInvalidScore)

	_, err = Combine(nil, StrategyMax)
	assert.Error(t, err)
}

func TestCombineStaysInRange(t *testing.T) {
	inputs := [][]float64{
		{0, 0},
		{1, 1, 1},
		{0.999, 0.999, 0.999},
		{0.001, 0.001},
		{0.5},
	}
	strategies := []Strategy{StrategyWeightedAverage, StrategyMax, StrategyMin, StrategyBayesian}
	for _, scores := range inputs {
		for _, strategy := range strategies {
			got, err := Combine(scores, strategy)
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

func TestNewRejectsInvalidScore(t *testing.T) {
	_, err := New(1.5, "extraction", time.Now())
	assert.ErrorIs(t, err, ErrInvalidScore)
}

func TestUpdateAppendsAndBoundsEvidence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	v, err := New(0.5, "extraction:doc-1", now)
	assert.NoError(t, err)
	assert.Len(t, v.Evidence, 1)

	for i := 0; i < 20; i++ {
		v, err = v.Update(0.7, "merge", StrategyMax, now.Add(time.Duration(i)*time.Minute))
		assert.NoError(t, err)
	}
	assert.Len(t, v.Evidence, 10)
	// Oldest entries fell off; the head is no longer the extraction entry.
	assert.Equal(t, "merge", v.Evidence[0].Source)
	assert.Equal(t, 0.7, v.Score)
}

func TestDecayHalvesAfterOneHalfLife(t *testing.T) {
	got, err := Decay(0.8, 168*time.Hour, 168*time.Hour)
	assert.NoError(t, err)
	assert.InDelta(t, 0.4, got, 0.0001)

	// Nothing decays before any time passes.
	got, err = Decay(0.8, 0, 168*time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, 0.8, got)

	_, err = Decay(0.8, time.Hour, 0)
	assert.Error(t, err)
}
