// Package confidence implements the score algebra shared by entities and
// relationships. Scores live in [0,1]; every update appends to a bounded
// evidence trail so a score can always be explained.
package confidence

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidScore is returned for any score outside [0,1] or NaN.
var ErrInvalidScore = errors.New("confidence score outside [0,1]")

// Strategy selects how multiple scores fold into one.
type Strategy string

const (
	StrategyWeightedAverage Strategy = "weighted_average"
	StrategyMax             Strategy = "max"
	StrategyMin             Strategy = "min"
	StrategyBayesian        Strategy = "bayesian_update"
)

// maxEvidence bounds the trail; older entries fall off first.
const maxEvidence = 10

// Evidence is one recorded confidence input.
type Evidence struct {
	Score      float64   `json:"score"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Value is a score plus the evidence that produced it.
type Value struct {
	Score    float64    `json:"score"`
	Evidence []Evidence `json:"evidence,omitempty"`
}

// New builds a value from an initial extraction score.
func New(score float64, source string, at time.Time) (Value, error) {
	if err := validate(score); err != nil {
		return Value{}, err
	}
	return Value{
		Score:    score,
		Evidence: []Evidence{{Score: score, Source: source, RecordedAt: at}},
	}, nil
}

// Update folds a new score into the value under the given strategy and
// appends it to the evidence trail.
func (v Value) Update(score float64, source string, strategy Strategy, at time.Time) (Value, error) {
	if err := validate(score); err != nil {
		return Value{}, err
	}
	combined, err := Combine([]float64{v.Score, score}, strategy)
	if err != nil {
		return Value{}, err
	}

	evidence := append(append([]Evidence(nil), v.Evidence...),
		Evidence{Score: score, Source: source, RecordedAt: at})
	if len(evidence) > maxEvidence {
		evidence = evidence[len(evidence)-maxEvidence:]
	}
	return Value{Score: combined, Evidence: evidence}, nil
}

// Combine folds scores into one. weighted_average weighs later scores more
// (positional weights 1..n); bayesian_update multiplies odds, so independent
// agreeing signals reinforce beyond either input.
func Combine(scores []float64, strategy Strategy) (float64, error) {
	if len(scores) == 0 {
		return 0, fmt.Errorf("no scores to combine")
	}
	for _, s := range scores {
		if err := validate(s); err != nil {
			return 0, err
		}
	}

	switch strategy {
	case StrategyWeightedAverage:
		var sum, weights float64
		for i, s := range scores {
			w := float64(i + 1)
			sum += w * s
			weights += w
		}
		return clamp(sum / weights), nil

	case StrategyMax:
		best := scores[0]
		for _, s := range scores[1:] {
			if s > best {
				best = s
			}
		}
		return best, nil

	case StrategyMin:
		worst := scores[0]
		for _, s := range scores[1:] {
			if s < worst {
				worst = s
			}
		}
		return worst, nil

	case StrategyBayesian:
		odds := 1.0
		for _, s := range scores {
			if s == 0 {
				return 0, nil
			}
			if s == 1 {
				return 1, nil
			}
			odds *= s / (1 - s)
		}
		return clamp(odds / (1 + odds)), nil
	}
	return 0, fmt.Errorf("unknown combine strategy %q", strategy)
}

// Decay applies exponential half-life decay: after one half-life without
// confirmation the score halves. Negative elapsed leaves the score untouched.
func Decay(score float64, elapsed, halfLife time.Duration) (float64, error) {
	if err := validate(score); err != nil {
		return 0, err
	}
	if halfLife <= 0 {
		return 0, fmt.Errorf("half-life must be positive, got %s", halfLife)
	}
	if elapsed <= 0 {
		return score, nil
	}
	factor := math.Exp2(-elapsed.Hours() / halfLife.Hours())
	return clamp(score * factor), nil
}

func validate(score float64) error {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidScore, score)
	}
	return nil
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
