package reasoning

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/core/confidence"
	"github.com/agenthands/strata/internal/core/model"
)

type stubRule struct {
	name     string
	priority Priority
	apply    func(*Context, *Result) error
}

func (r stubRule) Name() string                         { return r.name }
func (r stubRule) Priority() Priority                   { return r.priority }
func (r stubRule) Apply(ctx *Context, res *Result) error { return r.apply(ctx, res) }

func trace(name string, p Priority) stubRule {
	return stubRule{name: name, priority: p, apply: func(_ *Context, res *Result) error {
		res.Inferences = append(res.Inferences, name)
		return nil
	}}
}

func TestRulesRunInPriorityOrder(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Register(OpEntityCreated, trace("low", PriorityLow))
	e.Register(OpEntityCreated, trace("critical", PriorityCritical))
	e.Register(OpEntityCreated, trace("medium", PriorityMedium))
	e.Register(OpEntityCreated, trace("high", PriorityHigh))

	res := e.Run(OpEntityCreated, &Context{})
	assert.Equal(t, []string{"critical", "high", "medium", "low"}, res.Inferences)
}

func TestEqualPrioritiesKeepRegistrationOrder(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Register(OpEntityCreated, trace("first", PriorityMedium))
	e.Register(OpEntityCreated, trace("second", PriorityMedium))
	e.Register(OpEntityCreated, trace("third", PriorityMedium))

	res := e.Run(OpEntityCreated, &Context{})
	assert.Equal(t, []string{"first", "second", "third"}, res.Inferences)
}

func TestUnknownOperationIsNeutral(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Register(OpEntityCreated, trace("only", PriorityHigh))

	res := e.Run(OpPeriodicScan, &Context{})
	assert.Empty(t, res.Inferences)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, res.Contributions)
}

func TestFailingRuleBecomesWarningAndChainContinues(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Register(OpEntityCreated, stubRule{name: "broken", priority: PriorityCritical,
		apply: func(*Context, *Result) error { return errors.New("boom") }})
	e.Register(OpEntityCreated, trace("survivor", PriorityLow))

	res := e.Run(OpEntityCreated, &Context{})
	assert.Equal(t, []string{"survivor"}, res.Inferences)
	assert.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "broken")
}

func TestPanickingRuleIsIsolated(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Register(OpEntityCreated, stubRule{name: "panicky", priority: PriorityCritical,
		apply: func(*Context, *Result) error { panic("nil map write") }})
	e.Register(OpEntityCreated, trace("survivor", PriorityLow))

	res := e.Run(OpEntityCreated, &Context{})
	assert.Equal(t, []string{"survivor"}, res.Inferences)
	assert.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "panic")
}

func TestHaltStopsTheChain(t *testing.T) {
	e := NewEngine(zap.NewNop())
	e.Register(OpEntityCreated, stubRule{name: "gate", priority: PriorityCritical,
		apply: func(_ *Context, res *Result) error {
			res.Halt = true
			return nil
		}})
	e.Register(OpEntityCreated, trace("never", PriorityLow))

	res := e.Run(OpEntityCreated, &Context{})
	assert.Empty(t, res.Inferences)
	assert.Contains(t, res.Provenance, "chain halted by gate")
}

func TestRunIsDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	build := func() (*Engine, *Context) {
		e := NewEngine(zap.NewNop())
		RegisterDefaults(e, 168*time.Hour)
		v, _ := confidence.New(0.8, "extraction:doc-1", now.Add(-24*time.Hour))
		return e, &Context{
			Entity: &model.Entity{
				ID:            "e1",
				CanonicalName: "Crohn's Disease",
				Type:          "Disease",
				Confidence:    v,
				Aliases:       []string{"CD", "Regional Enteritis"},
				SourceRefs:    []model.SourceRef{{DocumentID: "doc-1"}, {DocumentID: "doc-2"}},
			},
			Now: now,
		}
	}

	e1, ctx1 := build()
	e2, ctx2 := build()
	for _, op := range []Operation{OpEntityCreated, OpPeriodicScan} {
		assert.Equal(t, e1.Run(op, ctx1), e2.Run(op, ctx2), "operation %s", op)
	}
}

func TestDefaultEntityRules(t *testing.T) {
	e := NewEngine(zap.NewNop())
	RegisterDefaults(e, 168*time.Hour)

	now := time.Now().UTC()
	v, _ := confidence.New(0.75, "extraction:doc-1", now)
	res := e.Run(OpEntityCreated, &Context{
		Entity: &model.Entity{
			ID:            "e1",
			CanonicalName: "Crohn's Disease",
			Confidence:    v,
			Aliases:       []string{"CD", "Regional Enteritis"},
			SourceRefs:    []model.SourceRef{{DocumentID: "doc-1"}},
		},
		Now: now,
	})

	// Missing type flagged, extraction score contributed, aliases corroborated.
	assert.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no type")
	names := make([]string, 0, len(res.Contributions))
	for _, c := range res.Contributions {
		names = append(names, c.Rule)
	}
	assert.Contains(t, names, "source_evidence")
	assert.Contains(t, names, "alias_corroboration")
}

func TestEndpointCeilingRuleHalts(t *testing.T) {
	e := NewEngine(zap.NewNop())
	RegisterDefaults(e, 168*time.Hour)

	v, _ := confidence.New(0.9, "extraction:doc-1", time.Now())
	res := e.Run(OpRelationshipCreated, &Context{
		Relationship: &model.Relationship{ID: "r1", Type: "TREATS", Layer: model.LayerReasoning, Confidence: v},
		SourceLayer:  model.LayerSemantic,
		TargetLayer:  model.LayerApplication,
		Now:          time.Now(),
	})

	assert.True(t, len(res.Warnings) > 0)
	assert.Contains(t, res.Warnings[0], "exceeds endpoint layer")
	// Halted before the provenance rule could contribute.
	assert.Empty(t, res.Contributions)
}

func TestPeriodicScanDecaysStaleEntities(t *testing.T) {
	e := NewEngine(zap.NewNop())
	RegisterDefaults(e, 168*time.Hour)

	now := time.Now().UTC()
	v, _ := confidence.New(0.9, "extraction:doc-1", now.Add(-336*time.Hour))
	res := e.Run(OpPeriodicScan, &Context{
		Entity: &model.Entity{ID: "e1", CanonicalName: "Old Fact", Confidence: v},
		Now:    now,
	})

	var decayed float64
	for _, c := range res.Contributions {
		if c.Rule == "stale_decay" {
			decayed = c.Score
		}
	}
	// Two half-lives without confirmation quarters the score.
	assert.InDelta(t, 0.225, decayed, 0.001)
}

func TestCombineFoldsContributions(t *testing.T) {
	res := Result{Contributions: []Contribution{{Rule: "a", Score: 0.6}, {Rule: "b", Score: 0.9}}}

	got, ok, err := Combine(res, confidence.StrategyMax)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.9, got)

	_, ok, err = Combine(Result{}, confidence.StrategyMax)
	assert.NoError(t, err)
	assert.False(t, ok)
}
