// Package reasoning runs ordered symbolic rules against graph events. The
// engine is deterministic: identical inputs produce byte-identical inferences
// and contributions. Anything LLM-backed lives outside this core behind a
// narrow scoring interface.
package reasoning

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/core/model"
)

// Operation is the typed event kind rules are registered under; it replaces
// stringly-keyed dispatch.
type Operation int

const (
	OpEntityCreated Operation = iota
	OpRelationshipCreated
	OpPeriodicScan
)

func (o Operation) String() string {
	switch o {
	case OpEntityCreated:
		return "entity_created"
	case OpRelationshipCreated:
		return "relationship_created"
	case OpPeriodicScan:
		return "periodic_scan"
	}
	return "unknown"
}

// Priority orders rules within one operation. Critical rules run first and
// may halt the chain.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// Context is the event being reasoned about plus any externally supplied
// material (retrieved documents, endpoint layers for edges).
type Context struct {
	Entity       *model.Entity
	Relationship *model.Relationship
	SourceLayer  model.Layer
	TargetLayer  model.Layer
	Documents    []string
	Now          time.Time
}

// Contribution is one rule's confidence input, combined downstream by the
// confidence model.
type Contribution struct {
	Rule  string  `json:"rule"`
	Score float64 `json:"score"`
}

// Result accumulates across the rule chain.
type Result struct {
	Inferences    []string       `json:"inferences"`
	Warnings      []string       `json:"warnings"`
	Contributions []Contribution `json:"confidence_contributions"`
	Provenance    []string       `json:"provenance"`
	Halt          bool           `json:"-"`
}

// Rule is one named reasoner. Apply mutates the accumulating result; a
// returned error skips the rule (recorded as a warning) without aborting the
// chain.
type Rule interface {
	Name() string
	Priority() Priority
	Apply(rctx *Context, res *Result) error
}

type Engine struct {
	rules  map[Operation][]Rule
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		rules:  make(map[Operation][]Rule),
		logger: logger.Named("reasoning"),
	}
}

// Register adds a rule under an operation, keeping the chain ordered by
// priority (stable for equal priorities, so registration order ties break
// deterministically). Rules are registered at startup; Register is not safe
// for concurrent use with Run.
func (e *Engine) Register(op Operation, rule Rule) {
	e.rules[op] = append(e.rules[op], rule)
	sort.SliceStable(e.rules[op], func(i, j int) bool {
		return e.rules[op][i].Priority() < e.rules[op][j].Priority()
	})
}

// Run executes the chain for op. Unknown operations return a neutral result
// rather than failing, so new event types degrade gracefully. A rule failure
// contributes a warning and the chain continues; a halting rule stops it.
func (e *Engine) Run(op Operation, rctx *Context) Result {
	var res Result

	chain, ok := e.rules[op]
	if !ok || len(chain) == 0 {
		return res
	}

	for _, rule := range chain {
		if err := e.applyRule(rule, rctx, &res); err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("rule %s failed: %v", rule.Name(), err))
			e.logger.Warn("rule failed",
				zap.String("operation", op.String()),
				zap.String("rule", rule.Name()),
				zap.Error(err))
			continue
		}
		if res.Halt {
			res.Provenance = append(res.Provenance,
				fmt.Sprintf("chain halted by %s", rule.Name()))
			break
		}
	}
	return res
}

// applyRule isolates panics so one broken reasoner cannot take down the
// chain.
func (e *Engine) applyRule(rule Rule, rctx *Context, res *Result) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return rule.Apply(rctx, res)
}
