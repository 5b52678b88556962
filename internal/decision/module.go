// Package decision defines the polymorphic DecisionModule capability an
// Agent holds, and the default rule-based implementation that wraps
// internal/rules.RuleEngine.
package decision

import (
	"context"

	"github.com/autarch/runtime/internal/rules"
	"github.com/autarch/runtime/pkg/models"
)

// Module is the small polymorphic capability every Agent holds: evaluate a
// tick's context into a decision, with an optional reset hook for
// strategies that carry internal state (e.g. the rule engine's cooldown
// tracker). Alternative strategies — ML-scored, manual-override, or a
// pass-through for tests — can implement Module without touching Agent.
type Module interface {
	// Evaluate may perform I/O (hence the context) and must return the
	// per-rule evaluation trace alongside the aggregated decision so the
	// caller can build a DecisionTrace.
	Evaluate(ctx context.Context, config *models.AgentConfig, evalCtx rules.EvaluationContext) ([]models.RuleEvaluation, models.DecisionResult, error)
}

// Resettable is implemented by modules that carry state an owning Agent
// should clear on stop (e.g. cooldown history).
type Resettable interface {
	Reset()
}

// RuleBasedModule is the default Module: a thin wrapper around a
// RuleEngine with its own private CooldownTracker.
type RuleBasedModule struct {
	engine *rules.RuleEngine
}

// NewRuleBasedModule constructs the default module with the given
// execution threshold (0 selects spec.md's default of 70).
func NewRuleBasedModule(executionThreshold int) *RuleBasedModule {
	return &RuleBasedModule{engine: rules.NewRuleEngine(executionThreshold)}
}

// Evaluate runs the wrapped RuleEngine synchronously; it performs no I/O of
// its own, but still accepts ctx to satisfy the Module contract (spec.md
// §4.5: "may be slow/async").
func (m *RuleBasedModule) Evaluate(_ context.Context, config *models.AgentConfig, evalCtx rules.EvaluationContext) ([]models.RuleEvaluation, models.DecisionResult, error) {
	evaluations, result := m.engine.Evaluate(config, evalCtx)
	return evaluations, result, nil
}

// Reset clears the engine's cooldown tracker.
func (m *RuleBasedModule) Reset() {
	m.engine.Reset()
}

var (
	_ Module     = (*RuleBasedModule)(nil)
	_ Resettable = (*RuleBasedModule)(nil)
)
