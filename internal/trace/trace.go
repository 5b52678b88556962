// Package trace builds immutable DecisionTrace snapshots and maintains the
// bounded per-agent ring buffer of trace history.
package trace

import (
	"time"

	"github.com/autarch/runtime/pkg/models"
)

// Now is overridable in tests; production code leaves it at time.Now.
var Now = time.Now

// Builder constructs DecisionTrace values. It holds no state of its own —
// every input crossing into Build is deep-copied so the resulting trace can
// never be mutated by a later change to the caller's evaluations/decision.
type Builder struct{}

// NewBuilder constructs a trace Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build produces a frozen DecisionTrace. marketData is copied by value (it
// is already an immutable snapshot type); evaluations are deep-copied so
// nested ConditionResult slices can't alias the caller's working copy.
func (b *Builder) Build(agentID int, marketData models.MarketData, evaluations []models.RuleEvaluation, decision models.DecisionResult, execution *models.TraceExecution) models.DecisionTrace {
	frozenEvaluations := make([]models.RuleEvaluation, len(evaluations))
	for i, ev := range evaluations {
		frozen := ev
		frozen.Conditions = append([]models.ConditionResult(nil), ev.Conditions...)
		frozenEvaluations[i] = frozen
	}

	trace := models.DecisionTrace{
		Timestamp:   Now().UnixMilli(),
		AgentID:     agentID,
		MarketData:  marketData,
		Evaluations: frozenEvaluations,
		Decision:    decision,
	}
	if execution != nil {
		exec := *execution
		trace.Execution = &exec
	}
	return trace
}
