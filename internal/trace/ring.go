package trace

import "github.com/autarch/runtime/pkg/models"

// Append adds trace to history, evicting the oldest entry once the buffer
// would exceed models.MaxTraceHistory. The returned slice is always a new
// backing array snapshot — callers that handed out the previous slice (e.g.
// as part of a frozen AgentState) are unaffected by subsequent appends.
func Append(history []models.DecisionTrace, entry models.DecisionTrace) []models.DecisionTrace {
	next := make([]models.DecisionTrace, 0, len(history)+1)
	next = append(next, history...)
	next = append(next, entry)
	if len(next) > models.MaxTraceHistory {
		next = next[len(next)-models.MaxTraceHistory:]
	}
	return next
}
