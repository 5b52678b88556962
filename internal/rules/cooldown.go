package rules

import "time"

// CooldownTracker owns a mapping from ruleIndex to the last-execution
// timestamp (ms). It has no internal concurrency control: per spec.md §4.1
// each tracker is owned by exactly one DecisionModule (one Agent) and is
// only ever touched under that Agent's serial tick discipline, the same
// single-owner assumption internal/risk.CircuitBreaker makes under its own
// mutex — here no mutex is needed at all.
type CooldownTracker struct {
	lastFired map[int]int64
}

// NewCooldownTracker constructs an empty tracker.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{lastFired: make(map[int]int64)}
}

// Record stamps ruleIndex with the current time.
func (t *CooldownTracker) Record(ruleIndex int) {
	t.lastFired[ruleIndex] = nowMs()
}

// CooldownStatus is the result of a Check call.
type CooldownStatus struct {
	Active       bool
	RemainingMs  int64
}

// Check reports whether ruleIndex is still within its cooldown window.
// A rule with no prior record, or cooldownSeconds == 0, is always clear.
// At exactly cooldownSeconds*1000 elapsed the rule is clear (boundary is
// inclusive of "clear").
func (t *CooldownTracker) Check(ruleIndex int, cooldownSeconds int) CooldownStatus {
	if cooldownSeconds == 0 {
		return CooldownStatus{Active: false, RemainingMs: 0}
	}
	last, ok := t.lastFired[ruleIndex]
	if !ok {
		return CooldownStatus{Active: false, RemainingMs: 0}
	}
	remaining := int64(cooldownSeconds)*1000 - (nowMs() - last)
	if remaining <= 0 {
		return CooldownStatus{Active: false, RemainingMs: 0}
	}
	return CooldownStatus{Active: true, RemainingMs: remaining}
}

// Reset clears all recorded firings.
func (t *CooldownTracker) Reset() {
	t.lastFired = make(map[int]int64)
}

var nowMs = func() int64 {
	return time.Now().UnixMilli()
}
