package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/autarch/runtime/pkg/models"
)

// ConditionEvaluator evaluates one condition, or a rule's whole mixed
// AND/OR/NOT condition list, against an EvaluationContext.
type ConditionEvaluator struct {
	resolver *FieldResolver
}

// NewConditionEvaluator constructs a ConditionEvaluator backed by resolver.
func NewConditionEvaluator(resolver *FieldResolver) *ConditionEvaluator {
	return &ConditionEvaluator{resolver: resolver}
}

// EvaluateRule evaluates every condition in conditions (fully — no
// short-circuit, since the trace records every result) and combines them
// per the compound semantics in spec.md §4.3: the AND group (default-logic
// conditions) must pass, each contiguous OR run must pass, and each NOT
// condition (a unary group on its own) must pass once inverted.
func (e *ConditionEvaluator) EvaluateRule(conditions []models.Condition, ctx EvaluationContext) ([]models.ConditionResult, bool) {
	results := make([]models.ConditionResult, len(conditions))
	passes := make([]bool, len(conditions))
	for i, c := range conditions {
		results[i], passes[i] = e.evaluateSingle(c, ctx)
	}

	groupPasses := make([]bool, 0, len(conditions))
	andAllPass := true
	i := 0
	for i < len(conditions) {
		logic := effectiveLogic(conditions[i].Logic)
		switch logic {
		case models.LogicNOT:
			groupPasses = append(groupPasses, !passes[i])
			i++
		case models.LogicOR:
			j := i
			anyPass := false
			for j < len(conditions) && effectiveLogic(conditions[j].Logic) == models.LogicOR {
				if passes[j] {
					anyPass = true
				}
				j++
			}
			groupPasses = append(groupPasses, anyPass)
			i = j
		default:
			if !passes[i] {
				andAllPass = false
			}
			i++
		}
	}
	groupPasses = append(groupPasses, andAllPass)

	matched := true
	for _, g := range groupPasses {
		if !g {
			matched = false
			break
		}
	}
	return results, matched
}

func effectiveLogic(l models.Logic) models.Logic {
	if l == "" {
		return models.LogicAND
	}
	return l
}

func (e *ConditionEvaluator) evaluateSingle(c models.Condition, ctx EvaluationContext) (models.ConditionResult, bool) {
	actual, peerStale := e.resolver.Resolve(c.Field, ctx)
	passed := compare(c.Operator, actual, c.Threshold)

	return models.ConditionResult{
		Field:         c.Field,
		Operator:      c.Operator,
		Threshold:     c.Threshold,
		Actual:        actual,
		Passed:        passed,
		PeerDataStale: peerStale,
	}, passed
}

// compare applies operator to actual/threshold. ==/!= are case-insensitive
// string comparisons unless both sides parse as numbers, in which case
// numeric equality is used. The remaining operators coerce both sides to
// float64; if either side doesn't coerce, the condition is false.
func compare(op models.Operator, actual, threshold interface{}) bool {
	switch op {
	case models.OpEQ, models.OpNE:
		eq := looseEquals(actual, threshold)
		if op == models.OpEQ {
			return eq
		}
		return !eq
	default:
		af, aok := toFloat(actual)
		tf, tok := toFloat(threshold)
		if !aok || !tok {
			return false
		}
		switch op {
		case models.OpGT:
			return af > tf
		case models.OpLT:
			return af < tf
		case models.OpGE:
			return af >= tf
		case models.OpLE:
			return af <= tf
		default:
			return false
		}
	}
}

func looseEquals(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return strings.EqualFold(toStr(a), toStr(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toStr(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
