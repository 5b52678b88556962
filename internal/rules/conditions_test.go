package rules

import (
	"testing"

	"github.com/autarch/runtime/pkg/models"
)

func evalCtx() EvaluationContext {
	return EvaluationContext{
		AgentState: &models.AgentState{Balance: 1.0, Status: models.StatusActive},
		MarketData: models.MarketData{Price: 100, PriceChange1m: -10, VolumeChange1m: 2},
	}
}

func TestConditionEvaluator_SingleConditionMatch(t *testing.T) {
	e := NewConditionEvaluator(NewFieldResolver())
	conds := []models.Condition{{Field: "price_drop", Operator: models.OpGT, Threshold: float64(5)}}
	results, matched := e.EvaluateRule(conds, evalCtx())
	if !matched {
		t.Fatal("expected match")
	}
	if !results[0].Passed {
		t.Error("expected condition to pass")
	}
}

func TestConditionEvaluator_CaseInsensitiveEquality(t *testing.T) {
	e := NewConditionEvaluator(NewFieldResolver())
	conds := []models.Condition{{Field: "status", Operator: models.OpEQ, Threshold: "ACTIVE"}}
	_, matched := e.EvaluateRule(conds, evalCtx())
	if !matched {
		t.Error("expected case-insensitive string equality to match")
	}
}

func TestConditionEvaluator_NonNumericOperandFalse(t *testing.T) {
	e := NewConditionEvaluator(NewFieldResolver())
	conds := []models.Condition{{Field: "status", Operator: models.OpGT, Threshold: "active"}}
	_, matched := e.EvaluateRule(conds, evalCtx())
	if matched {
		t.Error("expected non-numeric operand comparison to be false")
	}
}

func TestConditionEvaluator_ANDGroupAllMustPass(t *testing.T) {
	e := NewConditionEvaluator(NewFieldResolver())
	conds := []models.Condition{
		{Field: "price_drop", Operator: models.OpGT, Threshold: float64(5)},
		{Field: "balance", Operator: models.OpGT, Threshold: float64(10)}, // fails: balance=1.0
	}
	_, matched := e.EvaluateRule(conds, evalCtx())
	if matched {
		t.Error("expected AND group to fail when one condition fails")
	}
}

func TestConditionEvaluator_ORGroupAnyPasses(t *testing.T) {
	e := NewConditionEvaluator(NewFieldResolver())
	conds := []models.Condition{
		{Field: "balance", Operator: models.OpGT, Threshold: float64(10), Logic: models.LogicOR},
		{Field: "price_drop", Operator: models.OpGT, Threshold: float64(5), Logic: models.LogicOR},
	}
	_, matched := e.EvaluateRule(conds, evalCtx())
	if !matched {
		t.Error("expected OR group to pass when any condition passes")
	}
}

func TestConditionEvaluator_NOTInvertsSingleCondition(t *testing.T) {
	e := NewConditionEvaluator(NewFieldResolver())
	conds := []models.Condition{
		{Field: "balance", Operator: models.OpGT, Threshold: float64(10), Logic: models.LogicNOT},
	}
	_, matched := e.EvaluateRule(conds, evalCtx())
	if !matched {
		t.Error("expected NOT(balance>10) to pass since balance=1.0")
	}
}

func TestConditionEvaluator_MixedExpressionIsConjunctionOfGroups(t *testing.T) {
	e := NewConditionEvaluator(NewFieldResolver())
	conds := []models.Condition{
		{Field: "price_drop", Operator: models.OpGT, Threshold: float64(5)}, // AND group, passes
		{Field: "balance", Operator: models.OpGT, Threshold: float64(10), Logic: models.LogicOR},
		{Field: "volume_change", Operator: models.OpGT, Threshold: float64(1), Logic: models.LogicOR}, // OR group, passes via this
		{Field: "balance", Operator: models.OpGT, Threshold: float64(10), Logic: models.LogicNOT},     // NOT group, passes
	}
	_, matched := e.EvaluateRule(conds, evalCtx())
	if !matched {
		t.Error("expected all three groups (AND, OR, NOT) to pass")
	}
}

func TestConditionEvaluator_AllConditionsFullyEvaluatedNoShortCircuit(t *testing.T) {
	e := NewConditionEvaluator(NewFieldResolver())
	conds := []models.Condition{
		{Field: "balance", Operator: models.OpGT, Threshold: float64(10)}, // fails
		{Field: "price_drop", Operator: models.OpGT, Threshold: float64(5)},
	}
	results, _ := e.EvaluateRule(conds, evalCtx())
	if len(results) != 2 {
		t.Fatalf("expected both conditions evaluated, got %d results", len(results))
	}
	if !results[1].Passed {
		t.Error("expected second condition to still be evaluated and pass despite first failing")
	}
}
