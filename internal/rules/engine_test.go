package rules

import (
	"strings"
	"testing"

	"github.com/autarch/runtime/pkg/models"
)

func TestRuleEngine_SingleRuleFire(t *testing.T) {
	config := &models.AgentConfig{
		Rules: []models.Rule{
			{
				Name:            "buy the dip",
				Conditions:      []models.Condition{{Field: "price_drop", Operator: models.OpGT, Threshold: float64(5)}},
				Action:          models.ActionBuy,
				Amount:          0.1,
				Weight:          80,
				CooldownSeconds: 60,
			},
		},
	}
	engine := NewRuleEngine(70)
	base := int64(1_700_000_000_000)
	nowMs = func() int64 { return base }

	ctx := EvaluationContext{
		AgentState: &models.AgentState{Balance: 1.0},
		MarketData: models.MarketData{PriceChange1m: -10},
	}

	evaluations, decision := engine.Evaluate(config, ctx)
	if decision.Action != models.ActionBuy {
		t.Fatalf("expected buy, got %s", decision.Action)
	}
	if decision.Score != 80 {
		t.Errorf("expected score 80, got %d", decision.Score)
	}
	if !evaluations[0].Matched {
		t.Error("expected evaluations[0].matched = true")
	}

	// Second tick 5 seconds later: cooldown active.
	nowMs = func() int64 { return base + 5_000 }
	evaluations, decision = engine.Evaluate(config, ctx)
	if decision.Action != models.ActionNone {
		t.Fatalf("expected none during cooldown, got %s", decision.Action)
	}
	if evaluations[0].Cooldown != models.CooldownActive {
		t.Error("expected cooldown active on second tick")
	}
	if evaluations[0].CooldownRemaining < 54_000 || evaluations[0].CooldownRemaining > 55_000 {
		t.Errorf("expected ~55000ms remaining, got %d", evaluations[0].CooldownRemaining)
	}
}

func TestRuleEngine_WeightedCooperation(t *testing.T) {
	config := &models.AgentConfig{
		Rules: []models.Rule{
			{Name: "r1", Conditions: []models.Condition{{Field: "price_drop", Operator: models.OpGT, Threshold: float64(1)}}, Action: models.ActionBuy, Amount: 0.2, Weight: 40},
			{Name: "r2", Conditions: []models.Condition{{Field: "price_drop", Operator: models.OpGT, Threshold: float64(1)}}, Action: models.ActionBuy, Amount: 0.3, Weight: 45},
		},
	}
	engine := NewRuleEngine(70)
	ctx := EvaluationContext{
		AgentState: &models.AgentState{Balance: 1.0},
		MarketData: models.MarketData{PriceChange1m: -10},
	}
	_, decision := engine.Evaluate(config, ctx)
	if decision.Action != models.ActionBuy {
		t.Fatalf("expected buy, got %s", decision.Action)
	}
	if decision.Score != 85 {
		t.Errorf("expected aggregate score 85, got %d", decision.Score)
	}
	if decision.Amount != 0.3 {
		t.Errorf("expected amount from weight-45 rule (0.3), got %v", decision.Amount)
	}
}

func TestRuleEngine_BalanceBlock(t *testing.T) {
	config := &models.AgentConfig{
		Rules: []models.Rule{
			{Name: "r1", Conditions: []models.Condition{{Field: "price_drop", Operator: models.OpGT, Threshold: float64(1)}}, Action: models.ActionBuy, Amount: 0.5, Weight: 80},
		},
	}
	engine := NewRuleEngine(70)
	ctx := EvaluationContext{
		AgentState: &models.AgentState{Balance: 0.3},
		MarketData: models.MarketData{PriceChange1m: -10},
	}
	evaluations, decision := engine.Evaluate(config, ctx)
	if decision.Action != models.ActionNone || decision.Reason != "insufficient_balance" {
		t.Fatalf("expected none/insufficient_balance, got %s/%s", decision.Action, decision.Reason)
	}
	if evaluations[0].Blocked != models.BlockedInsufficientBalance {
		t.Error("expected evaluation blocked=insufficient_balance")
	}
}

func TestRuleEngine_TieBreakByDeclarationOrder(t *testing.T) {
	config := &models.AgentConfig{
		Rules: []models.Rule{
			{Name: "sell-first", Conditions: []models.Condition{{Field: "price_drop", Operator: models.OpGT, Threshold: float64(1)}}, Action: models.ActionSell, Amount: 0.1, Weight: 70},
			{Name: "buy-second", Conditions: []models.Condition{{Field: "price_drop", Operator: models.OpGT, Threshold: float64(1)}}, Action: models.ActionBuy, Amount: 0.1, Weight: 70},
		},
	}
	engine := NewRuleEngine(70)
	ctx := EvaluationContext{
		AgentState: &models.AgentState{Balance: 1.0},
		MarketData: models.MarketData{PriceChange1m: -10},
	}
	_, decision := engine.Evaluate(config, ctx)
	if decision.Action != models.ActionSell {
		t.Fatalf("expected the first-declared action (sell) to win a tie, got %s", decision.Action)
	}
}

func TestRuleEngine_NoRulesMatched(t *testing.T) {
	config := &models.AgentConfig{
		Rules: []models.Rule{
			{Name: "r1", Conditions: []models.Condition{{Field: "price_drop", Operator: models.OpGT, Threshold: float64(50)}}, Action: models.ActionBuy, Amount: 0.1, Weight: 80},
		},
	}
	engine := NewRuleEngine(70)
	ctx := EvaluationContext{
		AgentState: &models.AgentState{Balance: 1.0},
		MarketData: models.MarketData{PriceChange1m: -1},
	}
	_, decision := engine.Evaluate(config, ctx)
	if decision.Reason != "no rules matched" {
		t.Errorf("expected 'no rules matched', got %q", decision.Reason)
	}
}

func TestRuleEngine_OnlyNoneActionRulesMatched(t *testing.T) {
	config := &models.AgentConfig{
		Rules: []models.Rule{
			{Name: "observe", Conditions: []models.Condition{{Field: "price_drop", Operator: models.OpGT, Threshold: float64(1)}}, Action: models.ActionNone, Amount: 0, Weight: 80},
		},
	}
	engine := NewRuleEngine(70)
	ctx := EvaluationContext{
		AgentState: &models.AgentState{Balance: 1.0},
		MarketData: models.MarketData{PriceChange1m: -10},
	}
	_, decision := engine.Evaluate(config, ctx)
	if decision.Reason != "no actionable rules matched" {
		t.Errorf("expected 'no actionable rules matched', got %q", decision.Reason)
	}
}

func TestRuleEngine_BelowThresholdMentionsScoreAndThreshold(t *testing.T) {
	config := &models.AgentConfig{
		Rules: []models.Rule{
			{Name: "r1", Conditions: []models.Condition{{Field: "price_drop", Operator: models.OpGT, Threshold: float64(1)}}, Action: models.ActionBuy, Amount: 0.1, Weight: 40},
		},
	}
	engine := NewRuleEngine(70)
	ctx := EvaluationContext{
		AgentState: &models.AgentState{Balance: 1.0},
		MarketData: models.MarketData{PriceChange1m: -10},
	}
	_, decision := engine.Evaluate(config, ctx)
	if decision.Action != models.ActionNone {
		t.Fatalf("expected none below threshold, got %s", decision.Action)
	}
	if decision.Reason == "" {
		t.Fatal("expected a reason")
	}
	if !strings.Contains(decision.Reason, "40") || !strings.Contains(decision.Reason, "70") {
		t.Errorf("expected reason to mention score 40 and threshold 70, got %q", decision.Reason)
	}
}
