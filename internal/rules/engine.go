package rules

import (
	"fmt"

	"github.com/autarch/runtime/pkg/models"
)

// RuleEngine evaluates all rules in an AgentConfig, enforces cooldown and
// balance preconditions, aggregates per-action scores, and picks a winner.
type RuleEngine struct {
	cooldown           *CooldownTracker
	evaluator          *ConditionEvaluator
	executionThreshold int
}

// NewRuleEngine constructs a RuleEngine. A threshold of 0 falls back to
// spec.md's default of 70.
func NewRuleEngine(executionThreshold int) *RuleEngine {
	if executionThreshold <= 0 {
		executionThreshold = models.DefaultExecutionThreshold
	}
	return &RuleEngine{
		cooldown:           NewCooldownTracker(),
		evaluator:          NewConditionEvaluator(NewFieldResolver()),
		executionThreshold: executionThreshold,
	}
}

// Reset clears the engine's cooldown state.
func (e *RuleEngine) Reset() {
	e.cooldown.Reset()
}

// Evaluate runs every rule in config against ctx and returns the per-rule
// evaluation trace plus the final aggregated decision.
func (e *RuleEngine) Evaluate(config *models.AgentConfig, ctx EvaluationContext) ([]models.RuleEvaluation, models.DecisionResult) {
	evaluations := make([]models.RuleEvaluation, len(config.Rules))

	for i, rule := range config.Rules {
		cd := e.cooldown.Check(i, rule.CooldownSeconds)
		if cd.Active {
			evaluations[i] = models.RuleEvaluation{
				RuleIndex:         i,
				RuleName:          rule.Name,
				Conditions:        []models.ConditionResult{},
				Matched:           false,
				Score:             0,
				Cooldown:          models.CooldownActive,
				CooldownRemaining: cd.RemainingMs,
			}
			continue
		}

		results, matched := e.evaluator.EvaluateRule(rule.Conditions, ctx)
		score := 0
		if matched {
			score = rule.Weight
		}

		eval := models.RuleEvaluation{
			RuleIndex:  i,
			RuleName:   rule.Name,
			Conditions: results,
			Matched:    matched,
			Score:      score,
			Cooldown:   models.CooldownClear,
		}

		if matched && isActionable(rule.Action) && ctx.AgentState.Balance < rule.Amount {
			eval.Blocked = models.BlockedInsufficientBalance
		}

		evaluations[i] = eval
	}

	decision := e.aggregate(config, evaluations)
	return evaluations, decision
}

func isActionable(a models.Action) bool {
	return a == models.ActionBuy || a == models.ActionSell || a == models.ActionTransfer
}

// aggregate sums scores per action in first-contributing-rule insertion
// order, excluding unmatched rules, balance-blocked rules, and action=none
// rules, then picks the highest-scoring action — ties broken by the order
// the action first appeared in the aggregation.
func (e *RuleEngine) aggregate(config *models.AgentConfig, evaluations []models.RuleEvaluation) models.DecisionResult {
	order := make([]models.Action, 0, len(evaluations))
	totals := make(map[models.Action]int)
	bestRuleForAction := make(map[models.Action]int)

	anyMatched := false
	anyActionableMatched := false
	anyBlocked := false

	for _, eval := range evaluations {
		if !eval.Matched {
			continue
		}
		anyMatched = true
		rule := config.Rules[eval.RuleIndex]
		if rule.Action == models.ActionNone {
			continue
		}
		anyActionableMatched = true
		if eval.Blocked != "" {
			anyBlocked = true
			continue
		}

		if _, seen := totals[rule.Action]; !seen {
			order = append(order, rule.Action)
		}
		totals[rule.Action] += eval.Score

		if bestIdx, ok := bestRuleForAction[rule.Action]; !ok || rule.Weight > config.Rules[bestIdx].Weight {
			bestRuleForAction[rule.Action] = eval.RuleIndex
		}
	}

	if len(order) == 0 {
		switch {
		case !anyMatched:
			return models.DecisionResult{Action: models.ActionNone, Reason: "no rules matched"}
		case !anyActionableMatched:
			return models.DecisionResult{Action: models.ActionNone, Reason: "no actionable rules matched"}
		case anyBlocked:
			return models.DecisionResult{Action: models.ActionNone, Reason: string(models.BlockedInsufficientBalance)}
		default:
			return models.DecisionResult{Action: models.ActionNone, Reason: "no actionable rules matched"}
		}
	}

	winner := order[0]
	winnerScore := totals[winner]
	for _, action := range order[1:] {
		if totals[action] > winnerScore {
			winner = action
			winnerScore = totals[action]
		}
	}

	if winnerScore < e.executionThreshold {
		return models.DecisionResult{
			Action: models.ActionNone,
			Reason: fmt.Sprintf("aggregate score %d is below execution threshold %d", winnerScore, e.executionThreshold),
		}
	}

	ruleIdx := bestRuleForAction[winner]
	rule := config.Rules[ruleIdx]
	e.cooldown.Record(ruleIdx)

	return models.DecisionResult{
		Action:    winner,
		Amount:    rule.Amount,
		RuleIndex: ruleIdx,
		RuleName:  rule.Name,
		Score:     winnerScore,
		Reason:    fmt.Sprintf("%s selected with aggregate score %d", winner, winnerScore),
	}
}
