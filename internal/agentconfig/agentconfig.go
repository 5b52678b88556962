// Package agentconfig loads and validates the JSON files that declare each
// Agent's rule set (spec.md §6). Validation produces path-qualified error
// messages ("rules[0].conditions[1].operator must be one of: ...") rather
// than a bare "invalid config".
package agentconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/autarch/runtime/pkg/models"
)

var validOperators = map[models.Operator]bool{
	models.OpGT: true, models.OpLT: true, models.OpGE: true,
	models.OpLE: true, models.OpEQ: true, models.OpNE: true,
}

var validLogic = map[models.Logic]bool{
	models.LogicAND: true, models.LogicOR: true, models.LogicNOT: true,
}

var validActions = map[models.Action]bool{
	models.ActionBuy: true, models.ActionSell: true,
	models.ActionTransfer: true, models.ActionNone: true,
}

func operatorList() string {
	return "<, <=, ==, >, >=, !="
}

func actionList() string {
	return "buy, sell, transfer, none"
}

func logicList() string {
	return "AND, OR, NOT"
}

// rawConfig mirrors models.AgentConfig but every field is decoded loosely
// (pointers so a missing property is detectable, *string where the real
// type is a closed enum) so validation can
// produce one path-qualified message per bad field instead of a raw JSON
// unmarshal error.
type rawConfig struct {
	Name       *string    `json:"name"`
	Strategy   *string    `json:"strategy"`
	IntervalMs *int       `json:"intervalMs"`
	Rules      *[]rawRule `json:"rules"`
}

type rawRule struct {
	Name            *string        `json:"name"`
	Conditions      *[]rawCondition `json:"conditions"`
	Action          *string        `json:"action"`
	Amount          *float64       `json:"amount"`
	Weight          *int           `json:"weight"`
	CooldownSeconds *int           `json:"cooldownSeconds"`
}

type rawCondition struct {
	Field     *string     `json:"field"`
	Operator  *string     `json:"operator"`
	Threshold interface{} `json:"threshold"`
	Logic     *string     `json:"logic"`
}

// Load reads path, decodes it strictly, validates it, and returns the
// resulting AgentConfig.
func Load(path string) (*models.AgentConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open agent config %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads and validates an agent config from r. Unknown top-level or
// nested properties are rejected per spec.md §6 ("Additional properties
// rejected").
func Decode(r io.Reader) (*models.AgentConfig, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var raw rawConfig
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode agent config: %w", err)
	}

	var errs []string
	check := func(cond bool, msg string) {
		if !cond {
			errs = append(errs, msg)
		}
	}

	if raw.Name == nil {
		errs = append(errs, "Missing required property: name")
	} else {
		check(strings.TrimSpace(*raw.Name) != "", "name must be non-empty")
	}
	if raw.Strategy == nil {
		errs = append(errs, "Missing required property: strategy")
	}
	if raw.IntervalMs != nil {
		check(*raw.IntervalMs >= 1000, "intervalMs must be >= 1000")
	}
	if raw.Rules == nil {
		errs = append(errs, "Missing required property: rules")
	} else {
		check(len(*raw.Rules) > 0, "rules must be non-empty")
		for i, rule := range *raw.Rules {
			validateRule(i, rule, &errs)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("agent config invalid: %s", strings.Join(errs, "; "))
	}

	cfg := &models.AgentConfig{
		Name:     *raw.Name,
		Strategy: *raw.Strategy,
		Rules:    make([]models.Rule, len(*raw.Rules)),
	}
	if raw.IntervalMs != nil {
		cfg.IntervalMs = *raw.IntervalMs
	}
	for i, rule := range *raw.Rules {
		cfg.Rules[i] = toRule(rule)
	}
	return cfg, nil
}

func validateRule(i int, rule rawRule, errs *[]string) {
	prefix := fmt.Sprintf("rules[%d]", i)

	if rule.Name == nil {
		*errs = append(*errs, fmt.Sprintf("Missing required property: %s.name", prefix))
	}
	if rule.Conditions == nil {
		*errs = append(*errs, fmt.Sprintf("Missing required property: %s.conditions", prefix))
	} else {
		if len(*rule.Conditions) == 0 {
			*errs = append(*errs, fmt.Sprintf("%s.conditions must be non-empty", prefix))
		}
		for j, cond := range *rule.Conditions {
			validateCondition(prefix, j, cond, errs)
		}
	}
	if rule.Action == nil {
		*errs = append(*errs, fmt.Sprintf("Missing required property: %s.action", prefix))
	} else if !validActions[models.Action(*rule.Action)] {
		*errs = append(*errs, fmt.Sprintf("%s.action must be one of: %s", prefix, actionList()))
	}
	if rule.Amount == nil {
		*errs = append(*errs, fmt.Sprintf("Missing required property: %s.amount", prefix))
	} else if *rule.Amount <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s.amount must be > 0", prefix))
	}
	if rule.Weight == nil {
		*errs = append(*errs, fmt.Sprintf("Missing required property: %s.weight", prefix))
	} else if *rule.Weight < 0 || *rule.Weight > 100 {
		*errs = append(*errs, fmt.Sprintf("%s.weight must be between 0 and 100", prefix))
	}
	if rule.CooldownSeconds == nil {
		*errs = append(*errs, fmt.Sprintf("Missing required property: %s.cooldownSeconds", prefix))
	} else if *rule.CooldownSeconds < 0 {
		*errs = append(*errs, fmt.Sprintf("%s.cooldownSeconds must be >= 0", prefix))
	}
}

func validateCondition(rulePrefix string, j int, cond rawCondition, errs *[]string) {
	prefix := fmt.Sprintf("%s.conditions[%d]", rulePrefix, j)

	if cond.Field == nil || strings.TrimSpace(*cond.Field) == "" {
		*errs = append(*errs, fmt.Sprintf("Missing required property: %s.field", prefix))
	}
	if cond.Operator == nil {
		*errs = append(*errs, fmt.Sprintf("Missing required property: %s.operator", prefix))
	} else if !validOperators[models.Operator(*cond.Operator)] {
		*errs = append(*errs, fmt.Sprintf("%s.operator must be one of: %s", prefix, operatorList()))
	}
	if cond.Threshold == nil {
		*errs = append(*errs, fmt.Sprintf("Missing required property: %s.threshold", prefix))
	}
	if cond.Logic != nil && *cond.Logic != "" && !validLogic[models.Logic(*cond.Logic)] {
		*errs = append(*errs, fmt.Sprintf("%s.logic must be one of: %s", prefix, logicList()))
	}
}

func toRule(rule rawRule) models.Rule {
	out := models.Rule{
		Name:            *rule.Name,
		Action:          models.Action(*rule.Action),
		Amount:          *rule.Amount,
		Weight:          *rule.Weight,
		CooldownSeconds: *rule.CooldownSeconds,
		Conditions:      make([]models.Condition, len(*rule.Conditions)),
	}
	for i, cond := range *rule.Conditions {
		c := models.Condition{
			Field:     *cond.Field,
			Operator:  models.Operator(*cond.Operator),
			Threshold: cond.Threshold,
		}
		if cond.Logic != nil && *cond.Logic != "" {
			c.Logic = models.Logic(*cond.Logic)
		} else {
			c.Logic = models.LogicAND
		}
		out.Conditions[i] = c
	}
	return out
}
