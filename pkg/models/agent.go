package models

// Condition is a single comparison within a Rule's condition list, or one
// member of a compound AND/OR/NOT group (see internal/rules).
type Condition struct {
	Field     string      `json:"field"`
	Operator  Operator    `json:"operator"`
	Threshold interface{} `json:"threshold"`
	Logic     Logic       `json:"logic,omitempty"`
}

// Rule is one declarative line in an AgentConfig: if its conditions
// resolve, it contributes weight toward an action.
type Rule struct {
	Name            string      `json:"name"`
	Conditions      []Condition `json:"conditions"`
	Action          Action      `json:"action"`
	Amount          float64     `json:"amount"`
	Weight          int         `json:"weight"`
	CooldownSeconds int         `json:"cooldownSeconds"`
}

// AgentConfig is the declarative definition of one Agent: its name, free-text
// strategy label, tick interval, and ordered rule set.
type AgentConfig struct {
	Name       string `json:"name"`
	Strategy   string `json:"strategy"`
	IntervalMs int    `json:"intervalMs,omitempty"`
	Rules      []Rule `json:"rules"`
}

// EffectiveIntervalMs returns IntervalMs, defaulting per spec when unset.
func (c *AgentConfig) EffectiveIntervalMs() int {
	if c.IntervalMs <= 0 {
		return DefaultIntervalMs
	}
	return c.IntervalMs
}

// AgentState is the frozen, deep-immutable snapshot an Agent exposes to the
// Runtime, peers, and SSE consumers after every tick.
type AgentState struct {
	AgentID             int             `json:"agentId"`
	Name                string          `json:"name"`
	Strategy            string          `json:"strategy"`
	Status              AgentStatus     `json:"status"`
	Address             string          `json:"address"`
	Balance             float64         `json:"balance"`
	LastAction          *string         `json:"lastAction"`
	LastActionTimestamp *int64          `json:"lastActionTimestamp"`
	ConsecutiveErrors   int             `json:"consecutiveErrors"`
	TickCount           int             `json:"tickCount"`
	LastError           *string         `json:"lastError"`
	PositionSize        float64         `json:"positionSize"`
	ConsecutiveWins     int             `json:"consecutiveWins"`
	LastTradeAmount     float64         `json:"lastTradeAmount"`
	LastDecision        *DecisionTrace  `json:"lastDecision,omitempty"`
	TraceHistory        []DecisionTrace `json:"traceHistory"`
}

// Clone returns a deep copy of the state so callers (peers, SSE consumers)
// can never mutate the Runtime's or Agent's own working copy.
func (s *AgentState) Clone() AgentState {
	out := *s
	if s.LastAction != nil {
		v := *s.LastAction
		out.LastAction = &v
	}
	if s.LastActionTimestamp != nil {
		v := *s.LastActionTimestamp
		out.LastActionTimestamp = &v
	}
	if s.LastError != nil {
		v := *s.LastError
		out.LastError = &v
	}
	if s.LastDecision != nil {
		d := s.LastDecision.Clone()
		out.LastDecision = &d
	}
	if s.TraceHistory != nil {
		out.TraceHistory = make([]DecisionTrace, len(s.TraceHistory))
		for i := range s.TraceHistory {
			out.TraceHistory[i] = s.TraceHistory[i].Clone()
		}
	}
	return out
}

// ConditionResult captures the evaluated outcome of a single Condition.
type ConditionResult struct {
	Field         string      `json:"field"`
	Operator      Operator    `json:"operator"`
	Threshold     interface{} `json:"threshold"`
	Actual        interface{} `json:"actual"`
	Passed        bool        `json:"passed"`
	PeerDataStale bool        `json:"peerDataStale,omitempty"`
}

// RuleEvaluation is the per-rule record the RuleEngine attaches to a trace.
type RuleEvaluation struct {
	RuleIndex         int               `json:"ruleIndex"`
	RuleName          string            `json:"ruleName"`
	Conditions        []ConditionResult `json:"conditions"`
	Matched           bool              `json:"matched"`
	Score             int               `json:"score"`
	Cooldown          CooldownState     `json:"cooldown,omitempty"`
	CooldownRemaining int64             `json:"cooldownRemaining,omitempty"`
	Blocked           BlockedReason     `json:"blocked,omitempty"`
}

// DecisionResult is the final, aggregated decision produced by the
// RuleEngine for one tick.
type DecisionResult struct {
	Action    Action  `json:"action"`
	Amount    float64 `json:"amount,omitempty"`
	RuleIndex int     `json:"ruleIndex,omitempty"`
	RuleName  string  `json:"ruleName,omitempty"`
	Score     int     `json:"score,omitempty"`
	Reason    string  `json:"reason"`
}

// TraceExecution records the outcome of submitting a transaction for an
// actionable decision.
type TraceExecution struct {
	Status    ExecutionStatus `json:"status"`
	Signature string          `json:"signature,omitempty"`
	Mode      ConnectionMode  `json:"mode"`
	Error     string          `json:"error,omitempty"`
}

// DecisionTrace is the immutable, per-tick record of everything the
// RuleEngine evaluated plus the final decision and (if executed) its
// transaction outcome. Its JSON form must never leak key material — it
// carries only the fields enumerated here.
type DecisionTrace struct {
	Timestamp   int64            `json:"timestamp"`
	AgentID     int              `json:"agentId"`
	MarketData  MarketData       `json:"marketData"`
	Evaluations []RuleEvaluation `json:"evaluations"`
	Decision    DecisionResult   `json:"decision"`
	Execution   *TraceExecution  `json:"execution,omitempty"`
}

// Clone deep-copies a DecisionTrace so it can be handed across a component
// boundary without risk of later mutation.
func (t *DecisionTrace) Clone() DecisionTrace {
	out := *t
	out.Evaluations = make([]RuleEvaluation, len(t.Evaluations))
	for i, ev := range t.Evaluations {
		evCopy := ev
		evCopy.Conditions = append([]ConditionResult(nil), ev.Conditions...)
		out.Evaluations[i] = evCopy
	}
	if t.Execution != nil {
		e := *t.Execution
		out.Execution = &e
	}
	return out
}

// MarketData is an immutable snapshot produced by a MarketProvider.
type MarketData struct {
	Price          float64      `json:"price"`
	PriceChange1m  float64      `json:"priceChange1m"`
	PriceChange5m  float64      `json:"priceChange5m"`
	VolumeChange1m float64      `json:"volumeChange1m"`
	Timestamp      int64        `json:"timestamp"`
	Source         MarketSource `json:"source"`
}
