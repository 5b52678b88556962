package models

// Action is the set of things a Rule (and, in aggregate, a Decision) can
// instruct an Agent to do.
type Action string

const (
	ActionBuy      Action = "buy"
	ActionSell     Action = "sell"
	ActionTransfer Action = "transfer"
	ActionNone     Action = "none"
)

// Operator is the closed set of comparison operators a Condition may use.
type Operator string

const (
	OpGT Operator = ">"
	OpLT Operator = "<"
	OpGE Operator = ">="
	OpLE Operator = "<="
	OpEQ Operator = "=="
	OpNE Operator = "!="
)

// Logic groups conditions within a rule into AND/OR/NOT clusters.
type Logic string

const (
	LogicAND Logic = "AND"
	LogicOR  Logic = "OR"
	LogicNOT Logic = "NOT"
)

// AgentStatus is the closed set of lifecycle states an Agent can report.
type AgentStatus string

const (
	StatusIdle     AgentStatus = "idle"
	StatusActive   AgentStatus = "active"
	StatusCooldown AgentStatus = "cooldown"
	StatusError    AgentStatus = "error"
	StatusStopped  AgentStatus = "stopped"
)

// ConnectionMode is the three-state macro-state of the RPC layer.
type ConnectionMode string

const (
	ModeNormal     ConnectionMode = "normal"
	ModeDegraded   ConnectionMode = "degraded"
	ModeSimulation ConnectionMode = "simulation"
)

// ExecutionStatus is the outcome of a submitted transaction.
type ExecutionStatus string

const (
	ExecConfirmed ExecutionStatus = "confirmed"
	ExecSimulated ExecutionStatus = "simulated"
	ExecFailed    ExecutionStatus = "failed"
)

// CooldownState reports whether a rule's cooldown is still active.
type CooldownState string

const (
	CooldownActive CooldownState = "active"
	CooldownClear  CooldownState = "clear"
)

// BlockedReason is attached to a RuleEvaluation when a matched rule could
// not be executed.
type BlockedReason string

const (
	BlockedInsufficientBalance BlockedReason = "insufficient_balance"
)

// MarketSource tags where a MarketData snapshot came from.
type MarketSource string

const (
	SourceLive      MarketSource = "live"
	SourceSimulated MarketSource = "simulated"
)

// Defaults mirrored from spec.md.
const (
	DefaultIntervalMs          = 60000
	MaxConsecutiveErrors       = 5
	MaxTraceHistory            = 100
	DefaultExecutionThreshold  = 70
	SimulationFailureThreshold = 3
	DefaultMaxRetries          = 3
	DefaultBaseDelayMs         = 1000
	DefaultHealthCheckMs       = 30000
	RetryBudgetMs              = 5000
	SSEHeartbeatIntervalMs     = 30000
	SSERetryMs                 = 5000
	TreasuryAgentID            = 0
	DemoSeedSol                = 2.0
)
