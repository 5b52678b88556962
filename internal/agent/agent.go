// Package agent implements the per-agent tick loop: fetch balance, read
// market and peer snapshots, evaluate the decision module, optionally
// submit a transaction, and record the result — on the schedule shape the
// teacher's pkg/worker.PeriodicWorker runs, with the idempotent one-way
// state transitions the teacher's risk.CircuitBreaker uses for auto-stop.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/autarch/runtime/internal/decision"
	"github.com/autarch/runtime/internal/market"
	"github.com/autarch/runtime/internal/rules"
	"github.com/autarch/runtime/internal/trace"
	"github.com/autarch/runtime/internal/wallet"
	"github.com/autarch/runtime/pkg/logger"
	"github.com/autarch/runtime/pkg/models"
)

// Callbacks are the lifecycle hooks spec.md §4.6 requires. Any of them may
// be nil.
type Callbacks struct {
	OnStateChange func(models.AgentState)
	OnError       func(agentID int, err error)
	OnAutoStop    func(agentID int)
}

// Agent runs one agent's tick loop. A dedicated goroutine owns its
// schedule; ticks never overlap (spec.md §5's serialization guarantee).
type Agent struct {
	agentID int

	wallet         wallet.Wallet
	marketProvider market.Provider
	peerSupplier   func() map[int]models.AgentState
	decisionModule decision.Module
	traceBuilder   *trace.Builder

	callbacks Callbacks

	configMu sync.RWMutex
	config   *models.AgentConfig

	stateMu sync.Mutex
	state   models.AgentState

	lifecycleMu sync.Mutex
	running     bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// New builds an Agent. config, wallet, marketProvider, peerSupplier and
// decisionModule must all be non-nil.
func New(agentID int, config *models.AgentConfig, w wallet.Wallet, mp market.Provider, peerSupplier func() map[int]models.AgentState, dm decision.Module, callbacks Callbacks) *Agent {
	return &Agent{
		agentID:        agentID,
		wallet:         w,
		marketProvider: mp,
		peerSupplier:   peerSupplier,
		decisionModule: dm,
		traceBuilder:   trace.NewBuilder(),
		callbacks:      callbacks,
		config:         config,
		state: models.AgentState{
			AgentID: agentID,
			Name:    config.Name,
			Strategy: config.Strategy,
			Status:  models.StatusIdle,
			Address: w.Address(),
		},
	}
}

// AgentID returns the agent's numeric identifier.
func (a *Agent) AgentID() int { return a.agentID }

func (a *Agent) currentConfig() *models.AgentConfig {
	a.configMu.RLock()
	defer a.configMu.RUnlock()
	return a.config
}

// UpdateConfig swaps the held config without touching the running
// schedule — per spec.md §4.6, a changed intervalMs only takes effect
// after a manual Stop+Start.
func (a *Agent) UpdateConfig(newConfig *models.AgentConfig) {
	a.configMu.Lock()
	a.config = newConfig
	a.configMu.Unlock()

	a.stateMu.Lock()
	a.state.Name = newConfig.Name
	a.state.Strategy = newConfig.Strategy
	a.stateMu.Unlock()
}

// Snapshot returns a frozen copy of the current AgentState.
func (a *Agent) Snapshot() models.AgentState {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state.Clone()
}

// Start schedules the agent's periodic tick, firing one immediately.
// Idempotent: calling Start on an already-running Agent is a no-op.
func (a *Agent) Start(ctx context.Context) {
	a.lifecycleMu.Lock()
	if a.running {
		a.lifecycleMu.Unlock()
		return
	}
	a.running = true
	stop := make(chan struct{})
	a.stopCh = stop
	a.lifecycleMu.Unlock()

	a.wg.Add(1)
	go a.run(ctx, stop)
}

func (a *Agent) run(ctx context.Context, stop chan struct{}) {
	defer a.wg.Done()

	a.tick(ctx)

	interval := time.Duration(a.currentConfig().EffectiveIntervalMs()) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// Stop cancels the schedule. It does not interrupt an in-flight tick — the
// cancellation only takes effect at the next scheduling boundary (it waits
// for the current/in-flight tick to finish before transitioning state).
// Idempotent: stopping an already-stopped Agent is a no-op.
func (a *Agent) Stop() {
	a.lifecycleMu.Lock()
	if !a.running {
		a.lifecycleMu.Unlock()
		return
	}
	a.running = false
	stop := a.stopCh
	a.lifecycleMu.Unlock()

	close(stop)
	a.wg.Wait()

	a.finishStop(false)
}

// autoStop is invoked from within the agent's own tick goroutine on the
// error-path, so it must not wait on a.wg — that goroutine IS the one
// a.wg.Wait() would be blocking on, and doing so would deadlock.
func (a *Agent) autoStop() {
	a.lifecycleMu.Lock()
	if !a.running {
		a.lifecycleMu.Unlock()
		return
	}
	a.running = false
	close(a.stopCh)
	a.lifecycleMu.Unlock()

	a.finishStop(true)
}

func (a *Agent) finishStop(auto bool) {
	a.stateMu.Lock()
	a.state.Status = models.StatusStopped
	a.state.LastDecision = nil
	a.state.TraceHistory = nil
	a.stateMu.Unlock()

	if r, ok := a.decisionModule.(decision.Resettable); ok {
		r.Reset()
	}

	if auto {
		if a.callbacks.OnAutoStop != nil {
			a.callbacks.OnAutoStop(a.agentID)
		}
		return
	}
	if a.callbacks.OnStateChange != nil {
		a.callbacks.OnStateChange(a.Snapshot())
	}
}

func isActionable(action models.Action) bool {
	return action == models.ActionBuy || action == models.ActionSell || action == models.ActionTransfer
}

// tick runs the 10-step sequence from spec.md §4.6. It never overlaps its
// own successor since it only ever runs from the single goroutine run()
// owns.
func (a *Agent) tick(ctx context.Context) {
	a.stateMu.Lock()
	a.state.TickCount++
	a.stateMu.Unlock()

	balance, err := a.wallet.Balance(ctx)
	if err != nil {
		a.errorPath(fmt.Errorf("fetch balance: %w", err))
		return
	}

	peers := a.peerSupplier()
	marketData := a.marketProvider.Snapshot()
	config := a.currentConfig()

	a.stateMu.Lock()
	a.state.Balance = balance.Sol
	evalState := a.state.Clone()
	a.stateMu.Unlock()

	evalCtx := rules.EvaluationContext{
		AgentState: &evalState,
		MarketData: marketData,
		PeerStates: peers,
	}

	evaluations, decisionResult, err := a.decisionModule.Evaluate(ctx, config, evalCtx)
	if err != nil {
		a.errorPath(fmt.Errorf("evaluate decision: %w", err))
		return
	}

	var execution *models.TraceExecution
	newStatus := models.StatusCooldown
	if isActionable(decisionResult.Action) {
		execution = a.submit(ctx, decisionResult)
		newStatus = models.StatusActive
	}

	built := a.traceBuilder.Build(a.agentID, marketData, evaluations, decisionResult, execution)

	a.stateMu.Lock()
	a.state.Status = newStatus
	if execution != nil {
		now := time.Now().UnixMilli()
		action := string(decisionResult.Action)
		a.state.LastAction = &action
		a.state.LastActionTimestamp = &now
		a.state.LastTradeAmount = decisionResult.Amount
	}
	a.state.ConsecutiveErrors = 0
	a.state.LastError = nil
	a.state.TraceHistory = trace.Append(a.state.TraceHistory, built)
	lastDecision := built
	a.state.LastDecision = &lastDecision
	snapshot := a.state.Clone()
	a.stateMu.Unlock()

	if a.callbacks.OnStateChange != nil {
		a.callbacks.OnStateChange(snapshot)
	}
}

// submit invokes the wallet to sign and submit the decision's transaction,
// translating any failure into a TraceExecution{Status: failed} rather
// than propagating it — a failed submission is a recorded outcome, not a
// tick-level error.
func (a *Agent) submit(ctx context.Context, decisionResult models.DecisionResult) *models.TraceExecution {
	result, err := a.wallet.Execute(ctx, decisionResult.Action, decisionResult.Amount)
	if err != nil {
		return &models.TraceExecution{Status: models.ExecFailed, Error: err.Error()}
	}
	return &models.TraceExecution{Status: result.Status, Signature: result.Signature, Mode: result.Mode}
}

// errorPath implements spec.md §4.6's error path, including the
// MAX_CONSECUTIVE_ERRORS auto-stop. It also fires OnStateChange with the
// now-errored snapshot — the Runtime's peer-state cache is only ever
// updated from that callback, so without it a sibling agent's
// status=error never becomes visible to peer.<name>.* field resolution
// (spec.md §8 Scenario 4).
func (a *Agent) errorPath(err error) {
	a.stateMu.Lock()
	a.state.ConsecutiveErrors++
	a.state.Status = models.StatusError
	msg := err.Error()
	a.state.LastError = &msg
	consecutive := a.state.ConsecutiveErrors
	snapshot := a.state.Clone()
	a.stateMu.Unlock()

	logger.Error("agent tick failed", zap.Int("agentId", a.agentID), zap.Error(err))

	if a.callbacks.OnError != nil {
		a.callbacks.OnError(a.agentID, err)
	}
	if a.callbacks.OnStateChange != nil {
		a.callbacks.OnStateChange(snapshot)
	}

	if consecutive >= models.MaxConsecutiveErrors {
		a.autoStop()
	}
}
