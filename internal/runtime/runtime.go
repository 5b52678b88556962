// Package runtime owns the set of running Agents, multiplexes their
// lifecycle/state events to subscribers, and brokers the peer-state view
// each Agent's tick consumes — the same mu-guarded-map-plus-callback shape
// internal/agents.AgenticManager uses, generalized from AI-runner
// bookkeeping to the rule-based Agent in internal/agent.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/autarch/runtime/internal/agent"
	"github.com/autarch/runtime/internal/decision"
	"github.com/autarch/runtime/internal/market"
	"github.com/autarch/runtime/internal/wallet"
	"github.com/autarch/runtime/pkg/logger"
	"github.com/autarch/runtime/pkg/models"
)

// Event names forwarded to subscribers (spec.md §4.7/§4.10).
const (
	EventStateUpdate    = "stateUpdate"
	EventAgentLifecycle = "agentLifecycle"
	EventMarketUpdate   = "marketUpdate"
	EventSimulationMode = "simulationMode"
	EventRulesReloaded  = "rulesReloaded"
)

// StateUpdatePayload is emitted on EventStateUpdate.
type StateUpdatePayload struct {
	Type      string             `json:"type"`
	Timestamp int64              `json:"timestamp"`
	Agents    []models.AgentState `json:"agents"`
}

// LifecyclePayload is emitted on EventAgentLifecycle.
type LifecyclePayload struct {
	Type      string `json:"type"`
	AgentID   int    `json:"agentId"`
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

// MarketUpdatePayload is emitted on EventMarketUpdate.
type MarketUpdatePayload struct {
	Type       string            `json:"type"`
	MarketData models.MarketData `json:"marketData"`
	Timestamp  int64             `json:"timestamp"`
}

// SimulationModePayload is emitted on EventSimulationMode.
type SimulationModePayload struct {
	Type      string `json:"type"`
	Active    bool   `json:"active"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// RulesReloadedPayload is emitted on EventRulesReloaded.
type RulesReloadedPayload struct {
	Type      string `json:"type"`
	AgentID   int    `json:"agentId,omitempty"`
	Success   bool   `json:"success"`
	FileName  string `json:"fileName,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Handler receives an emitted event's payload.
type Handler func(payload interface{})

// Runtime owns every Agent in the process, the shared MarketProvider, and
// the cross-Agent peer-state view. It has no back-reference from Agent —
// each Agent is handed a peer-state supplier closure over Runtime's
// internal map, never a pointer to Runtime itself (spec.md §9).
type Runtime struct {
	marketProvider market.Provider

	mu     sync.RWMutex
	agents map[int]*agent.Agent
	order  []int

	peerMu     sync.RWMutex
	peerStates map[int]models.AgentState
	lastStatus map[int]models.AgentStatus

	handlersMu sync.Mutex
	handlers   map[string][]Handler
}

// New builds an empty Runtime bound to mp.
func New(mp market.Provider) *Runtime {
	return &Runtime{
		marketProvider: mp,
		agents:         make(map[int]*agent.Agent),
		peerStates:     make(map[int]models.AgentState),
		lastStatus:     make(map[int]models.AgentStatus),
		handlers:       make(map[string][]Handler),
	}
}

// On registers handler for event. Subscribing to an unknown event name is
// harmless — it simply never fires.
func (rt *Runtime) On(event string, handler Handler) {
	rt.handlersMu.Lock()
	defer rt.handlersMu.Unlock()
	rt.handlers[event] = append(rt.handlers[event], handler)
}

func (rt *Runtime) emit(event string, payload interface{}) {
	rt.handlersMu.Lock()
	hs := append([]Handler(nil), rt.handlers[event]...)
	rt.handlersMu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

// AddAgent constructs and registers an Agent under agentID, wiring its
// callbacks back into the Runtime's peer-state map and event bus. It must
// be called before Start.
func (rt *Runtime) AddAgent(agentID int, cfg *models.AgentConfig, w wallet.Wallet, dm decision.Module) *agent.Agent {
	a := agent.New(agentID, cfg, w, rt.marketProvider, rt.peerSupplier(agentID), dm, agent.Callbacks{
		OnStateChange: func(s models.AgentState) { rt.onStateChange(s) },
		OnError:       func(id int, err error) { rt.onError(id, err) },
		OnAutoStop:    func(id int) { rt.onAutoStop(id) },
	})

	rt.mu.Lock()
	rt.agents[agentID] = a
	rt.order = append(rt.order, agentID)
	rt.mu.Unlock()

	rt.peerMu.Lock()
	rt.peerStates[agentID] = a.Snapshot()
	rt.peerMu.Unlock()

	return a
}

// peerSupplier returns the closure handed to Agent agentID: an immutable
// view of every other Agent's last-known state, never including agentID's
// own entry (spec.md §4.7, §8's "at most N-1 entries" invariant).
func (rt *Runtime) peerSupplier(agentID int) func() map[int]models.AgentState {
	return func() map[int]models.AgentState {
		rt.peerMu.RLock()
		defer rt.peerMu.RUnlock()
		out := make(map[int]models.AgentState, len(rt.peerStates))
		for id, st := range rt.peerStates {
			if id == agentID {
				continue
			}
			out[id] = st.Clone()
		}
		return out
	}
}

func (rt *Runtime) onStateChange(s models.AgentState) {
	rt.peerMu.Lock()
	rt.peerStates[s.AgentID] = s
	prev := rt.lastStatus[s.AgentID]
	rt.lastStatus[s.AgentID] = s.Status
	rt.peerMu.Unlock()

	if prev != models.StatusStopped && s.Status == models.StatusStopped {
		rt.emit(EventAgentLifecycle, LifecyclePayload{
			Type: "lifecycle", AgentID: s.AgentID, Event: "stopped", Timestamp: time.Now().UnixMilli(),
		})
	}

	rt.emitStateUpdate()
}

func (rt *Runtime) onError(agentID int, err error) {
	logger.Warn("agent reported tick error", zap.Int("agentId", agentID), zap.Error(err))
	rt.emit(EventAgentLifecycle, LifecyclePayload{
		Type: "lifecycle", AgentID: agentID, Event: "error", Timestamp: time.Now().UnixMilli(), Message: err.Error(),
	})
}

func (rt *Runtime) onAutoStop(agentID int) {
	rt.mu.RLock()
	a, ok := rt.agents[agentID]
	rt.mu.RUnlock()
	if ok {
		s := a.Snapshot()
		rt.peerMu.Lock()
		rt.peerStates[agentID] = s
		rt.lastStatus[agentID] = s.Status
		rt.peerMu.Unlock()
		rt.emitStateUpdate()
	}
	rt.emit(EventAgentLifecycle, LifecyclePayload{
		Type: "lifecycle", AgentID: agentID, Event: "auto-stopped", Timestamp: time.Now().UnixMilli(),
		Message: fmt.Sprintf("agent %d auto-stopped after %d consecutive tick failures", agentID, models.MaxConsecutiveErrors),
	})
}

func (rt *Runtime) emitStateUpdate() {
	rt.emit(EventStateUpdate, StateUpdatePayload{
		Type: "agentState", Timestamp: time.Now().UnixMilli(), Agents: rt.GetStates(),
	})
}

// Start starts every registered Agent in insertion order and fires a
// "started" lifecycle event for each.
func (rt *Runtime) Start(ctx context.Context) {
	rt.mu.RLock()
	order := append([]int(nil), rt.order...)
	rt.mu.RUnlock()

	for _, id := range order {
		rt.mu.RLock()
		a := rt.agents[id]
		rt.mu.RUnlock()
		a.Start(ctx)
		rt.emit(EventAgentLifecycle, LifecyclePayload{
			Type: "lifecycle", AgentID: id, Event: "started", Timestamp: time.Now().UnixMilli(),
		})
	}
}

// Stop stops the given agentIDs, or every Agent if none are given. Stopping
// an already-stopped Agent is a no-op — Agent.Stop's own idempotence
// guarantees no duplicate "stopped" event (spec.md §4.7's
// duplicate-safety requirement).
func (rt *Runtime) Stop(agentIDs ...int) {
	rt.mu.RLock()
	ids := agentIDs
	if len(ids) == 0 {
		ids = append([]int(nil), rt.order...)
	}
	targets := make([]*agent.Agent, 0, len(ids))
	for _, id := range ids {
		if a, ok := rt.agents[id]; ok {
			targets = append(targets, a)
		}
	}
	rt.mu.RUnlock()

	for _, a := range targets {
		a.Stop()
	}
}

// GetStates returns a frozen snapshot of every Agent's state, in the order
// Agents were added to the Runtime.
func (rt *Runtime) GetStates() []models.AgentState {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]models.AgentState, 0, len(rt.order))
	for _, id := range rt.order {
		out = append(out, rt.agents[id].Snapshot())
	}
	return out
}

// InjectDip delegates to the MarketProvider if it implements
// market.Controllable, then broadcasts the resulting snapshot.
func (rt *Runtime) InjectDip(pct float64) error {
	return rt.controlMarket(func(c market.Controllable) { c.InjectDip(pct) })
}

// InjectRally delegates to the MarketProvider, same shape as InjectDip.
func (rt *Runtime) InjectRally(pct float64) error {
	return rt.controlMarket(func(c market.Controllable) { c.InjectRally(pct) })
}

// ResetMarket delegates to the MarketProvider, same shape as InjectDip.
func (rt *Runtime) ResetMarket() error {
	return rt.controlMarket(func(c market.Controllable) { c.Reset() })
}

func (rt *Runtime) controlMarket(fn func(market.Controllable)) error {
	c, ok := rt.marketProvider.(market.Controllable)
	if !ok {
		return fmt.Errorf("market provider does not support demo controls")
	}
	fn(c)
	rt.emit(EventMarketUpdate, MarketUpdatePayload{
		Type: "market", MarketData: rt.marketProvider.Snapshot(), Timestamp: time.Now().UnixMilli(),
	})
	return nil
}

// OnSimulationModeChange is the callback an rpcclient.Client should be
// constructed with so that a connection-mode transition becomes visible to
// every SSE subscriber (spec.md §4.8's "emit simulationMode event to
// subscribers").
func (rt *Runtime) OnSimulationModeChange(active bool, reason string) {
	rt.emit(EventSimulationMode, SimulationModePayload{
		Type: "mode", Active: active, Reason: reason, Timestamp: time.Now().UnixMilli(),
	})
}

// ReloadRules swaps agentID's config (see Agent.UpdateConfig's
// does-not-reschedule contract) and emits a rulesReloaded event.
func (rt *Runtime) ReloadRules(agentID int, cfg *models.AgentConfig) error {
	rt.mu.RLock()
	a, ok := rt.agents[agentID]
	rt.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("reload rules: no agent with id %d", agentID)
		rt.emit(EventRulesReloaded, RulesReloadedPayload{
			Type: "hotReload", AgentID: agentID, Success: false, Error: err.Error(), Timestamp: time.Now().UnixMilli(),
		})
		return err
	}
	a.UpdateConfig(cfg)
	rt.emit(EventRulesReloaded, RulesReloadedPayload{
		Type: "hotReload", AgentID: agentID, Success: true, Timestamp: time.Now().UnixMilli(),
	})
	return nil
}
