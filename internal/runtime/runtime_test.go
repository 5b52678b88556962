package runtime

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/autarch/runtime/internal/decision"
	"github.com/autarch/runtime/internal/market"
	"github.com/autarch/runtime/internal/rpcclient"
	"github.com/autarch/runtime/internal/wallet"
	"github.com/autarch/runtime/pkg/models"
)

type fakeWallet struct {
	agentID    int
	address    string
	sol        float64
	balanceErr error
}

func (w *fakeWallet) AgentID() int                { return w.agentID }
func (w *fakeWallet) Address() string             { return w.address }
func (w *fakeWallet) PublicKey() ed25519.PublicKey { return nil }
func (w *fakeWallet) Balance(ctx context.Context) (rpcclient.Balance, error) {
	if w.balanceErr != nil {
		return rpcclient.Balance{}, w.balanceErr
	}
	return rpcclient.Balance{Sol: w.sol}, nil
}
func (w *fakeWallet) SignTransaction(ctx context.Context, message []byte) ([]byte, error) {
	return message, nil
}
func (w *fakeWallet) DistributeSol(ctx context.Context, to wallet.Wallet, sol decimal.Decimal) (*rpcclient.TxResult, error) {
	return nil, nil
}
func (w *fakeWallet) RequestAirdrop(ctx context.Context, sol decimal.Decimal) (string, error) {
	return "sim-airdrop", nil
}
func (w *fakeWallet) Execute(ctx context.Context, action models.Action, amount float64) (*rpcclient.TxResult, error) {
	return &rpcclient.TxResult{Signature: "sim-exec", Status: models.ExecConfirmed, Mode: models.ModeNormal}, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func buildRuntime(t *testing.T) (*Runtime, func()) {
	mp := market.NewSimulatedProvider(100)
	rt := New(mp)
	return rt, func() { rt.Stop() }
}

func TestRuntime_GetStatesInsertionOrder(t *testing.T) {
	rt, cleanup := buildRuntime(t)
	defer cleanup()

	rt.AddAgent(2, &models.AgentConfig{Name: "second", IntervalMs: 60 * 60 * 1000}, &fakeWallet{agentID: 2, address: "addr2", sol: 1}, decision.NewRuleBasedModule(70))
	rt.AddAgent(1, &models.AgentConfig{Name: "first", IntervalMs: 60 * 60 * 1000}, &fakeWallet{agentID: 1, address: "addr1", sol: 1}, decision.NewRuleBasedModule(70))

	states := rt.GetStates()
	if len(states) != 2 || states[0].AgentID != 2 || states[1].AgentID != 1 {
		t.Fatalf("expected insertion order [2,1], got %+v", states)
	}
}

func TestRuntime_PeerSupplierExcludesSelf(t *testing.T) {
	rt, cleanup := buildRuntime(t)
	defer cleanup()

	rt.AddAgent(1, &models.AgentConfig{Name: "a", IntervalMs: 60 * 60 * 1000}, &fakeWallet{agentID: 1, address: "addr1", sol: 1}, decision.NewRuleBasedModule(70))
	rt.AddAgent(2, &models.AgentConfig{Name: "b", IntervalMs: 60 * 60 * 1000}, &fakeWallet{agentID: 2, address: "addr2", sol: 1}, decision.NewRuleBasedModule(70))

	peers := rt.peerSupplier(1)()
	if _, ok := peers[1]; ok {
		t.Fatal("peer view must never include the agent's own entry")
	}
	if _, ok := peers[2]; !ok {
		t.Fatal("peer view must include sibling agents")
	}
}

func TestRuntime_StopTwiceEmitsOneStoppedEvent(t *testing.T) {
	rt, _ := buildRuntime(t)

	a := rt.AddAgent(1, &models.AgentConfig{Name: "a", IntervalMs: 10}, &fakeWallet{agentID: 1, address: "addr1", sol: 5}, decision.NewRuleBasedModule(70))

	var mu sync.Mutex
	stoppedCount := 0
	rt.On(EventAgentLifecycle, func(payload interface{}) {
		p := payload.(LifecyclePayload)
		if p.Event == "stopped" {
			mu.Lock()
			stoppedCount++
			mu.Unlock()
		}
	})

	ctx := context.Background()
	a.Start(ctx)
	waitFor(t, time.Second, func() bool { return a.Snapshot().TickCount >= 1 })

	rt.Stop(1)
	rt.Stop(1) // duplicate stop must not emit a second "stopped"

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if stoppedCount != 1 {
		t.Fatalf("expected exactly one stopped lifecycle event, got %d", stoppedCount)
	}
}

// TestRuntime_PeerViewReflectsErroredAgent exercises spec.md §8 Scenario 4
// end-to-end through a real tick (not a hand-built EvaluationContext): when
// an Agent's balance fetch fails, the Runtime's peer-state cache must pick
// up status=error with the agent's last-known balance intact, so a sibling
// evaluating peer.alpha.balance sees a stale-but-present entry.
func TestRuntime_PeerViewReflectsErroredAgent(t *testing.T) {
	rt, _ := buildRuntime(t)

	alphaWallet := &fakeWallet{agentID: 1, address: "alpha-addr", sol: 2.0}
	alpha := rt.AddAgent(1, &models.AgentConfig{Name: "alpha", IntervalMs: 10}, alphaWallet, decision.NewRuleBasedModule(70))
	rt.AddAgent(2, &models.AgentConfig{Name: "beta", IntervalMs: 60 * 60 * 1000}, &fakeWallet{agentID: 2, address: "beta-addr", sol: 1}, decision.NewRuleBasedModule(70))

	ctx := context.Background()
	alpha.Start(ctx)
	waitFor(t, time.Second, func() bool { return alpha.Snapshot().Status == models.StatusActive || alpha.Snapshot().Status == models.StatusCooldown })
	alpha.Stop()

	alphaWallet.balanceErr = errors.New("rpc down")
	alpha.Start(ctx)
	waitFor(t, time.Second, func() bool { return alpha.Snapshot().Status == models.StatusError })
	defer alpha.Stop()

	waitFor(t, time.Second, func() bool {
		peers := rt.peerSupplier(2)()
		p, ok := peers[1]
		return ok && p.Status == models.StatusError
	})

	peers := rt.peerSupplier(2)()
	alphaPeer, ok := peers[1]
	if !ok {
		t.Fatal("expected beta's peer view to contain alpha even though alpha is erroring")
	}
	if alphaPeer.Status != models.StatusError {
		t.Fatalf("expected alpha's peer entry to report status=error, got %s", alphaPeer.Status)
	}
	if alphaPeer.Balance != 2.0 {
		t.Fatalf("expected alpha's last cached balance of 2.0 to survive into the peer view, got %v", alphaPeer.Balance)
	}
}

func TestRuntime_InjectDipRequiresControllableMarket(t *testing.T) {
	rt, cleanup := buildRuntime(t)
	defer cleanup()

	if err := rt.InjectDip(10); err != nil {
		t.Fatalf("expected simulated market to support InjectDip, got %v", err)
	}
}

func TestRuntime_MarketControlEmitsMarketUpdate(t *testing.T) {
	rt, cleanup := buildRuntime(t)
	defer cleanup()

	received := make(chan MarketUpdatePayload, 1)
	rt.On(EventMarketUpdate, func(payload interface{}) {
		received <- payload.(MarketUpdatePayload)
	})

	if err := rt.InjectRally(5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case p := <-received:
		if p.Type != "market" {
			t.Fatalf("expected type=market, got %q", p.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a marketUpdate event")
	}
}
