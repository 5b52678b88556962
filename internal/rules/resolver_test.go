package rules

import (
	"testing"

	"github.com/autarch/runtime/pkg/models"
)

func selfState() *models.AgentState {
	action := "buy 0.1 SOL"
	return &models.AgentState{
		AgentID:           1,
		Name:              "Alpha",
		Status:            models.StatusActive,
		Balance:           1.5,
		PositionSize:      0.2,
		ConsecutiveWins:   3,
		ConsecutiveErrors: 0,
		TickCount:         7,
		LastTradeAmount:   0.1,
		LastAction:        &action,
	}
}

func TestFieldResolver_MarketFields(t *testing.T) {
	r := NewFieldResolver()
	ctx := EvaluationContext{
		AgentState: selfState(),
		MarketData: models.MarketData{Price: 100, PriceChange1m: -10, PriceChange5m: 3, VolumeChange1m: -5},
	}

	cases := map[string]float64{
		"price":            100,
		"price_change":     -10,
		"price_change_1m":  -10,
		"price_change_5m":  3,
		"price_drop":       10,
		"price_rise":       0,
		"volume_change":    -5,
		"volume_change_1m": -5,
		"volume_spike":     0,
	}
	for field, want := range cases {
		got, stale := r.Resolve(field, ctx)
		if stale {
			t.Errorf("%s: unexpected peer staleness", field)
		}
		if got != want {
			t.Errorf("%s: got %v, want %v", field, got, want)
		}
	}
}

func TestFieldResolver_SelfFields(t *testing.T) {
	r := NewFieldResolver()
	ctx := EvaluationContext{AgentState: selfState()}

	if v, _ := r.Resolve("balance", ctx); v != 1.5 {
		t.Errorf("balance: got %v", v)
	}
	if v, _ := r.Resolve("last_trade_result", ctx); v != "buy" {
		t.Errorf("last_trade_result: got %v", v)
	}
	if v, _ := r.Resolve("status", ctx); v != "active" {
		t.Errorf("status: got %v", v)
	}
}

func TestFieldResolver_LastTradeResultDefaultsToNone(t *testing.T) {
	r := NewFieldResolver()
	state := selfState()
	state.LastAction = nil
	ctx := EvaluationContext{AgentState: state}

	if v, _ := r.Resolve("last_trade_result", ctx); v != "none" {
		t.Errorf("expected none, got %v", v)
	}
}

func TestFieldResolver_UnknownFieldReturnsZero(t *testing.T) {
	r := NewFieldResolver()
	ctx := EvaluationContext{AgentState: selfState()}
	v, stale := r.Resolve("not_a_real_field", ctx)
	if v != 0 || stale {
		t.Errorf("expected (0, false), got (%v, %v)", v, stale)
	}
}

func TestFieldResolver_PeerByNameCaseInsensitive(t *testing.T) {
	r := NewFieldResolver()
	ctx := EvaluationContext{
		AgentState: selfState(),
		PeerStates: map[int]models.AgentState{
			2: {AgentID: 2, Name: "Beta", Balance: 2.0, Status: models.StatusActive},
		},
	}
	v, stale := r.Resolve("peer.beta.balance", ctx)
	if v != 2.0 || stale {
		t.Errorf("expected (2.0, false), got (%v, %v)", v, stale)
	}
}

func TestFieldResolver_PeerByNumericID(t *testing.T) {
	r := NewFieldResolver()
	ctx := EvaluationContext{
		AgentState: selfState(),
		PeerStates: map[int]models.AgentState{
			2: {AgentID: 2, Name: "Beta", Balance: 2.0, Status: models.StatusActive},
		},
	}
	v, _ := r.Resolve("peer.2.balance", ctx)
	if v != 2.0 {
		t.Errorf("expected 2.0, got %v", v)
	}
}

func TestFieldResolver_PeerStalenessWhenPeerErrored(t *testing.T) {
	r := NewFieldResolver()
	ctx := EvaluationContext{
		AgentState: selfState(),
		PeerStates: map[int]models.AgentState{
			2: {AgentID: 2, Name: "Alpha", Balance: 2.0, Status: models.StatusError},
		},
	}
	v, stale := r.Resolve("peer.Alpha.balance", ctx)
	if v != 2.0 {
		t.Errorf("expected cached balance 2.0 despite error status, got %v", v)
	}
	if !stale {
		t.Error("expected peerDataStale=true when referenced peer status is error")
	}
}

func TestFieldResolver_MissingPeerReturnsZero(t *testing.T) {
	r := NewFieldResolver()
	ctx := EvaluationContext{AgentState: selfState()}
	v, stale := r.Resolve("peer.Ghost.balance", ctx)
	if v != 0 || stale {
		t.Errorf("expected (0, false) for missing peer, got (%v, %v)", v, stale)
	}
}

func TestFieldResolver_MalformedPeerKeyReturnsZero(t *testing.T) {
	r := NewFieldResolver()
	ctx := EvaluationContext{AgentState: selfState()}
	v, _ := r.Resolve("peer.justtwo", ctx)
	if v != 0 {
		t.Errorf("expected 0 for malformed peer key, got %v", v)
	}
}
