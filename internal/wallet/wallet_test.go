package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/autarch/runtime/internal/rpcclient"
	"github.com/autarch/runtime/pkg/models"
)

type stubTransport struct{}

func (stubTransport) GetBalance(ctx context.Context, endpoint, address string) (int64, error) {
	return 3_000_000_000, nil
}
func (stubTransport) GetLatestBlockhash(ctx context.Context, endpoint string) (string, uint64, error) {
	return "stubblockhash", 100, nil
}
func (stubTransport) SendAndConfirm(ctx context.Context, endpoint string, rawTx []byte) (string, error) {
	return "stubsignature", nil
}
func (stubTransport) RequestAirdrop(ctx context.Context, endpoint, address string, lamports int64) (string, error) {
	return "stubairdrop", nil
}
func (stubTransport) GetHealth(ctx context.Context, endpoint string) error { return nil }

func newTestFactory() *Factory {
	client := rpcclient.NewClient(rpcclient.Config{
		Endpoints: []string{"primary"},
		BaseDelay: time.Millisecond,
	}, stubTransport{})
	return NewFactory(client)
}

func TestFactory_CachesWalletPerAgent(t *testing.T) {
	f := newTestFactory()
	w1, err := f.Get(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w2, err := f.Get(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w1.Address() != w2.Address() {
		t.Fatal("expected the same cached wallet for repeated Get(1)")
	}

	other, err := f.Get(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Address() == w1.Address() {
		t.Fatal("expected distinct keypairs for distinct agent ids")
	}
}

func TestFactory_TreasuryIsAgentZero(t *testing.T) {
	f := newTestFactory()
	treasury, err := f.Treasury()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if treasury.AgentID() != 0 {
		t.Fatalf("expected treasury agentId 0, got %d", treasury.AgentID())
	}
}

func TestWallet_SignTransactionRejectsEmptyMessage(t *testing.T) {
	f := newTestFactory()
	w, _ := f.Get(1)
	if _, err := w.SignTransaction(context.Background(), nil); err == nil {
		t.Fatal("expected error signing an empty message")
	}
}

func TestWallet_DistributeSolRejectsNonPositiveAmount(t *testing.T) {
	f := newTestFactory()
	from, _ := f.Get(0)
	to, _ := f.Get(1)

	if _, err := from.DistributeSol(context.Background(), to, decimal.Zero); err == nil {
		t.Fatal("expected error distributing zero SOL")
	}
	if _, err := from.DistributeSol(context.Background(), to, decimal.NewFromFloat(-1)); err == nil {
		t.Fatal("expected error distributing negative SOL")
	}
}

func TestWallet_DistributeSolRejectsTreasuryRecipient(t *testing.T) {
	f := newTestFactory()
	from, _ := f.Get(1)
	treasury, _ := f.Treasury()

	if _, err := from.DistributeSol(context.Background(), treasury, decimal.NewFromFloat(0.5)); err == nil {
		t.Fatal("expected error distributing to the treasury (agentId 0)")
	}
}

func TestWallet_DistributeSolSucceeds(t *testing.T) {
	f := newTestFactory()
	from, _ := f.Get(0)
	to, _ := f.Get(1)

	result, err := from.DistributeSol(context.Background(), to, decimal.NewFromFloat(0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Signature == "" {
		t.Fatal("expected a signature")
	}
}

func TestWallet_ExecuteSubmitsAndConfirms(t *testing.T) {
	f := newTestFactory()
	w, _ := f.Get(1)

	result, err := w.Execute(context.Background(), models.ActionBuy, 0.25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Signature == "" {
		t.Fatal("expected a signature")
	}
	if result.Status != models.ExecConfirmed {
		t.Fatalf("expected confirmed status, got %s", result.Status)
	}
}

func TestWallet_BalanceAndAirdrop(t *testing.T) {
	f := newTestFactory()
	w, _ := f.Get(1)

	bal, err := w.Balance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bal.Lamports != 3_000_000_000 {
		t.Fatalf("unexpected balance: %+v", bal)
	}

	sig, err := w.RequestAirdrop(context.Background(), decimal.NewFromFloat(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == "" {
		t.Fatal("expected airdrop signature")
	}
}
