// Package wallet provides the per-agent signing capability used to submit
// transfers and airdrop requests through an rpcclient.Client. Private key
// material lives only inside a closure returned at construction time — no
// exported type or method ever exposes it, so a leaked Wallet value or a
// panicking caller can't exfiltrate a seed.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/autarch/runtime/internal/rpcclient"
	"github.com/autarch/runtime/pkg/models"
)

// Wallet is the capability surface spec.md §4.9 grants each agent: read its
// own balance, sign transactions, and move SOL. There is deliberately no
// method that returns private key material.
type Wallet interface {
	AgentID() int
	Address() string
	PublicKey() ed25519.PublicKey
	Balance(ctx context.Context) (rpcclient.Balance, error)
	SignTransaction(ctx context.Context, message []byte) ([]byte, error)
	DistributeSol(ctx context.Context, to Wallet, sol decimal.Decimal) (*rpcclient.TxResult, error)
	RequestAirdrop(ctx context.Context, sol decimal.Decimal) (string, error)
	Execute(ctx context.Context, action models.Action, amount float64) (*rpcclient.TxResult, error)
}

type transferEnvelope struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Lamports  int64  `json:"lamports"`
	Blockhash string `json:"blockhash"`
}

type executeEnvelope struct {
	Address   string        `json:"address"`
	Action    models.Action `json:"action"`
	Lamports  int64         `json:"lamports"`
	Blockhash string        `json:"blockhash"`
}

// agentWallet is the concrete Wallet. It never stores an ed25519.PrivateKey
// field — signing goes through the sign closure captured at construction,
// so the private key's only live reference is a variable inside
// newAgentWallet's stack frame that escapes solely into that closure.
type agentWallet struct {
	agentID int
	address string
	pub     ed25519.PublicKey
	sign    func(message []byte) []byte
	rpc     *rpcclient.Client
}

func newAgentWallet(agentID int, rpc *rpcclient.Client) (*agentWallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair for agent %d: %w", agentID, err)
	}
	signFn := func(message []byte) []byte {
		return ed25519.Sign(priv, message)
	}
	return &agentWallet{
		agentID: agentID,
		address: base64.RawURLEncoding.EncodeToString(pub),
		pub:     pub,
		sign:    signFn,
		rpc:     rpc,
	}, nil
}

func (w *agentWallet) AgentID() int                  { return w.agentID }
func (w *agentWallet) Address() string                { return w.address }
func (w *agentWallet) PublicKey() ed25519.PublicKey   { return w.pub }

func (w *agentWallet) Balance(ctx context.Context) (rpcclient.Balance, error) {
	return w.rpc.GetBalance(ctx, w.address)
}

// SignTransaction signs an arbitrary message with the agent's held key.
// Callers build the wire-format payload; this never touches or logs it
// beyond producing a detached signature.
func (w *agentWallet) SignTransaction(ctx context.Context, message []byte) ([]byte, error) {
	if len(message) == 0 {
		return nil, fmt.Errorf("agent %d: cannot sign an empty transaction message", w.agentID)
	}
	return w.sign(message), nil
}

// DistributeSol transfers sol to another wallet, fetching a fresh blockhash
// on every retry attempt via rpcclient.TxFactory so a slow retry loop never
// submits against an expired one.
func (w *agentWallet) DistributeSol(ctx context.Context, to Wallet, sol decimal.Decimal) (*rpcclient.TxResult, error) {
	if to.AgentID() == models.TreasuryAgentID {
		return nil, fmt.Errorf("agent %d: distribution recipient cannot be the treasury (agentId 0)", w.agentID)
	}
	if sol.Sign() <= 0 {
		return nil, fmt.Errorf("agent %d: distribution amount must be positive, got %s", w.agentID, sol.String())
	}
	lamports := models.SolToLamports(sol)

	src := rpcclient.TxFactory(func(ctx context.Context) ([]byte, error) {
		bh, err := w.rpc.GetLatestBlockhash(ctx)
		if err != nil {
			return nil, err
		}
		envelope := transferEnvelope{From: w.address, To: to.Address(), Lamports: lamports, Blockhash: bh.Blockhash}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return nil, fmt.Errorf("encode transfer envelope: %w", err)
		}
		sig := w.sign(payload)
		return append(payload, sig...), nil
	})
	return w.rpc.SendAndConfirm(ctx, src)
}

func (w *agentWallet) RequestAirdrop(ctx context.Context, sol decimal.Decimal) (string, error) {
	return w.rpc.RequestAirdrop(ctx, w.address, models.SolToLamports(sol))
}

// Execute submits the generic buy/sell/transfer action an Agent's decision
// produced. Constructing an actual DEX swap or counterparty transfer is
// outside this boundary contract (spec.md §4.9 scopes the wallet adapter to
// signing and submission, not trade construction) — the envelope here
// exists only to carry a real signed, submitted transaction through
// RpcClient so the resulting TraceExecution status is genuine.
func (w *agentWallet) Execute(ctx context.Context, action models.Action, amount float64) (*rpcclient.TxResult, error) {
	lamports := models.SolToLamports(decimal.NewFromFloat(amount))
	src := rpcclient.TxFactory(func(ctx context.Context) ([]byte, error) {
		bh, err := w.rpc.GetLatestBlockhash(ctx)
		if err != nil {
			return nil, err
		}
		envelope := executeEnvelope{Address: w.address, Action: action, Lamports: lamports, Blockhash: bh.Blockhash}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return nil, fmt.Errorf("encode execute envelope: %w", err)
		}
		sig := w.sign(payload)
		return append(payload, sig...), nil
	})
	return w.rpc.SendAndConfirm(ctx, src)
}

// Factory caches one Wallet per agentId, mirroring the exchange package's
// cached-instance pattern. agentId 0 is reserved for the treasury per
// spec.md §4.9.
type Factory struct {
	mu      sync.Mutex
	rpc     *rpcclient.Client
	wallets map[int]*agentWallet
}

// NewFactory builds a wallet Factory bound to rpc.
func NewFactory(rpc *rpcclient.Client) *Factory {
	return &Factory{rpc: rpc, wallets: make(map[int]*agentWallet)}
}

// Get returns the cached Wallet for agentID, creating and caching one on
// first use.
func (f *Factory) Get(agentID int) (Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.wallets[agentID]; ok {
		return w, nil
	}
	w, err := newAgentWallet(agentID, f.rpc)
	if err != nil {
		return nil, err
	}
	f.wallets[agentID] = w
	return w, nil
}

// Treasury returns the reserved treasury wallet (agentId 0).
func (f *Factory) Treasury() (Wallet, error) {
	return f.Get(models.TreasuryAgentID)
}
