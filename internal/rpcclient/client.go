// Package rpcclient implements the resilient Solana RPC facade: endpoint
// rotation, capped exponential backoff, and a normal/degraded/simulation
// connection-mode state machine that falls back to synthetic responses
// once the chain is unreachable rather than stalling every agent tick.
package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/autarch/runtime/pkg/models"
)

// Balance mirrors a Solana account balance in both native units.
type Balance struct {
	Lamports int64   `json:"lamports"`
	Sol      float64 `json:"sol"`
}

// Blockhash is the result of getLatestBlockhash, needed to build a
// submittable transaction.
type Blockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// TxResult reports how a submitted transaction was ultimately handled.
type TxResult struct {
	Signature string                `json:"signature"`
	Status    models.ExecutionStatus `json:"status"`
	Mode      models.ConnectionMode  `json:"mode"`
}

// TxSource resolves the raw signed transaction bytes to submit on a given
// attempt. Implementations that re-sign against a fresh blockhash per retry
// (recommended — blockhashes expire) should do so inside Resolve.
type TxSource interface {
	Resolve(ctx context.Context) ([]byte, error)
}

type staticTx struct{ raw []byte }

func (s staticTx) Resolve(ctx context.Context) ([]byte, error) { return s.raw, nil }

// StaticTx wraps an already-signed transaction that is resubmitted verbatim
// on every retry attempt.
func StaticTx(raw []byte) TxSource { return staticTx{raw: raw} }

type factoryTx struct{ fn func(ctx context.Context) ([]byte, error) }

func (f factoryTx) Resolve(ctx context.Context) ([]byte, error) { return f.fn(ctx) }

// TxFactory wraps a closure invoked fresh on every attempt, so each retry
// can bind against a newly fetched blockhash.
func TxFactory(fn func(ctx context.Context) ([]byte, error)) TxSource { return factoryTx{fn: fn} }

// Config configures a Client. Zero values fall back to the spec defaults,
// except MaxRetries: 0 means a single attempt with no retries, and only a
// negative value selects the default.
type Config struct {
	Endpoints                []string
	MaxRetries               int
	BaseDelay                time.Duration
	HealthCheckInterval      time.Duration
	RateLimitPerSecond       float64 // 0 disables client-side throttling
	OnSimulationModeChange   func(active bool, reason string)
}

// Client is the resilient RPC facade described in spec.md §4.8.
type Client struct {
	mu                         sync.Mutex
	transport                  Transport
	endpoints                  []string
	endpointIdx                int
	mode                       models.ConnectionMode
	consecutiveNetworkFailures int
	maxRetries                 int
	baseDelay                  time.Duration
	healthCheckInterval        time.Duration
	onSimulationModeChange     func(active bool, reason string)
	balances                   map[string]int64
	healthRunning              bool
	healthStop                 chan struct{}
	limiter                    *rate.Limiter
}

// NewClient builds a Client around transport using cfg. transport is
// normally a *HTTPTransport in production and a fake in tests.
func NewClient(cfg Config, transport Transport) *Client {
	endpoints := cfg.Endpoints
	if len(endpoints) == 0 {
		endpoints = []string{"https://api.mainnet-beta.solana.com"}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = models.DefaultMaxRetries
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Duration(models.DefaultBaseDelayMs) * time.Millisecond
	}
	healthInterval := cfg.HealthCheckInterval
	if healthInterval <= 0 {
		healthInterval = time.Duration(models.DefaultHealthCheckMs) * time.Millisecond
	}
	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), 1)
	}
	return &Client{
		transport:              transport,
		endpoints:              endpoints,
		mode:                   models.ModeNormal,
		maxRetries:             maxRetries,
		baseDelay:              baseDelay,
		healthCheckInterval:    healthInterval,
		onSimulationModeChange: cfg.OnSimulationModeChange,
		balances:               make(map[string]int64),
		limiter:                limiter,
	}
}

// ParseEndpoints builds the ordered endpoint pool per spec.md §6:
// RPC_ENDPOINTS (comma-separated, trimmed, blanks dropped) takes
// precedence over the single RPC_URL.
func ParseEndpoints(rpcURL, rpcEndpoints string) []string {
	if strings.TrimSpace(rpcEndpoints) != "" {
		parts := strings.Split(rpcEndpoints, ",")
		endpoints := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				endpoints = append(endpoints, p)
			}
		}
		if len(endpoints) > 0 {
			return endpoints
		}
	}
	if strings.TrimSpace(rpcURL) != "" {
		return []string{strings.TrimSpace(rpcURL)}
	}
	return nil
}

// Mode reports the client's current connection mode.
func (c *Client) Mode() models.ConnectionMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Client) currentEndpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints[c.endpointIdx]
}

func (c *Client) rotateEndpoint() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.endpoints) > 0 {
		c.endpointIdx = (c.endpointIdx + 1) % len(c.endpoints)
	}
}

func (c *Client) cachedLamports(address string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[address]
}

func (c *Client) cacheBalance(address string, lamports int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[address] = lamports
}

func (c *Client) onSuccess(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveNetworkFailures = 0
	if len(c.endpoints) > 0 && endpoint != c.endpoints[0] {
		c.mode = models.ModeDegraded
	} else if c.mode == models.ModeDegraded {
		c.mode = models.ModeNormal
	}
}

func (c *Client) enterSimulation(reason string) {
	c.mu.Lock()
	if c.mode == models.ModeSimulation {
		c.mu.Unlock()
		return
	}
	c.mode = models.ModeSimulation
	c.mu.Unlock()

	if c.onSimulationModeChange != nil {
		c.onSimulationModeChange(true, reason)
	}
	c.startHealthProbe()
}

func (c *Client) startHealthProbe() {
	c.mu.Lock()
	if c.healthRunning {
		c.mu.Unlock()
		return
	}
	c.healthRunning = true
	stop := make(chan struct{})
	c.healthStop = stop
	primary := c.endpoints[0]
	interval := c.healthCheckInterval
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(context.Background(), interval)
				err := c.transport.GetHealth(probeCtx, primary)
				cancel()
				if err == nil {
					c.mu.Lock()
					c.consecutiveNetworkFailures = 0
					c.mode = models.ModeNormal
					c.healthRunning = false
					c.mu.Unlock()
					if c.onSimulationModeChange != nil {
						c.onSimulationModeChange(false, "Health check succeeded")
					}
					return
				}
			}
		}
	}()
}

// Cleanup stops any in-flight health probe. Idempotent.
func (c *Client) Cleanup() {
	c.mu.Lock()
	stop := c.healthStop
	running := c.healthRunning
	c.healthRunning = false
	c.healthStop = nil
	c.mu.Unlock()
	if running && stop != nil {
		close(stop)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// withRetry drives the retry/rotation/simulation-entry loop shared by every
// operation. attempt performs one call against the given endpoint; simulate
// produces the synthetic result to fall back to if the loop trips into
// simulation mode mid-retry.
func withRetry[T any](c *Client, ctx context.Context, op string, attempt func(ctx context.Context, endpoint string) (T, error), simulate func() T) (T, error) {
	var zero T
	budget := time.Duration(models.RetryBudgetMs) * time.Millisecond
	elapsed := time.Duration(0)

	for attemptNum := 0; attemptNum <= c.maxRetries; attemptNum++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return zero, &Error{Kind: KindNetwork, Op: op, Err: err}
			}
		}

		endpoint := c.currentEndpoint()
		result, err := attempt(ctx, endpoint)
		if err == nil {
			c.onSuccess(endpoint)
			return result, nil
		}

		kind := classify(err, op)
		rpcErr := &Error{Kind: kind, Op: op, Err: err}

		if !kind.Retryable() {
			return zero, rpcErr
		}

		if kind.CountsTowardSimulation() {
			c.mu.Lock()
			c.consecutiveNetworkFailures++
			tripped := c.consecutiveNetworkFailures >= models.SimulationFailureThreshold
			c.mu.Unlock()
			if tripped {
				c.enterSimulation(fmt.Sprintf("%d consecutive network failures", models.SimulationFailureThreshold))
				return simulate(), nil
			}
		}

		if attemptNum == c.maxRetries {
			if kind == KindAirdropRateLimit {
				return zero, rpcErr
			}
			return zero, &Error{Kind: KindNetwork, Op: op, Err: fmt.Errorf("retrying exhausted: %w", err)}
		}

		c.rotateEndpoint()

		mult := time.Duration(1)
		if kind == KindRateLimit || kind == KindAirdropRateLimit {
			mult = 2
		}
		sleep := c.baseDelay * time.Duration(int64(1)<<uint(attemptNum)) * mult
		if elapsed+sleep > budget {
			sleep = budget - elapsed
			if sleep < 0 {
				sleep = 0
			}
		}
		elapsed += sleep
		sleepCtx(ctx, sleep)
	}
	return zero, &Error{Kind: KindNetwork, Op: op, Err: errors.New("retrying exhausted")}
}

func classify(err error, op string) Kind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "econnrefused"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "etimedout"),
		strings.Contains(msg, "upstream status"), strings.Contains(msg, "no such host"):
		return KindNetwork
	case strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "rate limit"):
		if op == "requestAirdrop" {
			return KindAirdropRateLimit
		}
		return KindRateLimit
	case op == "sendAndConfirm":
		return KindTransaction
	default:
		return KindRequest
	}
}

func simSignature() string {
	return "sim-" + uuid.New().String()
}

// GetBalance returns the account balance, or a synthetic one drawn from the
// last successfully cached value (zero if none) while in simulation mode.
func (c *Client) GetBalance(ctx context.Context, address string) (Balance, error) {
	if c.Mode() == models.ModeSimulation {
		return Balance{Lamports: c.cachedLamports(address), Sol: models.LamportsToSol(c.cachedLamports(address)).InexactFloat64()}, nil
	}
	lamports, err := withRetry(c, ctx, "getBalance", func(ctx context.Context, endpoint string) (int64, error) {
		return c.transport.GetBalance(ctx, endpoint, address)
	}, func() int64 { return c.cachedLamports(address) })
	if err != nil {
		return Balance{}, err
	}
	c.cacheBalance(address, lamports)
	return Balance{Lamports: lamports, Sol: models.LamportsToSol(lamports).InexactFloat64()}, nil
}

// GetLatestBlockhash returns a fresh blockhash, or the synthetic all-ones
// blockhash while in simulation mode.
func (c *Client) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	simulated := func() Blockhash {
		return Blockhash{Blockhash: strings.Repeat("1", 32), LastValidBlockHeight: 0}
	}
	if c.Mode() == models.ModeSimulation {
		return simulated(), nil
	}
	type result struct {
		hash   string
		height uint64
	}
	r, err := withRetry(c, ctx, "getLatestBlockhash", func(ctx context.Context, endpoint string) (result, error) {
		hash, height, err := c.transport.GetLatestBlockhash(ctx, endpoint)
		return result{hash: hash, height: height}, err
	}, func() result { sim := simulated(); return result{hash: sim.Blockhash, height: sim.LastValidBlockHeight} })
	if err != nil {
		return Blockhash{}, err
	}
	return Blockhash{Blockhash: r.hash, LastValidBlockHeight: r.height}, nil
}

// SendAndConfirm submits src, or returns a synthetic confirmed signature
// while in simulation mode.
func (c *Client) SendAndConfirm(ctx context.Context, src TxSource) (*TxResult, error) {
	if c.Mode() == models.ModeSimulation {
		return &TxResult{Signature: simSignature(), Status: models.ExecSimulated, Mode: models.ModeSimulation}, nil
	}
	sig, err := withRetry(c, ctx, "sendAndConfirm", func(ctx context.Context, endpoint string) (string, error) {
		raw, err := src.Resolve(ctx)
		if err != nil {
			return "", err
		}
		return c.transport.SendAndConfirm(ctx, endpoint, raw)
	}, simSignature)
	if err != nil {
		return nil, err
	}
	status := models.ExecConfirmed
	mode := c.Mode()
	if mode == models.ModeSimulation {
		status = models.ExecSimulated
	}
	return &TxResult{Signature: sig, Status: status, Mode: mode}, nil
}

// RequestAirdrop requests lamports airdropped to address. Rate-limit
// exhaustion here is tagged KindAirdropRateLimit and never trips
// simulation mode — see spec.md §7.
func (c *Client) RequestAirdrop(ctx context.Context, address string, lamports int64) (string, error) {
	if c.Mode() == models.ModeSimulation {
		return simSignature(), nil
	}
	return withRetry(c, ctx, "requestAirdrop", func(ctx context.Context, endpoint string) (string, error) {
		return c.transport.RequestAirdrop(ctx, endpoint, address, lamports)
	}, simSignature)
}
