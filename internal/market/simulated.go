package market

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/autarch/runtime/pkg/models"
)

const defaultVolatility = 0.002 // ±0.1% drift per tick, matched to the pack's mock-exchange price generator

// SimulatedProvider is a self-contained random-walk market feed, the
// default MarketProvider in demo mode. It needs no external dependency and
// supports the dip/rally/reset controls the dashboard exposes.
type SimulatedProvider struct {
	mu sync.RWMutex

	initialPrice   float64
	price          float64
	priceChange1m  float64
	priceChange5m  float64
	volumeChange1m float64

	rng *rand.Rand

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSimulatedProvider seeds the walk at initialPrice.
func NewSimulatedProvider(initialPrice float64) *SimulatedProvider {
	return &SimulatedProvider{
		initialPrice: initialPrice,
		price:        initialPrice,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:       make(chan struct{}),
	}
}

// Start runs the random-walk loop until ctx is canceled or Stop is called.
func (p *SimulatedProvider) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.tick()
			}
		}
	}()
}

// Stop halts the random-walk loop. Idempotent.
func (p *SimulatedProvider) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *SimulatedProvider) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	drift := (p.rng.Float64() - 0.5) * defaultVolatility
	p.price *= 1 + drift

	driftPct := drift * 100
	p.priceChange1m = p.priceChange1m*0.8 + driftPct*0.2
	p.priceChange5m = p.priceChange5m*0.95 + driftPct*0.05

	volDrift := (p.rng.Float64() - 0.5) * 0.05 * 100
	p.volumeChange1m = p.volumeChange1m*0.8 + volDrift*0.2
}

// Snapshot returns a defensive copy of the current market state.
func (p *SimulatedProvider) Snapshot() models.MarketData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return models.MarketData{
		Price:          p.price,
		PriceChange1m:  p.priceChange1m,
		PriceChange5m:  p.priceChange5m,
		VolumeChange1m: p.volumeChange1m,
		Timestamp:      time.Now().UnixMilli(),
		Source:         models.SourceSimulated,
	}
}

// InjectDip applies an immediate pct% price drop.
func (p *SimulatedProvider) InjectDip(pct float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price *= 1 - pct/100
	p.priceChange1m = -pct
	p.priceChange5m -= pct * 0.5
}

// InjectRally applies an immediate pct% price rise.
func (p *SimulatedProvider) InjectRally(pct float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price *= 1 + pct/100
	p.priceChange1m = pct
	p.priceChange5m += pct * 0.5
}

// Reset returns the feed to its initial baseline.
func (p *SimulatedProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = p.initialPrice
	p.priceChange1m = 0
	p.priceChange5m = 0
	p.volumeChange1m = 0
}

var _ Controllable = (*SimulatedProvider)(nil)
