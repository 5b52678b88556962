package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/autarch/runtime/pkg/logger"
	"github.com/autarch/runtime/pkg/models"
)

type pricePoint struct {
	at    time.Time
	price float64
}

// LiveProvider streams real prices over a WebSocket feed, reconnecting
// after a fixed delay the same way the pack's exchange adapters do.
// It computes price_change_1m/5m itself from a rolling sample history
// since the wire format only carries instantaneous ticks.
type LiveProvider struct {
	url            string
	reconnectDelay time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	history []pricePoint
	volume  float64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewLiveProvider builds a LiveProvider pointed at a WebSocket feed url
// that emits JSON ticks shaped `{"price": <float>, "volume": <float>}`.
func NewLiveProvider(url string) *LiveProvider {
	ctx, cancel := context.WithCancel(context.Background())
	return &LiveProvider{
		url:            url,
		reconnectDelay: 5 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Connect dials the feed and starts the read loop.
func (lp *LiveProvider) Connect() error {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(lp.url, nil)
	if err != nil {
		return fmt.Errorf("connect to market feed: %w", err)
	}
	lp.conn = conn
	go lp.readLoop()

	logger.Info("market feed connected", zap.String("url", lp.url))
	return nil
}

type tickMessage struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

func (lp *LiveProvider) readLoop() {
	defer func() {
		lp.mu.Lock()
		if lp.conn != nil {
			lp.conn.Close()
		}
		lp.mu.Unlock()

		if lp.ctx.Err() == nil {
			logger.Info("attempting to reconnect market feed")
			time.Sleep(lp.reconnectDelay)
			if err := lp.Connect(); err != nil {
				logger.Error("failed to reconnect market feed", zap.Error(err))
			}
		}
	}()

	for {
		select {
		case <-lp.ctx.Done():
			return
		default:
		}

		_, raw, err := lp.conn.ReadMessage()
		if err != nil {
			logger.Error("market feed read error", zap.Error(err))
			return
		}

		var msg tickMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("failed to parse market feed tick", zap.Error(err))
			continue
		}
		lp.record(msg)
	}
}

func (lp *LiveProvider) record(msg tickMessage) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	now := time.Now()
	lp.history = append(lp.history, pricePoint{at: now, price: msg.Price})
	lp.volume = msg.Volume

	cutoff := now.Add(-5 * time.Minute)
	i := 0
	for ; i < len(lp.history); i++ {
		if lp.history[i].at.After(cutoff) {
			break
		}
	}
	lp.history = lp.history[i:]
}

func pctChangeSince(history []pricePoint, current float64, since time.Time) float64 {
	for _, p := range history {
		if !p.at.Before(since) {
			if p.price == 0 {
				return 0
			}
			return (current - p.price) / p.price * 100
		}
	}
	return 0
}

// Snapshot returns the latest tick plus rolling 1m/5m percent changes.
func (lp *LiveProvider) Snapshot() models.MarketData {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if len(lp.history) == 0 {
		return models.MarketData{Timestamp: time.Now().UnixMilli(), Source: models.SourceLive}
	}
	latest := lp.history[len(lp.history)-1]
	now := latest.at

	return models.MarketData{
		Price:          latest.price,
		PriceChange1m:  pctChangeSince(lp.history, latest.price, now.Add(-time.Minute)),
		PriceChange5m:  pctChangeSince(lp.history, latest.price, now.Add(-5*time.Minute)),
		VolumeChange1m: 0,
		Timestamp:      now.UnixMilli(),
		Source:         models.SourceLive,
	}
}

// Close stops the read loop and closes the underlying connection.
func (lp *LiveProvider) Close() error {
	lp.cancel()
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.conn != nil {
		return lp.conn.Close()
	}
	return nil
}

var _ Provider = (*LiveProvider)(nil)
