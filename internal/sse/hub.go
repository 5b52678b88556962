// Package sse implements the Server-Sent Events hub the dashboard streams
// state over: one long-lived GET /events connection per browser tab,
// fed by Runtime's stateUpdate/agentLifecycle/marketUpdate/simulationMode
// events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autarch/runtime/pkg/logger"
	"github.com/autarch/runtime/pkg/models"
)

type client struct {
	id   string
	send chan []byte
}

// Hub tracks connected SSE clients and fans out broadcasts to all of them.
// Mirrors the pack's WebSocket hub shape (register/unregister/broadcast
// under a single RWMutex), with the wire framing swapped for SSE text.
type Hub struct {
	mu                sync.RWMutex
	clients           map[*client]bool
	heartbeatInterval time.Duration
	retryMs           int
}

// NewHub builds an empty Hub using the spec's default heartbeat/retry
// intervals.
func NewHub() *Hub {
	return &Hub{
		clients:           make(map[*client]bool),
		heartbeatInterval: time.Duration(models.SSEHeartbeatIntervalMs) * time.Millisecond,
		retryMs:           models.SSERetryMs,
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func formatFrame(eventName string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventName, data))
}

// Broadcast marshals payload as JSON and writes `event: <eventName>` /
// `data: <json>` frames to every connected client. A client whose send
// buffer is full is skipped, not closed — transient backpressure is not a
// disconnect.
func (h *Hub) Broadcast(eventName string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal SSE broadcast payload", zap.String("event", eventName), zap.Error(err))
		return
	}
	frame := formatFrame(eventName, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			logger.Warn("dropping SSE frame for slow client", zap.String("event", eventName), zap.String("clientId", c.id))
		}
	}
}

// StartHeartbeat writes a `: heartbeat` comment line to every client every
// SSE_HEARTBEAT_INTERVAL_MS until done is closed.
func (h *Hub) StartHeartbeat(done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(h.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				h.heartbeat()
			}
		}
	}()
}

func (h *Hub) heartbeat() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- []byte(": heartbeat\n\n"):
		default:
		}
	}
}

// HandleSSE upgrades an HTTP request into an SSE stream per spec.md §4.10:
// it sets the event-stream headers, writes the initial retry line, then
// blocks relaying broadcasts to this client until the request context is
// canceled (browser navigated away / connection dropped).
func (h *Hub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "retry: %d\n\n", h.retryMs)
	flusher.Flush()

	c := &client{id: uuid.New().String(), send: make(chan []byte, 64)}
	h.register(c)
	defer h.unregister(c)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
