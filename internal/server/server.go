// Package server wires the HTTP surface spec.md §6 describes: the SSE
// stream, the market-control endpoints, the static dashboard, and (kept
// ambient per the teacher's ops conventions) liveness/readiness probes —
// on the same http.ServeMux + http.Server-with-explicit-timeouts shape
// internal/health.Server used, generalized from K8s DB/Redis probes to
// this runtime's own agent/market health.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/autarch/runtime/internal/runtime"
	"github.com/autarch/runtime/internal/sse"
	"github.com/autarch/runtime/pkg/logger"
)

// Server hosts the SSE stream, market-control endpoints, and (if staticDir
// is non-empty) the static dashboard.
type Server struct {
	httpServer *http.Server
	hub        *sse.Hub
	rt         *runtime.Runtime
	startTime  time.Time
}

// New builds a Server listening on addr. If staticDir is non-empty, it is
// served at GET /. Runtime events are wired into hub before any request is
// served.
func New(addr string, rt *runtime.Runtime, hub *sse.Hub, staticDir string) *Server {
	wireEvents(rt, hub)

	mux := http.NewServeMux()
	s := &Server{
		hub:       hub,
		rt:        rt,
		startTime: time.Now(),
	}

	mux.HandleFunc("/events", hub.HandleSSE)
	mux.HandleFunc("/api/market/dip", s.handleMarketControl(rt.InjectDip))
	mux.HandleFunc("/api/market/rally", s.handleMarketControl(rt.InjectRally))
	mux.HandleFunc("/api/market/reset", s.handleMarketReset)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/readyz", s.handleReady)

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// wireEvents forwards every Runtime event to the SSE hub under the event
// names spec.md §4.10 specifies. Payloads are forwarded unchanged; each
// Runtime payload type already carries its own timestamp.
func wireEvents(rt *runtime.Runtime, hub *sse.Hub) {
	rt.On(runtime.EventStateUpdate, func(payload interface{}) {
		hub.Broadcast("stateUpdate", payload)
	})
	rt.On(runtime.EventAgentLifecycle, func(payload interface{}) {
		hub.Broadcast("systemEvent", payload)
	})
	rt.On(runtime.EventRulesReloaded, func(payload interface{}) {
		hub.Broadcast("systemEvent", payload)
	})
	rt.On(runtime.EventMarketUpdate, func(payload interface{}) {
		hub.Broadcast("marketUpdate", payload)
	})
	rt.On(runtime.EventSimulationMode, func(payload interface{}) {
		hub.Broadcast("modeChange", payload)
	})
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

type marketControlRequest struct {
	Percent float64 `json:"percent"`
}

type marketControlResponse struct {
	Success bool `json:"success"`
	Clients int  `json:"clients"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleMarketControl(action func(pct float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req marketControlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := action(req.Percent); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, marketControlResponse{Success: true, Clients: s.hub.ClientCount()})
	}
}

func (s *Server) handleMarketReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.rt.ResetMarket(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, marketControlResponse{Success: true, Clients: s.hub.ClientCount()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

type healthStatus struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthStatus{Status: "healthy", Uptime: time.Since(s.startTime).Round(time.Second).String()})
}

type readyStatus struct {
	Ready  bool `json:"ready"`
	Agents int  `json:"agents"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	agents := len(s.rt.GetStates())
	writeJSON(w, http.StatusOK, readyStatus{Ready: true, Agents: agents})
}
