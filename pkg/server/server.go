// Package server exposes the agent over the HTTP runtime contract:
// POST /invocations, GET /ping, GET /metrics and GET /stats.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resilientagent/pkg/agent"
	"resilientagent/pkg/logx"
	"resilientagent/pkg/persistence"
	"resilientagent/pkg/version"
)

// RequestIDHeader carries the invocation ID in both directions.
const RequestIDHeader = "X-Request-Id"

// MaxPayloadBytes bounds the size of an invocation payload.
const MaxPayloadBytes = 1 << 20

// Runtime is the agent surface the server exposes.
type Runtime interface {
	HandleInvocation(ctx context.Context, payload map[string]any) map[string]any
	Stats() agent.Stats
	Ledger() *persistence.Store
}

// Server is the agent's HTTP front end.
type Server struct {
	runtime  Runtime
	gatherer prometheus.Gatherer
	logger   *logx.Logger
}

// New creates a server for runtime. gatherer backs /metrics; nil disables the endpoint.
func New(runtime Runtime, gatherer prometheus.Gatherer) *Server {
	return &Server{
		runtime:  runtime,
		gatherer: gatherer,
		logger:   logx.NewLogger("server"),
	}
}

// RegisterRoutes registers the server's handlers on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/invocations", s.handleInvocations)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/stats", s.handleStats)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Run serves on addr until ctx is done, then shuts down gracefully,
// giving in-flight invocations up to shutdownTimeout to finish.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting agent server on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return logx.Wrap(err, "agent server failed")
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down agent server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	//nolint:contextcheck // Parent context is cancelled; we need a fresh context for shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		return logx.Wrap(err, "agent server shutdown failed")
	}
	return nil
}

// handleInvocations implements POST /invocations.
func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)

	var payload map[string]any
	body := http.MaxBytesReader(w, r.Body, MaxPayloadBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		s.logger.Warn("Rejected invocation %s: invalid payload: %v", requestID, err)
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	ctx := logx.WithRequestID(r.Context(), requestID)
	result := s.runtime.HandleInvocation(ctx, payload)
	s.writeJSON(w, result)
}

// handlePing implements GET /ping.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, map[string]string{"status": "Healthy"})
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Ledger  *LedgerStats `json:"ledger,omitempty"`
	Version string       `json:"version"`
	Agent   agent.Stats  `json:"agent"`
}

// LedgerStats summarizes the invocation ledger.
type LedgerStats struct {
	Counts []persistence.StatusCount `json:"counts"`
	Recent []*persistence.Invocation `json:"recent"`
}

// handleStats implements GET /stats. ?limit=N bounds the recent invocations listed.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	resp := StatsResponse{
		Version: version.Version,
		Agent:   s.runtime.Stats(),
	}

	if store := s.runtime.Ledger(); store != nil {
		counts, err := store.CountByStatus(r.Context())
		if err != nil {
			s.logger.Error("Failed to read ledger counts: %v", err)
			http.Error(w, "Failed to read ledger", http.StatusInternalServerError)
			return
		}
		recent, err := store.Recent(r.Context(), limit)
		if err != nil {
			s.logger.Error("Failed to read recent invocations: %v", err)
			http.Error(w, "Failed to read ledger", http.StatusInternalServerError)
			return
		}
		resp.Ledger = &LedgerStats{Counts: counts, Recent: recent}
	}

	s.writeJSON(w, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
