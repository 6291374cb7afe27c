// Package http exposes the geocode batch's operational endpoints: liveness
// with pipeline throughput, readiness gated on the first fully processed
// record, and Prometheus metrics. The server is optional: it only runs when a
// metrics address is configured, since batch invocations usually need no HTTP
// surface.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Pipeline is the status surface the endpoints report on. The geocoding
// pipeline implements it.
type Pipeline interface {
	// CheckReadiness fails until at least one record has fully traversed
	// the stages, meaning every dictionary reached so far is built.
	CheckReadiness(ctx context.Context) error
	// Records is the number of records emitted so far.
	Records() int64
	// Running reports whether a batch run is in progress.
	Running() bool
}

// Server exposes health, readiness, and metrics endpoints for a running
// geocode batch.
type Server struct {
	httpServer *http.Server
	pipe       Pipeline
	logger     *slog.Logger
}

type healthPayload struct {
	Status  string `json:"status"`
	Running bool   `json:"pipeline_running"`
	Records int64  `json:"records_emitted"`
}

type readyPayload struct {
	Status  string `json:"status"`
	Records int64  `json:"records_emitted"`
	Error   string `json:"error,omitempty"`
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics
// routes over the given pipeline.
func NewServer(addr string, pipe Pipeline, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		pipe:   pipe,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthPayload{
		Status:  "healthy",
		Running: s.pipe.Running(),
		Records: s.pipe.Records(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	payload := readyPayload{Status: "ready", Records: s.pipe.Records()}
	status := http.StatusOK
	if err := s.pipe.CheckReadiness(ctx); err != nil {
		payload.Status = "not ready"
		payload.Error = err.Error()
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, payload)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write status response", "error", err)
	}
}
