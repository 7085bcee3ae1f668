// Package server exposes the task API over HTTP: task creation, task
// lookup, per-task SSE streams, and worker status.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"boltbridge/internal/config"
	"boltbridge/internal/logging"
	"boltbridge/internal/store"
	"boltbridge/internal/stream"
)

// TaskRunner drives a task to a terminal state. *orchestrator.Orchestrator
// satisfies it.
type TaskRunner interface {
	Run(ctx context.Context, task *store.Task)
}

// Server is the boltbridge HTTP API.
type Server struct {
	cfg    config.ServerConfig
	store  store.Store
	hub    *stream.Hub
	runner TaskRunner
	stats  *WorkerStats
	logger *logging.Logger

	// runCtx is the lifetime of background task runs. Runs outlive the
	// request that created them and end only at a terminal state or
	// process exit.
	runCtx context.Context
}

// New creates a Server.
func New(cfg config.ServerConfig, st store.Store, hub *stream.Hub, runner TaskRunner, stats *WorkerStats, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if stats == nil {
		stats = NewWorkerStats(nil)
	}
	return &Server{
		cfg:    cfg,
		store:  st,
		hub:    hub,
		runner: runner,
		stats:  stats,
		logger: logger.WithComponent("server"),
		runCtx: context.Background(),
	}
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("GET /api/tasks/{id}/stream", s.handleStreamTask)
	mux.HandleFunc("GET /status", s.handleStatus)
	return otelhttp.NewHandler(mux, "boltbridge-api")
}

// ListenAndServe runs the API until ctx is canceled, then shuts down
// gracefully within the configured budget.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
	defer cancel()

	s.logger.Info("shutting down api server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
