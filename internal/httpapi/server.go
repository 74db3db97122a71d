// Package httpapi exposes the daemon's liveness surface: a single
// GET /healthz endpoint serializing the supervisor's health snapshot as
// JSON, for a container orchestrator's probe. Grounded on the teacher's
// internal/server/server.go, trimmed to the one route this daemon needs —
// no order/position/strategy handlers, no WebSocket hub, no auth (the
// daemon has no credentialed write surface to protect).
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pmacquire/daemon/internal/supervisor"
)

// HealthSource is the subset of *supervisor.Daemon the server needs.
type HealthSource interface {
	Health() supervisor.Health
}

// Config holds the HTTP server's own settings.
type Config struct {
	Port int
}

// Server is the daemon's liveness HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds a Server with /healthz registered against source.
func NewServer(cfg Config, source HealthSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler(source, logger))

	var h http.Handler = mux
	h = loggingMiddleware(logger)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start begins listening. It blocks until the server errors or is shut
// down, returning nil on a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("httpapi: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("httpapi: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return nil
}
