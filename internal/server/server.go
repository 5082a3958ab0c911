// Package server implements the development triage backend: a streaming
// chat endpoint backed by an LLM, with per-client rate limiting.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/triage-go/internal/config"
	"github.com/raphaelgruber/triage-go/internal/metrics"
)

// Server wraps the HTTP server with lifecycle management.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a backend server from configuration.
func New(cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	model, err := NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}

	handler := NewHandler(model, NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow), collector, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("POST /chat/stream", handler.ChatStream)

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: LoggingMiddleware(logger)(mux),

			// No write timeout: responses are open-ended streams.
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}, nil
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting triage backend", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down triage backend")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
