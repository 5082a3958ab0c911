// Package main provides the entry point for the triage development backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/triage-go/internal/config"
	"github.com/raphaelgruber/triage-go/internal/metrics"
	"github.com/raphaelgruber/triage-go/internal/server"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel, false)
	defer cleanup()

	logger.Info("triage backend starting",
		"version", version,
		"addr", cfg.ListenAddr,
		"llm_provider", cfg.LLMProvider,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	collector := metrics.NewCollector()

	srv, err := server.New(cfg, collector, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Run server (blocks until shutdown)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	snap := collector.Snapshot()
	logger.Info("runtime metrics",
		"uptime_seconds", snap.UptimeSeconds,
		"llm_streams", snap.LLMStream,
	)
	logger.Info("shutdown complete")
}
