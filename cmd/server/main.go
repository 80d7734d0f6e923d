// Package main is the entry point for the Sharpe optimizer service.
// The service computes maximum Sharpe ratio portfolio weights on request or
// on a schedule, stores every run and streams results to connected clients.
//
// Startup order:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging
// 3. Wires all dependencies via the DI container (databases, services, jobs)
// 4. Starts client messaging and the scheduler
// 5. Starts the HTTP server
// 6. Waits for a shutdown signal and shuts down gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/sharpe/internal/config"
	"github.com/aristath/sharpe/internal/di"
	"github.com/aristath/sharpe/internal/messaging"
	"github.com/aristath/sharpe/internal/server"
	"github.com/aristath/sharpe/pkg/logger"
	"github.com/google/uuid"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("solver", cfg.Optimizer.Solver).
		Msg("Starting Sharpe optimizer")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// Client messaging: one session per process
	hostname, _ := os.Hostname()
	container.Messaging.SetAuthentication(&messaging.JobPacket{
		JobID:     uuid.NewString(),
		Owner:     hostname,
		Timestamp: time.Now(),
	})
	container.Messaging.Start()

	container.Scheduler.Start()
	if jobs.OptimizeFile != nil {
		log.Info().Str("file", cfg.Schedule.ReturnsFile).Msg("Scheduled optimization active")
	}

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Disconnect stream clients first so Shutdown does not wait on them
	container.Messaging.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stops the scheduler (waiting for running jobs) and closes the databases
	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close databases")
	}

	log.Info().Msg("Server stopped")
}
