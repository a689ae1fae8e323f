// Package main is the entry point for the Wheeler IBKR sync service.
// The service reads held positions from an IBKR Client Portal gateway and reconciles them
// into the SQLite database shared with the Wheeler options-tracking application.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/algo-dude/wheeler/internal/config"
	"github.com/algo-dude/wheeler/internal/di"
	"github.com/algo-dude/wheeler/internal/server"
	"github.com/algo-dude/wheeler/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// main orchestrates startup:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging
// 3. Wires all dependencies via the DI container (database, repositories, services, jobs)
// 4. Starts the HTTP server and the job scheduler
// 5. Waits for a shutdown signal, closes the broker session and shuts down gracefully
func main() {
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
		Level:   cfg.LogLevel,
		Pretty:  cfg.DevMode,
		Service: "wheeler-ibkr",
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("version", version).
		Str("gateway_host", cfg.TWSHost).
		Int("gateway_port", cfg.TWSPort).
		Str("database", cfg.DatabasePath).
		Msg("Starting Wheeler IBKR service")

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// Closing the database writes the final WAL checkpoint
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Version:   version,
		Container: container,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	container.Scheduler.Start()

	log.Info().Int("port", cfg.Port).Msg("Service ready")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Waits for a scheduled sync pass to finish
	container.Scheduler.Stop()

	// Graceful shutdown
	// In-flight requests (including a manual sync) get up to 10 seconds to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.SyncService.Disconnect()
	log.Info().Msg("Broker session closed")

	log.Info().Msg("Server stopped")
}
