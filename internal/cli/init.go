// Package cli provides common initialization utilities shared by
// cmd/several, cmd/severalctl and cmd/several-notifier.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"several/internal/backend"
	"several/internal/config"
	"several/internal/log"
	"several/internal/storage"
)

// LoadEnvFile loads .env files for local development. A missing file is
// not an error; the process environment always wins.
func LoadEnvFile(paths ...string) {
	_ = godotenv.Load(paths...)
}

// SetupLogger builds the process logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	lc.Format = cfg.LogFormat
	lc.Component = component
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration, sets up logging and
// validates the result. The process exits when validation fails.
func LoadAndValidateConfig(component string) (*config.Config, *log.Logger) {
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.NewFields().
			WithError(err, log.ErrorTypeConfiguration).ToSlice()...)
		os.Exit(1)
	}
	return cfg, logger
}

// OpenStore creates the configured storage backend or exits the process.
func OpenStore(ctx context.Context, logger *log.Logger, cfg *config.Config) (storage.Store, backend.CleanupFunc) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid storage configuration", log.FieldError, err)
		os.Exit(1)
	}
	store, cleanup, err := backend.NewFactory(logger.WithComponent(log.ComponentStorage).Logger).Open(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize storage", log.NewFields().
			WithComponent(log.ComponentStorage).
			WithError(err, log.ErrorTypeDatabase).ToSlice()...)
		os.Exit(1)
	}
	return store, cleanup
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// The returned context is cancelled once cleanup has run, and done is
// closed when shutdown is complete or timeout has elapsed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		cancel()
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
