// Package cli provides common CLI initialization utilities shared by
// cmd/deplacements and cmd/recap-worker.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"deplacements/internal/config"
	applog "deplacements/internal/log"
	"deplacements/internal/sheets"
	"deplacements/internal/sheets/google"
	"deplacements/internal/sheets/memory"
	"deplacements/internal/storage"
)

// SetupLogger initializes structured logging at the given level for a
// component. Returns the configured logger and sets it as the default logger.
// An unknown level falls back to info.
func SetupLogger(level, component string) *applog.Logger {
	return setupLogger(os.Stdout, level, component)
}

func setupLogger(out io.Writer, level, component string) *applog.Logger {
	lvl, err := config.ParseLogLevel(level)
	logger := applog.New(applog.Config{
		Level:     lvl,
		Component: component,
		Output:    out,
	})
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", "level", level)
	}
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the SQLite repository and applies migrations.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.Repository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	if version, err := storage.SchemaVersion(dbPath); err != nil {
		logger.Warn("Cannot read schema version", "error", err, "path", dbPath)
	} else {
		logger.Info("SQLite repository ready", "path", dbPath, "schema_version", version)
	}
	return repo
}

// NewRecapWriter returns the recap output selected by RECAP_BACKEND.
func NewRecapWriter(ctx context.Context, cfg *config.Config) (sheets.RecapWriter, error) {
	switch cfg.RecapBackend {
	case config.RecapBackendSheets:
		client, err := google.New(ctx, cfg.GoogleSpreadsheetID, cfg.RecapSheetName)
		if err != nil {
			return nil, fmt.Errorf("google sheets recap writer: %w", err)
		}
		return client, nil
	case config.RecapBackendMemory, "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown recap backend %q", cfg.RecapBackend)
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals or when parent
// is done, and a channel closed once cleanup has run within timeout.
func GracefulShutdown(parent context.Context, logger *applog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			logger.Info("Shutting down", "reason", context.Cause(ctx))
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

// ExitOnError logs err and exits with status 1 when err is non-nil.
func ExitOnError(logger *applog.Logger, msg string, err error) {
	if err != nil {
		logger.Error(msg, "error", err)
		os.Exit(1)
	}
}
