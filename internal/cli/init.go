// Package cli provides common CLI initialization utilities shared by
// cmd/cassa, cmd/cassa-worker and cmd/cassactl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cassa/internal/config"
	"cassa/internal/core"
	"cassa/internal/log"
	"cassa/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	lc.Component = component
	if cfg.LogFormat == "json" {
		lc.Format = "json"
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration validation failed: %v\n", err)
		os.Exit(1)
	}
	core.SetCurrencyGlyph(cfg.CurrencyGlyph)
	return cfg
}

// LoadProfile reads the household profile or exits.
func LoadProfile(logger *log.Logger, cfg *config.Config) *config.Profile {
	p, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		logger.Error("Failed to load household profile", log.FieldError, err, "path", cfg.ProfilePath)
		os.Exit(1)
	}
	return p
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)
	}()
	return ctx, stop
}
