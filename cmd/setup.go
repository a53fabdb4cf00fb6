package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/scorecast/scorecast/internal/config"
	"github.com/scorecast/scorecast/internal/docstore"
	"github.com/scorecast/scorecast/internal/lock"
	"github.com/scorecast/scorecast/internal/logging"
	"github.com/scorecast/scorecast/internal/sqlstore"
)

// loadConfig reads the .env file and the config. Without --config, a
// missing default file falls back to the built-in local SQLite config.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}

	path := cfgFile
	if path == "" {
		path = config.ExpandHome(config.DefaultPath)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.Setup(level, cfg.Logging.Directory)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func openRelational(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sqlstore.Store, error) {
	return sqlstore.Open(ctx, sqlstore.Options{
		Driver:       cfg.Relational.Driver,
		DSN:          cfg.RelationalDSN(),
		MaxOpenConns: cfg.Relational.MaxOpenConns,
		Logger:       logger,
	})
}

// openDocument returns nil when the document store is disabled.
func openDocument(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*docstore.Store, error) {
	if !cfg.Document.Enabled {
		return nil, nil
	}
	return docstore.Open(ctx, cfg.Document.ConnectionString, cfg.Document.Database, logger)
}

// withLock runs fn while holding the process lock.
func withLock(operation string, fn func() error) error {
	if err := lock.Acquire("", operation); err != nil {
		return err
	}
	defer func() { _ = lock.Release("") }()
	return fn()
}
