// Package bootstrap wires configuration into the stores and clients shared by
// the worker and the CLI.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/glizzus/mustard/internal/config"
	"github.com/glizzus/mustard/internal/datalayer"
	"github.com/glizzus/mustard/internal/repository"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// LoadEnv reads .env if there is one.
func LoadEnv() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
			return nil
		}
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// Logger builds the process logger from the environment and installs it as
// the slog default.
func Logger() (*slog.Logger, io.Closer, error) {
	cfg, err := config.NewLoggingConfigFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load logging config: %w", err)
	}
	logger, closer, err := config.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

// OpenStore connects to the configured backend and applies its migrations.
// The returned func releases the connection.
func OpenStore(ctx context.Context, backend string) (repository.Store, func(), error) {
	switch backend {
	case BackendPostgres:
		cfg, err := config.NewPostgresConfigFromEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load postgres config: %w", err)
		}
		pool, err := datalayer.NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := datalayer.MigratePostgres(pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewPostgresStore(pool), pool.Close, nil

	case BackendSQLite:
		cfg, err := config.NewSQLiteConfigFromEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load sqlite config: %w", err)
		}
		db, err := datalayer.OpenSQLite(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := datalayer.MigrateSQLite(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				slog.Error("failed to close sqlite", "error", err)
			}
		}
		return repository.NewSQLiteStore(db), closeDB, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}
