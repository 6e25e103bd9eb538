package backend

import (
	"context"
	"fmt"
	"log/slog"

	"cagnotte/internal/core"
	"cagnotte/internal/session"
	"cagnotte/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	ids    core.IDGenerator
}

// NewFactory creates a factory. ids is handed to stores that rebuild ledgers; nil uses UUIDs.
func NewFactory(logger *slog.Logger, ids core.IDGenerator) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger, ids: ids}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	if cfg.SessionMax <= 0 {
		return nil, fmt.Errorf("session max must be positive, got %d", cfg.SessionMax)
	}
	switch cfg.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, cfg)
	case MemoryBackend:
		return f.createMemoryBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	if cfg.SQLiteDBPath == "" {
		return nil, fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	store, err := storage.OpenSessionStore(ctx, cfg.SQLiteDBPath, cfg.SessionTTL, f.ids)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite session store: %w", err)
	}

	f.logger.Info("Initialized SQLite session store",
		"db_path", cfg.SQLiteDBPath,
		"session_ttl", cfg.SessionTTL)

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
		Ping:    store.Ping,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(cfg Config) (*BackendResult, error) {
	store := session.NewMemoryStore(cfg.SessionMax, cfg.SessionTTL)

	f.logger.Info("Initialized memory session store",
		"max_sessions", cfg.SessionMax,
		"session_ttl", cfg.SessionTTL)

	return &BackendResult{Store: store}, nil
}
