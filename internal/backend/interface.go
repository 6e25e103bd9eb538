package backend

import (
	"context"
	"fmt"
	"time"

	"cagnotte/internal/cache"
	"cagnotte/internal/config"
	"cagnotte/internal/session"
)

// Store is a session store whose idle entries can be swept.
type Store interface {
	session.Store
	cache.Cleaner
}

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the store and optional cleanup function
type BackendResult struct {
	Store   Store
	Cleanup CleanupFunc
	// Ping reports backend health; nil means always healthy.
	Ping func(ctx context.Context) error
}

// Factory creates session stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error)
}

type Config struct {
	Type         BackendType
	SQLiteDBPath string
	SessionTTL   time.Duration
	SessionMax   int
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		SessionTTL:   appConfig.SessionTTL,
		SessionMax:   appConfig.SessionMax,
	}, nil
}
