package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cagnotte/internal/cache"
	"cagnotte/internal/core"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store keeps one ledger per session id.
type Store interface {
	Load(ctx context.Context, id string) (*core.Ledger, error)
	Save(ctx context.Context, id string, l *core.Ledger) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps ledgers in a bounded LRU cache. Sessions idle for longer
// than the TTL, or pushed out by capacity, are gone.
type MemoryStore struct {
	ledgers *cache.LRUCache[*core.Ledger]
}

// NewMemoryStore creates a store holding at most maxSessions ledgers.
func NewMemoryStore(maxSessions int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ledgers: cache.NewLRUCache(maxSessions, ttl,
			cache.WithEvictCallback(logEviction)),
	}
}

// logEviction reports a session dropped for capacity at info level: its
// owner will get a conflict on the next request.
func logEviction(id string, l *core.Ledger, reason cache.EvictReason) {
	level := slog.LevelDebug
	if reason == cache.EvictCapacity {
		level = slog.LevelInfo
	}
	slog.Log(context.Background(), level, "Session evicted",
		"session_id", id,
		"reason", reason.String(),
		"contributions", l.Len())
}

func (s *MemoryStore) Load(_ context.Context, id string) (*core.Ledger, error) {
	l, ok := s.ledgers.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, l *core.Ledger) error {
	s.ledgers.Set(id, l)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.ledgers.Delete(id)
	return nil
}

// CleanExpired implements cache.Cleaner.
func (s *MemoryStore) CleanExpired() int { return s.ledgers.CleanExpired() }

func (s *MemoryStore) Len() int { return s.ledgers.Size() }
