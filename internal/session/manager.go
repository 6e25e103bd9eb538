package session

import (
	"context"
	"fmt"
	"sync"

	"cagnotte/internal/core"
)

// Manager owns the session lifecycle and serializes work on each ledger.
type Manager struct {
	store Store
	ids   core.IDGenerator

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager wraps store. ids issues session ids and contribution ids; nil uses UUIDs.
func NewManager(store Store, ids core.IDGenerator) *Manager {
	if ids == nil {
		ids = core.UUIDGenerator{}
	}
	return &Manager{store: store, ids: ids, locks: make(map[string]*sessionLock)}
}

// Start creates a session holding an empty ledger in the configuring phase.
func (m *Manager) Start(ctx context.Context) (string, error) {
	id := m.ids.NewID()
	if err := m.store.Save(ctx, id, core.NewLedger(m.ids)); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// Do loads the session's ledger, runs fn and saves the ledger when fn
// succeeds. Calls for the same id never overlap.
func (m *Manager) Do(ctx context.Context, id string, fn func(*core.Ledger) error) error {
	return m.with(ctx, id, true, fn)
}

// View runs fn on the ledger without saving it back.
func (m *Manager) View(ctx context.Context, id string, fn func(*core.Ledger) error) error {
	return m.with(ctx, id, false, fn)
}

// End discards the session. Unknown ids are ignored.
func (m *Manager) End(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	unlock := m.lock(id)
	defer unlock()
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func (m *Manager) with(ctx context.Context, id string, save bool, fn func(*core.Ledger) error) error {
	if id == "" {
		return ErrNotFound
	}
	unlock := m.lock(id)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	l, err := m.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(l); err != nil {
		return err
	}
	if !save {
		return nil
	}
	if err := m.store.Save(ctx, id, l); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *Manager) lock(id string) func() {
	m.mu.Lock()
	sl, ok := m.locks[id]
	if !ok {
		sl = &sessionLock{}
		m.locks[id] = sl
	}
	sl.refs++
	m.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		m.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}
