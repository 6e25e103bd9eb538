package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"cagnotte/internal/core"
	"cagnotte/internal/session"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("c%d", s.n)
}

func openTestStore(t *testing.T, path string) *SessionStore {
	t.Helper()
	s, err := OpenSessionStore(context.Background(), path, time.Hour, &seqIDs{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionStoreRoundTrip(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "sessions.db"))
	ctx := context.Background()

	l := core.NewLedger(&seqIDs{})
	if err := s.Save(ctx, "sess", l); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	got, err := s.Load(ctx, "sess")
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if got.Phase() != core.PhaseConfiguring {
		t.Fatalf("phase = %v", got.Phase())
	}

	if err := l.Configure(core.Money{Cents: 10000}); err != nil {
		t.Fatal(err)
	}
	for _, a := range []string{"10", "20.50", "5"} {
		if _, err := l.Add(core.ContributionForm{Surname: "Dupont", GivenName: "Jean", Phone: "0612345678", Amount: a}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := s.Save(ctx, "sess", l); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = s.Load(ctx, "sess")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := l.Contributions()
	have := got.Contributions()
	if len(have) != len(want) {
		t.Fatalf("loaded %d contributions, want %d", len(have), len(want))
	}
	for i := range want {
		if have[i] != want[i] {
			t.Fatalf("contribution %d = %+v, want %+v", i, have[i], want[i])
		}
	}
	if got.Remaining() != l.Remaining() || got.Phase() != core.PhaseCollecting {
		t.Fatalf("remaining=%s phase=%v", got.Remaining(), got.Phase())
	}

	// Deletions are reflected on the next save.
	if !l.Delete(want[1].ID, core.ConfirmFunc(func(string) bool { return true })) {
		t.Fatal("delete failed")
	}
	if err := s.Save(ctx, "sess", l); err != nil {
		t.Fatalf("save after delete: %v", err)
	}
	got, _ = s.Load(ctx, "sess")
	if got.Len() != 2 || got.Remaining().Cents != 8500 {
		t.Fatalf("len=%d remaining=%d", got.Len(), got.Remaining().Cents)
	}
}

func TestSessionStoreDelete(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "sessions.db"))
	ctx := context.Background()
	if err := s.Save(ctx, "a", core.NewLedger(nil)); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Load(ctx, "a"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionStorePurgedOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	first, err := OpenSessionStore(ctx, path, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Save(ctx, "old", core.NewLedger(nil)); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second := openTestStore(t, path)
	if _, err := second.Load(ctx, "old"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("session survived a restart: %v", err)
	}
}

func TestSessionStoreCleanExpired(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "sessions.db"))
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	_ = s.Save(ctx, "stale", core.NewLedger(nil))
	now = now.Add(30 * time.Minute)
	_ = s.Save(ctx, "fresh", core.NewLedger(nil))
	now = now.Add(45 * time.Minute)

	if _, err := s.Load(ctx, "stale"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expired session still loadable: %v", err)
	}
	if n := s.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired removed %d, want 1", n)
	}
	if _, err := s.Load(ctx, "fresh"); err != nil {
		t.Fatalf("fresh session lost: %v", err)
	}
}

func TestSessionStoreWithManager(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "sessions.db"))
	m := session.NewManager(s, nil)
	ctx := context.Background()

	id, err := m.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	err = m.Do(ctx, id, func(l *core.Ledger) error { return l.Configure(core.Money{Cents: 5000}) })
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	err = m.Do(ctx, id, func(l *core.Ledger) error {
		_, err := l.Add(core.ContributionForm{Surname: "A", GivenName: "B", Phone: "1", Amount: "60"})
		return err
	})
	if !errors.Is(err, core.ErrExceedsRemaining) {
		t.Fatalf("expected ErrExceedsRemaining, got %v", err)
	}
	_ = m.View(ctx, id, func(l *core.Ledger) error {
		if l.Len() != 0 || l.Remaining().Cents != 5000 {
			t.Errorf("rejected add was persisted")
		}
		return nil
	})
}
