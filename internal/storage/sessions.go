package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cagnotte/internal/core"
	"cagnotte/internal/session"

	_ "modernc.org/sqlite"
)

// SessionStore keeps session ledgers in SQLite. The database is emptied
// when the store opens, so nothing outlives the process.
type SessionStore struct {
	db  *sql.DB
	ids core.IDGenerator
	ttl time.Duration
	now func() time.Time
}

var _ session.Store = (*SessionStore)(nil)

// OpenSessionStore opens dbPath, applies migrations and purges leftover
// sessions. Rows idle for longer than ttl are removed by CleanExpired.
func OpenSessionStore(ctx context.Context, dbPath string, ttl time.Duration, ids core.IDGenerator) (*SessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer avoids SQLITE_BUSY between concurrent sessions.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	if ids == nil {
		ids = core.UUIDGenerator{}
	}
	s := &SessionStore{db: db, ids: ids, ttl: ttl, now: time.Now}
	if err := s.purge(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SessionStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SessionStore) purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM contributions`); err != nil {
		return fmt.Errorf("purge contributions: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "Purged sessions left by a previous run", "count", n)
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context, id string) (*core.Ledger, error) {
	var (
		phaseText string
		budget    int64
		updated   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT phase, initial_budget_cents, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&phaseText, &budget, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s.ttl > 0 && s.now().Sub(time.Unix(updated, 0)) > s.ttl {
		return nil, session.ErrNotFound
	}

	phase, err := core.ParsePhase(phaseText)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, surname, given_name, phone, amount_cents
		   FROM contributions WHERE session_id = ? ORDER BY seq DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("load contributions: %w", err)
	}
	defer rows.Close()

	var contributions []core.Contribution
	for rows.Next() {
		var c core.Contribution
		if err := rows.Scan(&c.ID, &c.Surname, &c.GivenName, &c.Phone, &c.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}

	return core.RestoreLedger(s.ids, phase, core.Money{Cents: budget}, contributions)
}

// Save replaces the stored state of the session with l.
func (s *SessionStore) Save(ctx context.Context, id string, l *core.Ledger) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, phase, initial_budget_cents, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET phase = excluded.phase,
		     initial_budget_cents = excluded.initial_budget_cents,
		     updated_at = excluded.updated_at`,
		id, l.Phase().String(), l.InitialBudget().Cents, s.now().Unix())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM contributions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("clear contributions: %w", err)
	}

	contributions := l.Contributions()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO contributions (id, session_id, seq, surname, given_name, phone, amount_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	// seq grows with age in reverse: the oldest entry is 1.
	for i, c := range contributions {
		seq := len(contributions) - i
		if _, err := stmt.ExecContext(ctx, c.ID, id, seq, c.Surname, c.GivenName, c.Phone, c.Amount.Cents); err != nil {
			return fmt.Errorf("insert contribution %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contributions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete contributions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return tx.Commit()
}

// CleanExpired removes sessions idle for longer than the TTL. It implements
// cache.Cleaner so the cache manager can drive it.
func (s *SessionStore) CleanExpired() int {
	if s.ttl <= 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cutoff := s.now().Add(-s.ttl).Unix()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM contributions WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`, cutoff); err != nil {
		slog.Error("Failed to clean expired contributions", "error", err)
		return 0
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		slog.Error("Failed to clean expired sessions", "error", err)
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}
