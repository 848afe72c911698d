package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS lifecycle_state (
    id    INTEGER PRIMARY KEY CHECK (id = 1),
    state TEXT NOT NULL,
    since TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS wake_requests (
    id           TEXT PRIMARY KEY,
    requested_at TEXT NOT NULL,
    attempts     INTEGER NOT NULL DEFAULT 0,
    succeeded    INTEGER NOT NULL DEFAULT 0
);
`

// Store persists the lifecycle state so it survives a process restart.
// It also keeps an audit trail of wake requests.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the sentinel-local state database.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// A single writer keeps the short critical sections in order.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply state schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Load returns the persisted state and the time it was entered. A fresh
// database yields StateUnknown with the current time.
func (s *Store) Load(ctx context.Context) (State, time.Time, error) {
	var state string
	var since string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, since FROM lifecycle_state WHERE id = 1`).Scan(&state, &since)
	if errors.Is(err, sql.ErrNoRows) {
		return StateUnknown, time.Now().UTC(), nil
	}
	if err != nil {
		return StateUnknown, time.Time{}, fmt.Errorf("load lifecycle state: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, since)
	if err != nil {
		// Corrupt timestamp: keep the state, reset the dwell clock.
		ts = time.Now().UTC()
	}
	return State(state), ts, nil
}

// Save records the current state and its entry time.
func (s *Store) Save(ctx context.Context, state State, since time.Time) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO lifecycle_state (id, state, since) VALUES (1, ?, ?)
        ON CONFLICT(id) DO UPDATE SET state = excluded.state, since = excluded.since`,
		string(state), since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save lifecycle state: %w", err)
	}
	return nil
}

// RecordWake writes one wake-request audit row.
func (s *Store) RecordWake(ctx context.Context, id string, requestedAt time.Time, attempts int, succeeded bool) error {
	ok := 0
	if succeeded {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO wake_requests (id, requested_at, attempts, succeeded) VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET attempts = excluded.attempts, succeeded = excluded.succeeded`,
		id, requestedAt.UTC().Format(time.RFC3339Nano), attempts, ok)
	if err != nil {
		return fmt.Errorf("record wake request: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
