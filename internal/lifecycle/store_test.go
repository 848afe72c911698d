package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreDefaultsToUnknown(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	state, since, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state != StateUnknown {
		t.Fatalf("fresh store state = %s, want %s", state, StateUnknown)
	}
	if since.IsZero() {
		t.Fatalf("fresh store since must not be zero")
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	entered := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	if err := store.Save(ctx, StateOnline, entered); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	state, since, err := reopened.Load(ctx)
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if state != StateOnline {
		t.Fatalf("state after reopen = %s, want %s", state, StateOnline)
	}
	if !since.Equal(entered) {
		t.Fatalf("since after reopen = %s, want %s", since, entered)
	}
}

func TestStoreRecordWakeUpsert(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	at := time.Now().UTC()

	if err := store.RecordWake(ctx, "req-1", at, 3, false); err != nil {
		t.Fatalf("record wake: %v", err)
	}
	// Same request updated with the final outcome.
	if err := store.RecordWake(ctx, "req-1", at, 7, true); err != nil {
		t.Fatalf("update wake: %v", err)
	}

	var attempts, succeeded int
	err = store.db.QueryRowContext(ctx,
		`SELECT attempts, succeeded FROM wake_requests WHERE id = 'req-1'`).
		Scan(&attempts, &succeeded)
	if err != nil {
		t.Fatalf("query wake row: %v", err)
	}
	if attempts != 7 || succeeded != 1 {
		t.Fatalf("wake row = (%d, %d), want (7, 1)", attempts, succeeded)
	}
}
