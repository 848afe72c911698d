package handshake

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshots stores the opaque metadata document the host hands off right
// before shutting down. The latest snapshot is kept verbatim and overwritten
// wholesale on every going-offline notification; it is never merged.
type Snapshots struct {
	path string
}

// NewSnapshots binds the snapshot file location.
func NewSnapshots(dir string) *Snapshots {
	return &Snapshots{path: filepath.Join(dir, "snapshot.json")}
}

// Store replaces the stored snapshot. The write goes through a temp file
// and a rename so a crash never leaves a half-written snapshot behind.
func (s *Snapshots) Store(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Latest returns the stored snapshot and its modification time. ok is false
// when no snapshot exists yet.
func (s *Snapshots) Latest() (data []byte, storedAt time.Time, ok bool, err error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("stat snapshot: %w", err)
	}

	data, err = os.ReadFile(s.path)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	return data, info.ModTime(), true, nil
}
