package inbox

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// Transport moves one queued file to host storage. Send must only return
// nil once the receiving side acknowledged the file; the receiver tolerates
// re-receiving a file it already stored.
type Transport interface {
	Send(ctx context.Context, localPath, relPath string) error
}

// Relocator drains the sentinel-local inbox into host storage. A file is
// deleted only after its own transfer is acknowledged, so a crash mid-run
// leaves the remaining items in place for the next invocation
// (at-least-once). Individual transfer failures are logged and skipped;
// they never abort the whole relocation.
type Relocator struct {
	logger    *zap.Logger
	dir       string
	transport Transport
}

// NewRelocator binds the inbox directory and the transport.
func NewRelocator(logger *zap.Logger, dir string, transport Transport) *Relocator {
	return &Relocator{logger: logger, dir: dir, transport: transport}
}

// Flush relocates every queued file, oldest first, and returns how many
// were transferred and removed.
func (r *Relocator) Flush(ctx context.Context) (int, error) {
	items, err := r.pending()
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	r.logger.Info("Inbox flush started", zap.Int("queued", len(items)))

	relocated := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return relocated, ctx.Err()
		}

		rel, err := filepath.Rel(r.dir, item)
		if err != nil {
			rel = filepath.Base(item)
		}

		if err := r.transport.Send(ctx, item, rel); err != nil {
			r.logger.Warn("Inbox transfer failed, keeping file for retry",
				zap.String("file", rel),
				zap.Error(err))
			continue
		}

		if err := os.Remove(item); err != nil {
			// The file was delivered; a leftover copy only means one more
			// idempotent re-send next time.
			r.logger.Warn("Failed to remove relocated file",
				zap.String("file", rel),
				zap.Error(err))
			continue
		}
		relocated++
	}

	r.logger.Info("Inbox flush finished",
		zap.Int("relocated", relocated),
		zap.Int("queued", len(items)))
	return relocated, nil
}

// Pending returns the number of queued files and their total size.
func (r *Relocator) Pending() (count int, bytes int64, err error) {
	items, err := r.pending()
	if err != nil {
		return 0, 0, err
	}
	for _, item := range items {
		if info, err := os.Stat(item); err == nil {
			bytes += info.Size()
		}
	}
	return len(items), bytes, nil
}

// pending lists queued files oldest-first.
func (r *Relocator) pending() ([]string, error) {
	var files []string
	modTimes := map[string]int64{}

	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == r.dir {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, path)
		modTimes[path] = info.ModTime().UnixNano()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan inbox: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return modTimes[files[i]] < modTimes[files[j]]
	})
	return files, nil
}
