package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/storagepod/storagepod/internal/fsops"
)

// Scan walks the storage root and seeds the catalog with a record for every
// entry found. Unreadable entries are skipped and counted; the walk itself
// only fails on root-level errors. Intended for startup, after which the
// operator's write-through keeps the catalog current.
func Scan(ctx context.Context, sandbox fsops.Sandbox, store Store, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	// fastwalk invokes the callback from multiple workers.
	var mu sync.Mutex
	var indexed, skipped int
	conf := fastwalk.Config{Follow: false}

	err := fastwalk.Walk(&conf, sandbox.Root, func(p string, d os.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		bump := func(n *int) {
			mu.Lock()
			*n++
			mu.Unlock()
		}
		if err != nil {
			bump(&skipped)
			return nil
		}
		if p == sandbox.Root {
			return nil
		}

		rec, err := sandbox.Describe(filepath.Dir(p), d.Name())
		if err != nil {
			bump(&skipped)
			return nil
		}
		if err := store.Put(ctx, rec); err != nil {
			bump(&skipped)
			logger.Warn("catalog seed write failed", zap.String("path", rec.Path), zap.Error(err))
			return nil
		}
		bump(&indexed)
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("catalog scan complete", zap.Int("indexed", indexed), zap.Int("skipped", skipped))
	return nil
}
