package sync

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"buildcore/internal/blob"
	"buildcore/internal/core"
	"buildcore/internal/infra/persistence/postgres"
	"buildcore/internal/infra/persistence/sqlite"
)

// Environment variables:
//   BUILDCORE_CACHE_PATH=<file> (default buildcore.db)
//   BUILDCORE_REMOTE_DSN=<postgres dsn> (optional; empty disables the remote)
//   BUILDCORE_SAVE_DEBOUNCE_MS=<ms> (default 2000)
//   BUILDCORE_ARCHIVE=true|false (default false; see blob package for driver vars)

// OpenFromEnv builds a synchronizer for svc from the process environment.
// The returned cleanup closes the cache handle; call it after Close on the
// synchronizer.
func OpenFromEnv(ctx context.Context, svc *core.Service, projectID string, logger *zap.Logger) (*Synchronizer, func() error, error) {
	cache, err := sqlite.NewCache(os.Getenv("BUILDCORE_CACHE_PATH"))
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	opts := []Option{WithLogger(logger)}
	if raw := os.Getenv("BUILDCORE_SAVE_DEBOUNCE_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			opts = append(opts, WithDebounce(time.Duration(ms)*time.Millisecond))
		}
	}
	if dsn := os.Getenv("BUILDCORE_REMOTE_DSN"); dsn != "" {
		remote, err := postgres.NewStore(dsn)
		if err != nil {
			_ = cache.Close()
			return nil, nil, fmt.Errorf("open remote store: %w", err)
		}
		opts = append(opts, WithRemote(remote))
	}
	if raw := os.Getenv("BUILDCORE_ARCHIVE"); raw == "true" || raw == "1" {
		archive, err := blob.OpenFromEnv(ctx)
		if err != nil {
			_ = cache.Close()
			return nil, nil, fmt.Errorf("open archive store: %w", err)
		}
		opts = append(opts, WithArchive(archive))
	}
	return New(svc, cache, projectID, opts...), cache.Close, nil
}
