// Package cache implements the read-through user cache.
//
// A Store is the raw key/value capability (process memory or Redis). UserCache
// layers typed snapshots, per-kind TTLs and invalidation on top of it. The
// cache is best-effort: store failures are logged and counted, then treated as
// a miss on reads and ignored on writes, so a broken cache never fails a
// request.
package cache

import (
	"context"
	"time"
)

// Store is a byte-oriented key/value store with per-key expiry.
//
// Get reports found=false for absent or expired keys; err is reserved for
// backend failures.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, found bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
