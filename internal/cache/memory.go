package cache

import (
	"context"
	"errors"
	"time"

	"github.com/ReneKroon/ttlcache/v2"
)

// MemoryStore is a process-local Store backed by ttlcache. Every entry carries
// its own TTL and reads never extend it. Safe for concurrent use.
type MemoryStore struct {
	items *ttlcache.Cache
}

// NewMemoryStore returns an empty MemoryStore. Call Close to stop its
// expiry goroutine.
func NewMemoryStore() *MemoryStore {
	c := ttlcache.NewCache()
	c.SkipTTLExtensionOnHit(true)
	return &MemoryStore{items: c}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, err := m.items.Get(key)
	if errors.Is(err, ttlcache.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, ok := raw.([]byte)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	return m.items.SetWithTTL(key, cp, ttl)
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		if err := m.items.Remove(k); err != nil && !errors.Is(err, ttlcache.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Ping fails only after Close.
func (m *MemoryStore) Ping(context.Context) error {
	if _, err := m.items.Get(""); errors.Is(err, ttlcache.ErrClosed) {
		return err
	}
	return nil
}

// Len returns the number of stored entries, including expired ones the
// expiry goroutine has not yet evicted.
func (m *MemoryStore) Len() int { return m.items.Count() }

// Close stops the expiry goroutine. The store is unusable afterwards.
func (m *MemoryStore) Close() error { return m.items.Close() }
