package cache

import (
	"context"
	"testing"
	"time"
)

func newMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	m := NewMemoryStore()
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := newMemoryStore(t)

	if _, found, err := m.Get(ctx, "k"); found || err != nil {
		t.Fatalf("empty store: found=%v err=%v", found, err)
	}

	if err := m.Set(ctx, "k", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, found, err := m.Get(ctx, "k")
	if err != nil || !found || string(got) != "v1" {
		t.Fatalf("Get = %q,%v,%v; want v1,true,nil", got, found, err)
	}

	// returned bytes are a copy
	got[0] = 'X'
	again, _, _ := m.Get(ctx, "k")
	if string(again) != "v1" {
		t.Fatalf("stored value was mutated through Get result: %q", again)
	}

	_ = m.Set(ctx, "a", []byte("1"), time.Minute)
	_ = m.Set(ctx, "b", []byte("2"), time.Minute)
	if err := m.Delete(ctx, "k", "a", "b", "missing"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("Delete left %d entries", m.Len())
	}

	if err := m.Set(ctx, "z", []byte("x"), 0); err != nil || m.Len() != 0 {
		t.Fatalf("non-positive ttl should not store, len=%d err=%v", m.Len(), err)
	}
	if err := m.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	m := newMemoryStore(t)

	_ = m.Set(ctx, "short", []byte("s"), 50*time.Millisecond)
	_ = m.Set(ctx, "long", []byte("l"), time.Minute)

	time.Sleep(30 * time.Millisecond)
	// reads must not push the deadline out
	if _, found, _ := m.Get(ctx, "short"); !found {
		t.Fatalf("entry should be live before its ttl")
	}
	time.Sleep(70 * time.Millisecond)
	if _, found, _ := m.Get(ctx, "short"); found {
		t.Fatalf("entry should expire at its ttl")
	}
	if _, found, _ := m.Get(ctx, "long"); !found {
		t.Fatalf("per-entry ttl: long-lived entry expired with the short one")
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	m := NewMemoryStore()
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Ping(context.Background()); err == nil {
		t.Fatalf("Ping should fail on a closed store")
	}
	if _, _, err := m.Get(context.Background(), "k"); err == nil {
		t.Fatalf("Get should report the closed store")
	}
}
