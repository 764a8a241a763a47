package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-user-service/internal/domain"
)

// Snapshot kinds, used as key prefixes and metric namespaces.
const (
	nsUser  = "user"
	nsPrefs = "user_preferences"
)

// Default lifetimes of cached snapshots.
const (
	DefaultUserTTL  = 300 * time.Second
	DefaultPrefsTTL = 600 * time.Second
)

const invalidateTimeout = 2 * time.Second

// UserKey is the cache key of a full user snapshot.
func UserKey(id string) string { return nsUser + ":" + id }

// PreferencesKey is the cache key of a preferences-only snapshot.
func PreferencesKey(id string) string { return nsPrefs + ":" + id }

// UserCache stores JSON snapshots of users and their preferences.
//
// Writers must call Invalidate after every committed change to a user or its
// preferences, before answering the request. Other readers may observe a
// stale snapshot for up to its TTL.
type UserCache struct {
	store    Store
	userTTL  time.Duration
	prefsTTL time.Duration
}

// NewUserCache wraps store. Non-positive TTLs fall back to the defaults.
func NewUserCache(store Store, userTTL, prefsTTL time.Duration) *UserCache {
	if userTTL <= 0 {
		userTTL = DefaultUserTTL
	}
	if prefsTTL <= 0 {
		prefsTTL = DefaultPrefsTTL
	}
	return &UserCache{store: store, userTTL: userTTL, prefsTTL: prefsTTL}
}

// GetUser returns the cached snapshot for id, if any.
func (c *UserCache) GetUser(ctx context.Context, id string) (*domain.User, bool) {
	var u domain.User
	if !c.get(ctx, nsUser, UserKey(id), &u) {
		return nil, false
	}
	return &u, true
}

// PutUser caches a full snapshot of u.
func (c *UserCache) PutUser(ctx context.Context, u *domain.User) {
	c.put(ctx, UserKey(u.ID), u, c.userTTL)
}

// GetPreferences returns the cached preferences of user id, if any.
func (c *UserCache) GetPreferences(ctx context.Context, id string) (*domain.Preference, bool) {
	var p domain.Preference
	if !c.get(ctx, nsPrefs, PreferencesKey(id), &p) {
		return nil, false
	}
	return &p, true
}

// PutPreferences caches the preferences of user id.
func (c *UserCache) PutPreferences(ctx context.Context, id string, p domain.Preference) {
	c.put(ctx, PreferencesKey(id), p, c.prefsTTL)
}

// Invalidate drops both snapshots of user id. It runs after the write has
// committed, so it ignores cancellation of ctx and is bounded by
// invalidateTimeout instead.
func (c *UserCache) Invalidate(ctx context.Context, id string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()
	if err := c.store.Delete(dctx, UserKey(id), PreferencesKey(id)); err != nil {
		cacheWriteErrs.WithLabelValues("delete").Inc()
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", id).Msg("cache invalidate failed")
	}
}

// Ping checks the backing store.
func (c *UserCache) Ping(ctx context.Context) error { return c.store.Ping(ctx) }

func (c *UserCache) get(ctx context.Context, ns, key string, dst any) bool {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		cacheReqs.WithLabelValues(ns, resultError).Inc()
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	if !found {
		cacheReqs.WithLabelValues(ns, resultMiss).Inc()
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// corrupt entry; drop it so the next read repopulates
		cacheReqs.WithLabelValues(ns, resultError).Inc()
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache entry undecodable")
		_ = c.store.Delete(ctx, key)
		return false
	}
	cacheReqs.WithLabelValues(ns, resultHit).Inc()
	return true
}

func (c *UserCache) put(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err == nil {
		err = c.store.Set(ctx, key, raw, ttl)
	}
	if err != nil {
		cacheWriteErrs.WithLabelValues("set").Inc()
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
