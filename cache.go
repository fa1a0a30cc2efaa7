package gateway

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL bounds how long an entitlement snapshot may serve requests
// without a fresh read. Webhooks and admin mutations invalidate explicitly,
// so the TTL is only the backstop.
const DefaultCacheTTL = 60 * time.Second

// SnapshotLoader reads the account and billing record from the source of
// truth on a cache miss.
type SnapshotLoader func(ctx context.Context) (*EntitlementSnapshot, error)

// EntitlementCache is a read-through, per-account snapshot cache. It is an
// explicitly owned component rather than a package singleton so tests can
// construct isolated instances and assert invalidation deterministically.
type EntitlementCache struct {
	ttl    time.Duration
	store  *gocache.Cache
	logger Logger
	now    func() time.Time
}

// EntitlementCacheOption customizes cache construction.
type EntitlementCacheOption func(*EntitlementCache)

// WithCacheTTL overrides the default 60s TTL.
func WithCacheTTL(ttl time.Duration) EntitlementCacheOption {
	return func(c *EntitlementCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheClock injects a custom clock (useful for tests).
func WithCacheClock(clock func() time.Time) EntitlementCacheOption {
	return func(c *EntitlementCache) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithCacheLogger overrides the cache logger.
func WithCacheLogger(logger Logger) EntitlementCacheOption {
	return func(c *EntitlementCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewEntitlementCache returns an empty cache with the configured TTL.
func NewEntitlementCache(opts ...EntitlementCacheOption) *EntitlementCache {
	c := &EntitlementCache{
		ttl:    DefaultCacheTTL,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.store = gocache.New(c.ttl, 2*c.ttl)

	return c
}

// Get returns the cached snapshot for the account when it is younger than the
// TTL, otherwise runs the loader once and populates the cache. A loader error
// is fatal for the request: entitlement decisions are never made from stale
// data served around a failure.
func (c *EntitlementCache) Get(ctx context.Context, accountID string, loader SnapshotLoader) (*EntitlementSnapshot, error) {
	if cached, ok := c.store.Get(accountID); ok {
		if snapshot, ok := cached.(*EntitlementSnapshot); ok && c.fresh(snapshot) {
			return snapshot, nil
		}
	}

	if loader == nil {
		return nil, ErrAuthStoreUnavailable
	}

	snapshot, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	if snapshot == nil {
		return nil, ErrAuthStoreUnavailable
	}

	snapshot.CachedAt = c.now()
	c.store.Set(accountID, snapshot, c.ttl)

	return snapshot, nil
}

// Peek returns the cached snapshot without triggering a load.
func (c *EntitlementCache) Peek(accountID string) (*EntitlementSnapshot, bool) {
	cached, ok := c.store.Get(accountID)
	if !ok {
		return nil, false
	}
	snapshot, ok := cached.(*EntitlementSnapshot)
	if !ok || !c.fresh(snapshot) {
		return nil, false
	}
	return snapshot, true
}

// Invalidate drops the snapshot for the account. This is the only way to
// force a sub-TTL refresh; the next Get re-populates from the source of
// truth.
func (c *EntitlementCache) Invalidate(accountID string) {
	c.store.Delete(accountID)
}

// InvalidateAll drops every snapshot. Intended for admin tooling.
func (c *EntitlementCache) InvalidateAll() {
	c.store.Flush()
}

// TTL returns the configured entry lifetime.
func (c *EntitlementCache) TTL() time.Duration {
	return c.ttl
}

// fresh enforces the TTL against the injected clock as well, so entries are
// treated as absent as soon as they age out even before the backing store's
// janitor evicts them.
func (c *EntitlementCache) fresh(snapshot *EntitlementSnapshot) bool {
	if snapshot == nil {
		return false
	}
	return c.now().Sub(snapshot.CachedAt) < c.ttl
}
