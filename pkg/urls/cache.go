package urls

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/marmos91/avatarsync/internal/logger"
	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/metrics"
)

// InvalidationReason tells the cache why an entry is being dropped.
type InvalidationReason string

const (
	ReasonAvatarUpdate   InvalidationReason = "AVATAR_UPDATE"
	ReasonAvatarRollback InvalidationReason = "AVATAR_ROLLBACK"
	ReasonManual         InvalidationReason = "MANUAL"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 5 * time.Minute
)

// Cache is a bounded, expiring read-through cache of user URL sets.
//
// Thread Safety: Safe for concurrent use.
type Cache struct {
	lru     *expirable.LRU[string, avatar.URLSet]
	metrics metrics.CacheMetrics
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheMetrics reports lookups and invalidations to m.
func WithCacheMetrics(m metrics.CacheMetrics) CacheOption {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewCache creates a cache holding at most size entries for ttl each.
// Non-positive values select the defaults.
func NewCache(size int, ttl time.Duration, opts ...CacheOption) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		lru:     expirable.NewLRU[string, avatar.URLSet](size, nil, ttl),
		metrics: metrics.NewNoopCacheMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the cached set for userID.
func (c *Cache) Lookup(userID string) (avatar.URLSet, bool) {
	urls, ok := c.lru.Get(userID)
	c.metrics.RecordLookup(ok)
	return urls, ok
}

// Store caches urls for userID.
func (c *Cache) Store(userID string, urls avatar.URLSet) {
	c.lru.Add(userID, urls)
}

// Contains reports whether userID has a live entry.
func (c *Cache) Contains(userID string) bool {
	return c.lru.Contains(userID)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Invalidate drops the entry of userID.
func (c *Cache) Invalidate(ctx context.Context, userID string, reason InvalidationReason) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.lru.Remove(userID) {
		c.metrics.RecordInvalidation(string(reason))
		logger.Debug("Invalidated cached avatar URLs for %s (%s)", userID, reason)
	}
	return nil
}

// ClearCache drops every entry.
func (c *Cache) ClearCache() {
	c.lru.Purge()
	c.metrics.RecordInvalidation("CLEAR")
	logger.Debug("Cleared avatar URL cache")
}
