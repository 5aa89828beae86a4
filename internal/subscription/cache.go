package subscription

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/metrics"
)

// Cache is a short-TTL read-through cache over the subscription store.
// Concurrent refreshes are collapsed through singleflight. When a refresh
// fails the last good snapshot is served and the failure is logged, never
// propagated. A write by the matching engine marks the cache dirty so the
// next Get refreshes instead of waiting out the TTL.
type Cache struct {
	store domain.SubscriptionStore
	clock clockwork.Clock
	ttl   time.Duration
	group singleflight.Group

	mu          sync.Mutex
	snapshot    []domain.Subscription
	fetchedAt   time.Time
	hasSnapshot bool
	dirty       bool
}

// NewCache creates a cache with the given TTL.
func NewCache(store domain.SubscriptionStore, ttl time.Duration, clock clockwork.Clock) *Cache {
	return &Cache{
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// Get returns the current subscription snapshot, refreshing from the store
// when the TTL has expired or the cache was invalidated.
func (c *Cache) Get(ctx context.Context) []domain.Subscription {
	c.mu.Lock()
	fresh := c.hasSnapshot && !c.dirty && c.clock.Since(c.fetchedAt) < c.ttl
	snapshot := c.snapshot
	c.mu.Unlock()

	if fresh {
		return snapshot
	}

	v, err, _ := c.group.Do("subscriptions", func() (any, error) {
		subs, err := c.store.FindAll(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.snapshot = subs
		c.fetchedAt = c.clock.Now()
		c.hasSnapshot = true
		c.dirty = false
		c.mu.Unlock()
		return subs, nil
	})

	if err != nil {
		metrics.CacheRefreshes.WithLabelValues("error").Inc()
		slog.Warn("Subscription cache refresh failed, serving last good snapshot", "error", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.hasSnapshot {
			metrics.CacheServedStale.Inc()
			return c.snapshot
		}
		return nil
	}

	metrics.CacheRefreshes.WithLabelValues("success").Inc()
	return v.([]domain.Subscription)
}

// Invalidate forces the next Get to refresh from the store.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = true
}
