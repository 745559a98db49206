// Package cache memoises slow, read-mostly Chronicle lookups such as the
// rule catalogue and entity summaries.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Cache is a bounded, expiring map. A nil *Cache is valid and never caches.
// Cached values are shared between callers and must be treated as read-only.
type Cache[V any] struct {
	lru    *expirable.LRU[string, V]
	flight singleflight.Group
}

// New returns a cache holding up to size entries for ttl each. It returns nil
// when size or ttl is not positive, which disables caching.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &Cache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	return c.lru.Get(key)
}

// Put stores value under key.
func (c *Cache[V]) Put(key string, value V) {
	if c == nil {
		return
	}
	c.lru.Add(key, value)
}

// Len reports the number of live entries.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// Load returns the cached value for key or calls fn and caches a successful
// result. Concurrent misses for the same key share one fn call, which runs
// detached from any single caller's cancellation; each caller still returns
// early when its own ctx is done. Errors are never cached. The bool reports
// whether the value came from the cache or from another caller's load.
func (c *Cache[V]) Load(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, bool, error) {
	if c == nil {
		v, err := fn(ctx)
		return v, false, err
	}
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	ch := c.flight.DoChan(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		c.Put(key, v)
		return v, nil
	})
	select {
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	case res := <-ch:
		v, _ := res.Val.(V)
		return v, res.Shared, res.Err
	}
}
