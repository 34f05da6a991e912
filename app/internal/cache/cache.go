package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// loadTimeout bounds a shared load once it no longer follows a caller's context
const loadTimeout = 30 * time.Second

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an in-memory TTL cache. A nil *Cache is valid and caches nothing,
// which is how a zero CACHE_TTL_SECONDS disables it.
type Cache[V any] struct {
	mu          sync.RWMutex
	items       map[string]entry[V]
	ttl         time.Duration
	now         func() time.Time
	group       singleflight.Group
	gen         atomic.Uint64 // bumped by Clear
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// New creates a cache with the given TTL, or nil when ttl <= 0
func New[V any](ttl time.Duration) *Cache[V] {
	if ttl <= 0 {
		return nil
	}
	c := &Cache[V]{
		items:       make(map[string]entry[V]),
		ttl:         ttl,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go c.cleanup(time.NewTicker(ttl))
	return c
}

// cleanup removes expired entries periodically
func (c *Cache[V]) cleanup(t *time.Ticker) {
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.mu.Lock()
			now := c.now()
			for key, e := range c.items {
				if now.After(e.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Stop ends the cleanup goroutine
func (c *Cache[V]) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

// Get retrieves a live value
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || c.now().After(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Set stores a value with the cache TTL
func (c *Cache[V]) Set(key string, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// GetOrLoad returns the cached value for key or computes it with load.
// Concurrent misses for the same key share one load. The shared load runs on
// a context detached from any single caller, bounded by loadTimeout, and each
// caller stops waiting when its own ctx ends. Errors are not cached. A load
// that started before the latest Clear is neither stored nor joined.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	var zero V
	if c == nil {
		return load(ctx)
	}
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	gen := c.gen.Load()
	ch := c.group.DoChan(strconv.FormatUint(gen, 10)+"|"+key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return v, err
		}
		c.setIfGen(key, v, gen)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		val, _ := res.Val.(V)
		return val, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// setIfGen stores value only if no Clear happened since gen was read
func (c *Cache[V]) setIfGen(key string, value V, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.Load() != gen {
		return
	}
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Clear removes everything. Called after every collection run.
func (c *Cache[V]) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen.Add(1)
	c.items = make(map[string]entry[V])
}

// Len reports the number of stored entries, expired or not
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
