// Package cache is a keyed store of fetched values with a staleness window
// and single-flight de-duplication of concurrent fetches.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store is an optional second-level store shared between processes
type Store[V any] interface {
	Load(ctx context.Context, key string) (value V, fetchedAt time.Time, found bool, err error)
	Save(ctx context.Context, key string, value V, fetchedAt time.Time) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// FetchFunc retrieves a value from the source of truth
type FetchFunc[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// Cache maps keys to {value, fetchedAt}
type Cache[V any] struct {
	name      string
	staleTime time.Duration
	store     Store[V]
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry[V]
	sf      singleflight.Group

	// gen counts invalidations. A fetch started before an invalidation of
	// its key must not write its result back.
	gen           uint64
	invalidatedAt map[string]uint64
	clearedAt     uint64
}

// Option configures a Cache
type Option[V any] func(*Cache[V])

// WithStore attaches a second-level store
func WithStore[V any](s Store[V]) Option[V] {
	return func(c *Cache[V]) { c.store = s }
}

// WithClock replaces time.Now
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// WithLogger sets the logger used for store failures
func WithLogger[V any](l *slog.Logger) Option[V] {
	return func(c *Cache[V]) { c.logger = l }
}

// New creates a cache whose entries become stale staleTime after fetch
func New[V any](name string, staleTime time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		name:      name,
		staleTime: staleTime,
		now:       time.Now,
		logger:    slog.Default(),
		entries:   make(map[string]entry[V]),

		invalidatedAt: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsStale reports whether a value fetched at fetchedAt may be refetched
func (c *Cache[V]) IsStale(fetchedAt time.Time) bool {
	return c.now().Sub(fetchedAt) >= c.staleTime
}

// Get returns the cached value for key while it is fresh. Otherwise it
// fetches, with concurrent callers for the same key sharing one fetch.
// Failed fetches are not cached. The shared fetch outlives any single
// caller; each caller stops waiting when its own ctx is done.
func (c *Cache[V]) Get(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	if v, ok := c.fresh(key); ok {
		return v, nil
	}

	return c.flight(ctx, key, func(fctx context.Context) (V, error) {
		// another flight may have filled the entry while we queued
		if v, ok := c.fresh(key); ok {
			return v, nil
		}
		gen := c.generation()
		if v, ok := c.loadStore(fctx, key, gen); ok {
			return v, nil
		}
		return c.fetchAndSet(fctx, key, gen, fetch)
	})
}

// Refresh fetches key unconditionally and stores the result
func (c *Cache[V]) Refresh(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	return c.flight(ctx, "refresh:"+key, func(fctx context.Context) (V, error) {
		return c.fetchAndSet(fctx, key, c.generation(), fetch)
	})
}

// flight runs fn once per group key on a context detached from the
// callers' cancellation
func (c *Cache[V]) flight(ctx context.Context, group string, fn func(context.Context) (V, error)) (V, error) {
	fctx := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(group, func() (any, error) {
		return fn(fctx)
	})

	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Cache[V]) fetchAndSet(ctx context.Context, key string, gen uint64, fetch FetchFunc[V]) (V, error) {
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	c.setSince(ctx, key, v, c.now(), gen)
	return v, nil
}

// Set stores value for key as fetched at fetchedAt
func (c *Cache[V]) Set(ctx context.Context, key string, value V, fetchedAt time.Time) {
	c.set(ctx, key, value, fetchedAt)
}

// Peek returns the cached value for key regardless of staleness
func (c *Cache[V]) Peek(key string) (V, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.value, e.fetchedAt, ok
}

// Invalidate drops key from every level
func (c *Cache[V]) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.gen++
	c.invalidatedAt[key] = c.gen
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("deleting %s from %s store: %w", key, c.name, err)
		}
	}
	return nil
}

// InvalidateAll drops every entry from every level
func (c *Cache[V]) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.gen++
	c.clearedAt = c.gen
	c.invalidatedAt = make(map[string]uint64)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Clear(ctx); err != nil {
			return fmt.Errorf("clearing %s store: %w", c.name, err)
		}
	}
	return nil
}

// Len returns the number of in-memory entries
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[V]) fresh(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.IsStale(e.fetchedAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// invalidatedSince reports whether key was invalidated after generation
// gen. The caller holds c.mu.
func (c *Cache[V]) invalidatedSince(key string, gen uint64) bool {
	return c.clearedAt > gen || c.invalidatedAt[key] > gen
}

func (c *Cache[V]) loadStore(ctx context.Context, key string, gen uint64) (V, bool) {
	var zero V
	if c.store == nil {
		return zero, false
	}

	v, fetchedAt, found, err := c.store.Load(ctx, key)
	if err != nil {
		c.logger.Warn("cache store load failed", "cache", c.name, "key", key, "error", err)
		return zero, false
	}
	if !found || c.IsStale(fetchedAt) {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidatedSince(key, gen) {
		return zero, false
	}
	c.entries[key] = entry[V]{value: v, fetchedAt: fetchedAt}
	return v, true
}

func (c *Cache[V]) set(ctx context.Context, key string, value V, fetchedAt time.Time) {
	c.setSince(ctx, key, value, fetchedAt, c.generation())
}

// setSince stores value unless key was invalidated after generation gen
func (c *Cache[V]) setSince(ctx context.Context, key string, value V, fetchedAt time.Time, gen uint64) {
	c.mu.Lock()
	if c.invalidatedSince(key, gen) {
		c.mu.Unlock()
		c.logger.Debug("dropping result invalidated during fetch", "cache", c.name, "key", key)
		return
	}
	c.entries[key] = entry[V]{value: value, fetchedAt: fetchedAt}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Save(ctx, key, value, fetchedAt); err != nil {
			c.logger.Warn("cache store save failed", "cache", c.name, "key", key, "error", err)
		}
	}
}
