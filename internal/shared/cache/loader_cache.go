// Package cache provides an LRU cache that loads on miss and coalesces
// concurrent loads of the same key.
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LoaderCache stores values by string key. Concurrent misses for one key run
// a single load and share its result.
type LoaderCache[V any] struct {
	lru   *lru.Cache[string, V]
	group singleflight.Group
}

// NewLoaderCache creates a cache holding at most maxEntries values.
func NewLoaderCache[V any](maxEntries int) (*LoaderCache[V], error) {
	c, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, err
	}
	return &LoaderCache[V]{lru: c}, nil
}

// Get returns the cached value for key or loads it.
func (c *LoaderCache[V]) Get(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		loaded, loadErr := load(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		c.lru.Add(key, loaded)
		return loaded, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return val.(V), nil
}

// Invalidate drops key.
func (c *LoaderCache[V]) Invalidate(key string) {
	c.lru.Remove(key)
}

// InvalidateAll drops every entry.
func (c *LoaderCache[V]) InvalidateAll() {
	c.lru.Purge()
}

// Len returns the number of cached entries.
func (c *LoaderCache[V]) Len() int {
	return c.lru.Len()
}
