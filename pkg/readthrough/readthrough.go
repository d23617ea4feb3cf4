// Package readthrough puts a loader in front of a [bucketcache.Keyed] table:
// misses call the loader once per key, no matter how many goroutines ask,
// and the result is cached with the configured max age.
package readthrough

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/calvinalkan/bucketcache/pkg/bucketcache"
	"github.com/calvinalkan/bucketcache/pkg/logger"
)

var (
	// ErrNotFound is returned by a loader when the key does not exist in the
	// backing source. It is passed through and never cached.
	ErrNotFound = errors.New("readthrough: not found")

	// ErrNoLoader is returned by GetOrLoad when the cache has no loader.
	ErrNoLoader = errors.New("readthrough: no loader configured")
)

// Loader fetches the value for key from the backing source.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Options control how loaded values are stored.
type Options struct {
	MaxAgeSec int64
	Priority  int64
	Logger    *slog.Logger
}

// Cache is a read-through cache over one table.
type Cache[K comparable, V any] struct {
	keys   *bucketcache.Keyed[K]
	load   Loader[K, V]
	opts   Options
	logger *slog.Logger
	group  singleflight.Group

	loads atomic.Int64
}

// New creates a read-through cache storing into keys.
func New[K comparable, V any](keys *bucketcache.Keyed[K], load Loader[K, V], opts Options) *Cache[K, V] {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Cache[K, V]{
		keys:   keys,
		load:   load,
		opts:   opts,
		logger: log.With(logger.Component("readthrough")),
	}
}

// Get returns the cached value without loading.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.keys.Lookup(key)
	if !ok {
		var zero V

		return zero, false
	}

	typed, ok := v.(V)

	return typed, ok
}

// GetOrLoad returns the cached value for key, calling the loader on a miss.
// Concurrent misses for the same key share one loader call. Loader errors
// are returned to every waiter and nothing is cached.
//
// Possible errors: [ErrNoLoader], [ErrNotFound], or the loader's error.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	var zero V

	if c.load == nil {
		return zero, ErrNoLoader
	}

	res, err, shared := c.group.Do(fmt.Sprintf("%#v", key), func() (any, error) {
		// A waiter from a finished flight may have filled the slot already.
		if v, ok := c.Get(key); ok {
			return v, nil
		}

		c.loads.Add(1)

		v, err := c.load(ctx, key)
		if err != nil {
			return zero, err
		}

		if ok, _ := c.keys.Put(key, v, bucketcache.PutOptions{MaxAgeSec: c.opts.MaxAgeSec, Priority: c.opts.Priority}); !ok {
			c.logger.Debug("loaded value not cached: page full of higher priority records")
		}

		return v, nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("load failed", logger.Error(err), slog.Bool("shared", shared))
		}

		return zero, err
	}

	v, _ := res.(V)

	return v, nil
}

// Invalidate drops the cached value for key. Reports whether one was cached.
func (c *Cache[K, V]) Invalidate(key K) bool {
	c.group.Forget(fmt.Sprintf("%#v", key))

	return c.keys.Remove(key)
}

// Loads returns the number of loader calls made so far.
func (c *Cache[K, V]) Loads() int64 { return c.loads.Load() }
