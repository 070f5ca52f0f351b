// Package rescache provides a bounded, TTL-expiring, single-flight-coalesced
// cache used to memoize identity and repository resolution lookups.
package rescache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/terrycain/s3-read-proxy/pkg/metrics"
)

// Fetch looks up a fresh value for key, typically by calling an upstream
// metadata API. A non-nil error is never cached.
type Fetch[V any] func(ctx context.Context) (V, error)

// Cache memoizes values of type V keyed by string, with a fixed TTL, bounded
// LRU capacity, and single-flight coalescing of concurrent misses for the
// same key. Cancelling one caller's context never cancels the shared
// in-flight fetch serving other waiters.
type Cache[V any] struct {
	name  string
	store *lru.LRU[string, V]
	group singleflight.Group
}

// New creates an unnamed Cache holding up to capacity entries, each evicted
// ttl after insertion (and earlier under LRU pressure). Cache hit/miss and
// coalescing metrics are not recorded for an unnamed cache; use NewNamed from
// a production call site.
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	return NewNamed[V]("", capacity, ttl)
}

// NewNamed is New with a name used to label the cache's Prometheus metrics
// (see pkg/metrics), so the identity and repository resolution caches can be
// told apart on a dashboard.
func NewNamed[V any](name string, capacity int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		name:  name,
		store: lru.NewLRU[string, V](capacity, nil, ttl),
	}
}

// Get returns the cached value for key, calling fetch on a miss. Concurrent
// Get calls for the same key share one fetch call.
func (c *Cache[V]) Get(ctx context.Context, key string, fetch Fetch[V]) (V, error) {
	if v, ok := c.store.Get(key); ok {
		c.recordLookup("hit")
		return v, nil
	}
	c.recordLookup("miss")

	type result struct {
		value V
		err   error
	}

	// ranFetch is set only for the caller whose closure started the fetch,
	// so the coalesced counter skips it and counts only the joiners.
	ranFetch := false
	ch := c.group.DoChan(key, func() (interface{}, error) {
		ranFetch = true
		// Run with a background context: single-flight deliberately outlives
		// any individual waiter's cancellation, since other callers may still
		// be waiting on this exact shared fetch.
		v, err := fetch(context.Background())
		if err != nil {
			return result{err: err}, nil
		}
		c.store.Add(key, v)
		return result{value: v}, nil
	})

	select {
	case r := <-ch:
		if r.Shared && !ranFetch {
			c.recordCoalesced()
		}
		res := r.Val.(result)
		return res.value, res.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Purge evicts every entry.
func (c *Cache[V]) Purge() {
	c.store.Purge()
}

// Len reports the current number of cached entries.
func (c *Cache[V]) Len() int {
	return c.store.Len()
}

func (c *Cache[V]) recordLookup(result string) {
	if c.name == "" {
		return
	}
	metrics.RecordCacheLookup(c.name, result)
}

func (c *Cache[V]) recordCoalesced() {
	if c.name == "" {
		return
	}
	metrics.RecordSingleflightCoalesced(c.name)
}
