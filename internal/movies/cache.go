package movies

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/somepatt/tgbot-search-films/internal/metrics"
)

const (
	// DefaultCacheTTL applies when NewCachingProvider receives a non-positive TTL.
	DefaultCacheTTL = 15 * time.Minute
	// DefaultCacheEntries applies when NewCachingProvider receives a
	// non-positive capacity.
	DefaultCacheEntries = 1000
)

type cacheEntry struct {
	query     string
	records   []MovieRecord
	fetchedAt time.Time
}

// CachingProvider wraps another Provider with a bounded TTL cache keyed by the
// normalized query. Concurrent misses for the same query share one upstream
// call, and failures are never cached.
type CachingProvider struct {
	base       Provider
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	metrics    *metrics.Metrics

	flights singleflight.Group

	mu    sync.Mutex
	items map[string]*list.Element
	// order runs from the most recently fetched entry at the front to the
	// oldest at the back; hits do not reorder it.
	order *list.List
}

// CacheOption customises a CachingProvider.
type CacheOption func(*CachingProvider)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *CachingProvider) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheMetrics records hits, misses and evictions.
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *CachingProvider) {
		c.metrics = m
	}
}

// NewCachingProvider returns a Provider that caches successful lookups for ttl
// and holds at most maxEntries queries, evicting the oldest fetch first.
func NewCachingProvider(base Provider, ttl time.Duration, maxEntries int, opts ...CacheOption) *CachingProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	c := &CachingProvider{
		base:       base,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Provider = (*CachingProvider)(nil)

// Lookup returns cached records when a fresh entry exists, otherwise it
// delegates to the underlying provider and stores the result.
//
// The upstream call is detached from the caller's cancellation so a caller
// that gives up does not fail the other callers waiting on the same query.
func (c *CachingProvider) Lookup(ctx context.Context, query string) ([]MovieRecord, error) {
	if c == nil || c.base == nil {
		return nil, ErrProviderUnavailable
	}

	if records, ok := c.get(query); ok {
		c.metrics.CacheHit()
		return records, nil
	}
	c.metrics.CacheMiss()

	detached := context.WithoutCancel(ctx)
	result := c.flights.DoChan(query, func() (any, error) {
		if records, ok := c.get(query); ok {
			return records, nil
		}
		records, err := c.base.Lookup(detached, query)
		if err != nil {
			return nil, err
		}
		c.store(query, records)
		return records, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("movie lookup %q: %w: %w", query, ErrProviderUnavailable, ctx.Err())
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneRecords(res.Val.([]MovieRecord)), nil
	}
}

// Len reports the number of cached queries, including expired entries that
// have not been touched since they expired.
func (c *CachingProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Purge drops every cached entry.
func (c *CachingProvider) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.metrics.SetCacheEntries(0)
}

func (c *CachingProvider) get(query string) ([]MovieRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[query]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		c.order.Remove(elem)
		delete(c.items, query)
		c.metrics.SetCacheEntries(c.order.Len())
		return nil, false
	}
	return cloneRecords(entry.records), true
}

func (c *CachingProvider) store(query string, records []MovieRecord) {
	entry := &cacheEntry{
		query:     query,
		records:   cloneRecords(records),
		fetchedAt: c.now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[query]; ok {
		elem.Value = entry
		c.order.MoveToFront(elem)
	} else {
		c.items[query] = c.order.PushFront(entry)
	}

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).query)
		c.metrics.CacheEviction()
	}
	c.metrics.SetCacheEntries(c.order.Len())
}
