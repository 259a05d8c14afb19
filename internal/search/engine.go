package search

import (
	"context"
	"time"

	"github.com/somepatt/tgbot-search-films/internal/logging"
	"github.com/somepatt/tgbot-search-films/internal/metrics"
	"github.com/somepatt/tgbot-search-films/internal/movies"
)

// Limits bounds the number of results a search returns.
type Limits struct {
	// Default applies when the caller passes a non-positive limit.
	Default int
	// Max caps any caller supplied limit. Zero means no cap beyond Default.
	Max int
}

// Engine normalizes queries, fetches candidates through the (usually cached)
// provider and ranks them.
type Engine struct {
	provider movies.Provider
	limits   Limits
	metrics  *metrics.Metrics
}

// NewEngine wires an engine around provider.
func NewEngine(provider movies.Provider, limits Limits, m *metrics.Metrics) *Engine {
	if limits.Default <= 0 {
		limits.Default = 10
	}
	if limits.Max > 0 && limits.Max < limits.Default {
		limits.Max = limits.Default
	}
	return &Engine{provider: provider, limits: limits, metrics: m}
}

// Search returns at most limit ranked movies for rawQuery. Zero matches yield
// an empty slice and a nil error. Queries that normalize to nothing fail with
// ErrInvalidQuery; provider failures come back as *UnavailableError.
func (e *Engine) Search(ctx context.Context, rawQuery string, limit int) ([]movies.MovieRecord, error) {
	q := NewQuery(rawQuery)
	if q.Empty() {
		return nil, ErrInvalidQuery
	}
	query := q.Normalized

	ctx, span := logging.StartSpan(ctx, "search")
	defer span.End()

	if e == nil || e.provider == nil {
		err := &UnavailableError{Query: query, Err: movies.ErrProviderUnavailable}
		span.Fail(err)
		return nil, err
	}

	start := time.Now()
	candidates, err := e.provider.Lookup(ctx, query)
	if err != nil {
		unavailable := &UnavailableError{Query: query, Err: err}
		span.Fail(unavailable)
		return nil, unavailable
	}

	results := Rank(query, candidates)
	if n := e.Limit(limit); len(results) > n {
		results = results[:n]
	}

	e.metrics.ObserveSearch(time.Since(start), len(results))
	logging.FromContext(ctx).Debug("search ranked",
		"query", query,
		"candidates", len(candidates),
		"results", len(results),
	)
	return results, nil
}

// Limit resolves a caller supplied limit against the configured bounds.
func (e *Engine) Limit(requested int) int {
	if requested <= 0 {
		return e.limits.Default
	}
	if e.limits.Max > 0 && requested > e.limits.Max {
		return e.limits.Max
	}
	return requested
}
