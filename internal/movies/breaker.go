package movies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/somepatt/tgbot-search-films/internal/metrics"
)

// BreakerSettings configures the circuit breaker around a provider.
type BreakerSettings struct {
	Name string
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counters. Zero keeps them until a
	// state change.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// BreakerProvider fails fast with ErrProviderUnavailable while the wrapped
// provider keeps failing.
type BreakerProvider struct {
	base    Provider
	name    string
	breaker *gobreaker.CircuitBreaker[[]MovieRecord]
}

// NewBreakerProvider wraps base with a circuit breaker.
func NewBreakerProvider(base Provider, settings BreakerSettings, logger *slog.Logger, m *metrics.Metrics) *BreakerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	name := settings.Name
	if name == "" {
		name = "provider"
	}
	threshold := settings.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	m.SetBreakerState(name, int(gobreaker.StateClosed))
	cb := gobreaker.NewCircuitBreaker[[]MovieRecord](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			m.SetBreakerState(name, int(to))
		},
	})

	return &BreakerProvider{base: base, name: name, breaker: cb}
}

var _ Provider = (*BreakerProvider)(nil)

func (b *BreakerProvider) Lookup(ctx context.Context, query string) ([]MovieRecord, error) {
	if b == nil || b.base == nil {
		return nil, ErrProviderUnavailable
	}
	records, err := b.breaker.Execute(func() ([]MovieRecord, error) {
		return b.base.Lookup(ctx, query)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s circuit: %w: %w", b.name, ErrProviderUnavailable, err)
	}
	return records, err
}

// State reports the current breaker state.
func (b *BreakerProvider) State() gobreaker.State {
	return b.breaker.State()
}

// Rate limiting, empty queries and abandoned callers say nothing about the
// provider's health.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrProviderRateLimited) ||
		errors.Is(err, context.Canceled)
}
