package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/somepatt/tgbot-search-films/internal/auth"
	"github.com/somepatt/tgbot-search-films/internal/config"
	"github.com/somepatt/tgbot-search-films/internal/db"
	"github.com/somepatt/tgbot-search-films/internal/handlers"
	"github.com/somepatt/tgbot-search-films/internal/logging"
	"github.com/somepatt/tgbot-search-films/internal/metrics"
	"github.com/somepatt/tgbot-search-films/internal/middleware"
	"github.com/somepatt/tgbot-search-films/internal/movies"
	"github.com/somepatt/tgbot-search-films/internal/repositories"
	"github.com/somepatt/tgbot-search-films/internal/search"
)

// limiterIdleTTL is how long an idle per-user bucket is kept.
const limiterIdleTTL = 10 * time.Minute

// stores groups the persistence backends behind the repository contracts.
type stores struct {
	Users     repositories.UserRepository
	Favorites repositories.FavoriteRepository
	History   repositories.HistoryRepository
	Stats     repositories.StatsRepository

	ping  func(ctx context.Context) error
	close func()
}

// core is every long-lived collaborator, built once per process.
type core struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	cache    *movies.CachingProvider
	engine   *search.Engine
	stores   stores
}

// buildCore wires the provider chain, the search engine and the configured
// store. logs receives the structured log stream.
func buildCore(ctx context.Context, cfg config.Config, logs io.Writer) (*core, error) {
	logger, err := logging.New(logs, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	provider := buildProvider(cfg.Provider, logger, m)
	cache := movies.NewCachingProvider(provider, cfg.Cache.TTL, cfg.Cache.MaxEntries, movies.WithCacheMetrics(m))
	engine := search.NewEngine(cache, search.Limits{
		Default: cfg.Search.DefaultLimit,
		Max:     cfg.Search.MaxLimit,
	}, m)

	st, err := openStores(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	logger.Debug("core wired",
		"provider", cfg.Provider.Kind,
		"store", cfg.Store.Driver,
		"cache_ttl", cfg.Cache.TTL,
		"cache_max_entries", cfg.Cache.MaxEntries,
	)

	return &core{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
		cache:    cache,
		engine:   engine,
		stores:   st,
	}, nil
}

func (c *core) Close() {
	if c.stores.close != nil {
		c.stores.close()
	}
}

func buildProvider(cfg config.ProviderConfig, logger *slog.Logger, m *metrics.Metrics) movies.Provider {
	clientCfg := movies.ClientConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Metrics:           m,
	}

	var base movies.Provider
	switch cfg.Kind {
	case config.ProviderTMDb:
		base = movies.NewTMDbProvider(clientCfg, cfg.Language)
	default:
		base = movies.NewKinopoiskProvider(clientCfg)
	}

	return movies.NewBreakerProvider(base, movies.BreakerSettings{
		Name:                cfg.Kind,
		MaxRequests:         cfg.Breaker.HalfOpenRequests,
		Timeout:             cfg.Breaker.OpenTimeout,
		ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
	}, logger, m)
}

func openStores(ctx context.Context, cfg config.StoreConfig) (stores, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return stores{}, err
		}
		return postgresStores(pool), nil
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return stores{}, err
		}
		if err := repositories.EnsureSQLiteSchema(ctx, conn); err != nil {
			_ = conn.Close()
			return stores{}, err
		}
		return sqliteStores(conn), nil
	default:
		return stores{}, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func postgresStores(pool *pgxpool.Pool) stores {
	return stores{
		Users:     repositories.NewPostgresUserRepository(pool),
		Favorites: repositories.NewPostgresFavoriteRepository(pool),
		History:   repositories.NewPostgresHistoryRepository(pool),
		Stats:     repositories.NewPostgresStatsRepository(pool),
		ping:      pool.Ping,
		close:     pool.Close,
	}
}

func sqliteStores(conn *sql.DB) stores {
	return stores{
		Users:     repositories.NewSQLiteUserRepository(conn),
		Favorites: repositories.NewSQLiteFavoriteRepository(conn),
		History:   repositories.NewSQLiteHistoryRepository(conn),
		Stats:     repositories.NewSQLiteStatsRepository(conn),
		ping:      conn.PingContext,
		close:     func() { _ = conn.Close() },
	}
}

// handlerDependencies wires together concrete implementations used by the HTTP handlers.
func (c *core) handlerDependencies() (handlers.Dependencies, error) {
	deps := handlers.Dependencies{
		Search:    c.engine,
		Users:     c.stores.Users,
		Favorites: c.stores.Favorites,
		History:   c.stores.History,
		Stats:     c.stores.Stats,
		Metrics:   promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry}),
		Limiter:   middleware.NewKeyedRateLimiter(c.cfg.API.UserRate, c.cfg.API.UserBurst, limiterIdleTTL),
		Ready:     c.stores.ping,
		Logger:    c.logger,
	}

	if c.cfg.API.TokenHash != "" {
		verifier, err := auth.NewTokenVerifier(c.cfg.API.TokenHash)
		if err != nil {
			return handlers.Dependencies{}, fmt.Errorf("api.token_hash: %w", err)
		}
		deps.Tokens = verifier
	}

	return deps, nil
}

func (c *core) router() (http.Handler, error) {
	deps, err := c.handlerDependencies()
	if err != nil {
		return nil, err
	}
	return handlers.NewRouter(deps), nil
}
