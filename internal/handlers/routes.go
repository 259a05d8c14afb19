package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/somepatt/tgbot-search-films/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Search    Searcher
	Users     UserStore
	Favorites FavoriteStore
	History   HistoryStore
	Stats     StatsStore

	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Tokens guards /api/v1 when set.
	Tokens middleware.TokenVerifier
	// Limiter throttles /api/v1 per user, falling back to the client address.
	Limiter middleware.RateLimiter
	// Ready reports whether storage is reachable for /healthz.
	Ready func(ctx context.Context) error

	Logger *slog.Logger
}

// NewRouter wires HTTP handlers into a chi router.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	health := HealthHandler{Ready: deps.Ready}
	searches := SearchHandler{
		Search:  deps.Search,
		Users:   deps.Users,
		History: deps.History,
		Stats:   deps.Stats,
	}
	users := UserHandler{
		Users:     deps.Users,
		Favorites: deps.Favorites,
		History:   deps.History,
		Stats:     deps.Stats,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))

	r.Get("/healthz", health.Handle)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(deps.Tokens))

		r.With(middleware.RateLimit(deps.Limiter, rateLimitKey)).Get("/search", searches.Handle)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Use(middleware.RateLimit(deps.Limiter, rateLimitKey))

			r.Put("/", users.Register)
			r.Get("/favorites", users.ListFavorites)
			r.Put("/favorites/{movieID}", users.AddFavorite)
			r.Delete("/favorites/{movieID}", users.RemoveFavorite)
			r.Get("/history", users.ListHistory)
			r.Post("/history", users.RecordHistory)
			r.Get("/stats", users.TopStats)
		})
	})

	return r
}
