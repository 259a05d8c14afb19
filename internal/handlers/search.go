package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/somepatt/tgbot-search-films/internal/logging"
	"github.com/somepatt/tgbot-search-films/internal/movies"
	"github.com/somepatt/tgbot-search-films/internal/search"
)

// SearchHandler serves ranked movie searches and, when the caller names a
// user, tracks the query and the impressions it produced.
type SearchHandler struct {
	Search  Searcher
	Users   UserStore
	History HistoryStore
	Stats   StatsStore
}

type searchResponse struct {
	Query   string               `json:"query"`
	Results []movies.MovieRecord `json:"results"`
}

// Handle implements GET /api/v1/search?q=&limit=&user=.
func (h SearchHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Search == nil {
		respondJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "search is not configured", Kind: "search_unavailable"})
		return
	}

	query := r.URL.Query().Get("q")
	limit, err := parseLimit(r)
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "invalid_limit"})
		return
	}

	if search.NewQuery(query).Empty() {
		respondError(ctx, w, search.ErrInvalidQuery)
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID != "" {
		ctx = logging.With(ctx, "user_id", userID)
		if h.Users != nil {
			if _, err := h.Users.GetOrCreate(ctx, userID); err != nil {
				respondError(ctx, w, err)
				return
			}
		}
	}

	results, err := h.Search.Search(ctx, query, limit)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if userID != "" {
		h.track(ctx, userID, query, results)
	}

	respondJSON(ctx, w, http.StatusOK, searchResponse{Query: query, Results: results})
}

// track records history and impressions. Failures are logged and never fail
// the search itself.
func (h SearchHandler) track(ctx context.Context, userID, query string, results []movies.MovieRecord) {
	logger := logging.FromContext(ctx)
	if h.History != nil {
		if err := h.History.Record(ctx, userID, query); err != nil {
			logger.Warn("record search history", "error", err)
		}
	}
	if h.Stats != nil && len(results) > 0 {
		if err := h.Stats.RecordImpressions(ctx, userID, results); err != nil {
			logger.Warn("record movie impressions", "error", err)
		}
	}
}
