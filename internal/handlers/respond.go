package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/somepatt/tgbot-search-films/internal/logging"
	"github.com/somepatt/tgbot-search-films/internal/movies"
	"github.com/somepatt/tgbot-search-films/internal/repositories"
	"github.com/somepatt/tgbot-search-films/internal/search"
)

// errorResponse carries the error kind so adapters can choose their own
// wording and retry policy.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondError maps core error kinds onto HTTP statuses.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status, kind, message := classifyError(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(ctx, w, status, errorResponse{Error: message, Kind: kind})
}

func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		return http.StatusBadRequest, "invalid_query", "query must contain letters or digits"
	case errors.Is(err, repositories.ErrUnknownUser):
		return http.StatusNotFound, "unknown_user", "user does not exist"
	case errors.Is(err, movies.ErrProviderRateLimited):
		return http.StatusTooManyRequests, "provider_rate_limited", "movie provider is throttling requests"
	case errors.Is(err, search.ErrSearchUnavailable), errors.Is(err, movies.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "search_unavailable", "movie search is temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

// parseLimit reads an optional positive integer query parameter.
func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}
