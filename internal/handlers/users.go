package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/somepatt/tgbot-search-films/internal/logging"
	"github.com/somepatt/tgbot-search-films/internal/models"
	"github.com/somepatt/tgbot-search-films/internal/repositories"
	"github.com/somepatt/tgbot-search-films/internal/search"
)

const maxBodyBytes = 1 << 16

// UserHandler exposes the per-user stores: registration, favorites, search
// history and impression statistics.
type UserHandler struct {
	Users     UserStore
	Favorites FavoriteStore
	History   HistoryStore
	Stats     StatsStore
}

type historyRequest struct {
	Query string `json:"query"`
}

type favoritesResponse struct {
	UserID    string            `json:"userId"`
	Favorites []models.Favorite `json:"favorites"`
}

type historyResponse struct {
	UserID  string   `json:"userId"`
	Queries []string `json:"queries"`
}

type statsResponse struct {
	UserID string             `json:"userId"`
	Movies []models.MovieStat `json:"movies"`
}

// pathIDs returns the named path parameters with surrounding spaces removed.
// A blank one is answered with 400 and ok is false.
func pathIDs(w http.ResponseWriter, r *http.Request, names ...string) (ids []string, ok bool) {
	ids = make([]string, len(names))
	for i, name := range names {
		ids[i] = strings.TrimSpace(chi.URLParam(r, name))
		if ids[i] == "" {
			respondJSON(r.Context(), w, http.StatusBadRequest, errorResponse{Error: name + " is required", Kind: "invalid_id"})
			return nil, false
		}
	}
	return ids, true
}

// Register handles PUT /api/v1/users/{userID}.
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, ok := pathIDs(w, r, "userID")
	if !ok {
		return
	}
	user, err := h.Users.GetOrCreate(ctx, ids[0])
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, user)
}

// ListFavorites handles GET /api/v1/users/{userID}/favorites.
func (h UserHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, ok := pathIDs(w, r, "userID")
	if !ok {
		return
	}
	userID := ids[0]
	favorites, err := h.Favorites.List(ctx, userID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, favoritesResponse{UserID: userID, Favorites: favorites})
}

// AddFavorite handles PUT /api/v1/users/{userID}/favorites/{movieID}.
func (h UserHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, ok := pathIDs(w, r, "userID", "movieID")
	if !ok {
		return
	}
	userID, movieID := ids[0], ids[1]

	if err := h.Favorites.Add(ctx, userID, movieID); err != nil {
		respondError(ctx, w, err)
		return
	}
	logging.FromContext(ctx).Info("favorite added", "user_id", userID, "movie_id", movieID)
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFavorite handles DELETE /api/v1/users/{userID}/favorites/{movieID}.
func (h UserHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, ok := pathIDs(w, r, "userID", "movieID")
	if !ok {
		return
	}
	if err := h.Favorites.Remove(ctx, ids[0], ids[1]); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListHistory handles GET /api/v1/users/{userID}/history.
func (h UserHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := parseLimit(r)
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "invalid_limit"})
		return
	}
	if limit == 0 {
		limit = repositories.DefaultHistoryLimit
	}

	ids, ok := pathIDs(w, r, "userID")
	if !ok {
		return
	}
	userID := ids[0]
	queries, err := h.History.Recent(ctx, userID, limit)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, historyResponse{UserID: userID, Queries: queries})
}

// RecordHistory handles POST /api/v1/users/{userID}/history for adapters that
// run searches elsewhere but still want them remembered.
func (h UserHandler) RecordHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, ok := pathIDs(w, r, "userID")
	if !ok {
		return
	}

	var req historyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload", Kind: "invalid_body"})
		return
	}
	if search.NewQuery(req.Query).Empty() {
		respondError(ctx, w, search.ErrInvalidQuery)
		return
	}

	if err := h.History.Record(ctx, ids[0], req.Query); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// TopStats handles GET /api/v1/users/{userID}/stats.
func (h UserHandler) TopStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := parseLimit(r)
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "invalid_limit"})
		return
	}

	ids, ok := pathIDs(w, r, "userID")
	if !ok {
		return
	}
	userID := ids[0]
	stats, err := h.Stats.Top(ctx, userID, limit)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, statsResponse{UserID: userID, Movies: stats})
}
