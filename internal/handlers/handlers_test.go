package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somepatt/tgbot-search-films/internal/models"
	"github.com/somepatt/tgbot-search-films/internal/movies"
	"github.com/somepatt/tgbot-search-films/internal/repositories"
	"github.com/somepatt/tgbot-search-films/internal/search"
)

type searcherStub struct {
	results []movies.MovieRecord
	err     error
	query   string
	limit   int
}

func (s *searcherStub) Search(ctx context.Context, rawQuery string, limit int) ([]movies.MovieRecord, error) {
	s.query = rawQuery
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

// memoryStore implements every store interface over maps.
type memoryStore struct {
	mu          sync.Mutex
	users       map[string]models.User
	favorites   map[string][]string
	history     map[string][]string
	impressions map[string]map[string]int
	historyErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:       make(map[string]models.User),
		favorites:   make(map[string][]string),
		history:     make(map[string][]string),
		impressions: make(map[string]map[string]int),
	}
}

func (m *memoryStore) GetOrCreate(ctx context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		user = models.User{ID: id, CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
		m.users[id] = user
	}
	return user, nil
}

func (m *memoryStore) known(userID string) bool {
	_, ok := m.users[userID]
	return ok
}

func (m *memoryStore) Add(ctx context.Context, userID, movieID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known(userID) {
		return repositories.ErrUnknownUser
	}
	for _, id := range m.favorites[userID] {
		if id == movieID {
			return nil
		}
	}
	m.favorites[userID] = append(m.favorites[userID], movieID)
	return nil
}

func (m *memoryStore) Remove(ctx context.Context, userID, movieID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.favorites[userID][:0]
	for _, id := range m.favorites[userID] {
		if id != movieID {
			kept = append(kept, id)
		}
	}
	m.favorites[userID] = kept
	return nil
}

func (m *memoryStore) List(ctx context.Context, userID string) ([]models.Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	favorites := make([]models.Favorite, 0, len(m.favorites[userID]))
	for _, id := range m.favorites[userID] {
		favorites = append(favorites, models.Favorite{UserID: userID, MovieID: id})
	}
	return favorites, nil
}

func (m *memoryStore) Record(ctx context.Context, userID, rawQuery string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return m.historyErr
	}
	if !m.known(userID) {
		return repositories.ErrUnknownUser
	}
	m.history[userID] = append([]string{rawQuery}, m.history[userID]...)
	return nil
}

func (m *memoryStore) Recent(ctx context.Context, userID string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queries := append([]string{}, m.history[userID]...)
	if len(queries) > limit {
		queries = queries[:limit]
	}
	return queries, nil
}

func (m *memoryStore) RecordImpressions(ctx context.Context, userID string, shown []movies.MovieRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known(userID) {
		return repositories.ErrUnknownUser
	}
	if m.impressions[userID] == nil {
		m.impressions[userID] = make(map[string]int)
	}
	for _, movie := range shown {
		m.impressions[userID][movie.ID]++
	}
	return nil
}

func (m *memoryStore) Top(ctx context.Context, userID string, limit int) ([]models.MovieStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make([]models.MovieStat, 0)
	for id, n := range m.impressions[userID] {
		stats = append(stats, models.MovieStat{UserID: userID, MovieID: id, TimesShown: n})
	}
	return stats, nil
}

type tokenStub struct{ valid string }

func (s tokenStub) Verify(token string) error {
	if token != s.valid {
		return errors.New("bad token")
	}
	return nil
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func newTestRouter(searcher Searcher, store *memoryStore) http.Handler {
	return NewRouter(Dependencies{
		Search:    searcher,
		Users:     store,
		Favorites: store,
		History:   store,
		Stats:     store,
	})
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSearchReturnsRankedResults(t *testing.T) {
	searcher := &searcherStub{results: []movies.MovieRecord{
		{ID: "1", Title: "The Matrix", Year: 1999},
		{ID: "2", Title: "The Matrix Reloaded", Year: 2003},
	}}
	store := newMemoryStore()

	rec := do(t, newTestRouter(searcher, store), http.MethodGet, "/api/v1/search?q=matrix&limit=5", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "matrix", searcher.query)
	assert.Equal(t, 5, searcher.limit)

	var resp searchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "1", resp.Results[0].ID)
	assert.Empty(t, store.users, "anonymous searches must not create users")
}

func TestSearchTracksUser(t *testing.T) {
	searcher := &searcherStub{results: []movies.MovieRecord{{ID: "1", Title: "The Matrix"}}}
	store := newMemoryStore()
	router := newTestRouter(searcher, store)

	for i := 0; i < 2; i++ {
		rec := do(t, router, http.MethodGet, "/api/v1/search?q=The+Matrix&user=tg:7", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Contains(t, store.users, "tg:7")
	assert.Equal(t, []string{"The Matrix", "The Matrix"}, store.history["tg:7"])
	assert.Equal(t, 2, store.impressions["tg:7"]["1"])
}

func TestSearchTrackingFailureDoesNotFailSearch(t *testing.T) {
	searcher := &searcherStub{results: []movies.MovieRecord{{ID: "1", Title: "Heat"}}}
	store := newMemoryStore()
	store.historyErr = errors.New("disk full")

	rec := do(t, newTestRouter(searcher, store), http.MethodGet, "/api/v1/search?q=heat&user=u1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.impressions["u1"]["1"])
}

func TestSearchErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"invalid query", search.ErrInvalidQuery, http.StatusBadRequest, "invalid_query"},
		{"unavailable", &search.UnavailableError{Query: "x", Err: movies.ErrProviderUnavailable}, http.StatusServiceUnavailable, "search_unavailable"},
		{"rate limited", &search.UnavailableError{Query: "x", Err: movies.ErrProviderRateLimited}, http.StatusTooManyRequests, "provider_rate_limited"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&searcherStub{err: tt.err}, newMemoryStore())
			rec := do(t, router, http.MethodGet, "/api/v1/search?q=x", nil)

			require.Equal(t, tt.status, rec.Code)
			var resp errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.kind, resp.Kind)
		})
	}
}

func TestSearchRejectsBadLimit(t *testing.T) {
	rec := do(t, newTestRouter(&searcherStub{}, newMemoryStore()), http.MethodGet, "/api/v1/search?q=x&limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFavoritesLifecycle(t *testing.T) {
	store := newMemoryStore()
	router := newTestRouter(&searcherStub{}, store)

	rec := do(t, router, http.MethodPut, "/api/v1/users/ghost/favorites/301", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/v1/users/u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user models.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&user))
	assert.Equal(t, "u1", user.ID)

	for _, id := range []string{"301", "42", "301"} {
		rec = do(t, router, http.MethodPut, "/api/v1/users/u1/favorites/"+id, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec = do(t, router, http.MethodDelete, "/api/v1/users/u1/favorites/42", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodDelete, "/api/v1/users/u1/favorites/42", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/users/u1/favorites", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp favoritesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Favorites, 1)
	assert.Equal(t, "301", resp.Favorites[0].MovieID)
}

func TestHistoryEndpoints(t *testing.T) {
	store := newMemoryStore()
	router := newTestRouter(&searcherStub{}, store)
	_, _ = store.GetOrCreate(context.Background(), "u1")

	rec := do(t, router, http.MethodPost, "/api/v1/users/u1/history", []byte(`{"query":"alien"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/v1/users/u1/history", []byte(`{"query":"heat"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/users/u1/history", []byte(`{"query":" !! "}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/v1/users/u1/history", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/users/u1/history?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp historyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []string{"heat"}, resp.Queries)
}

func TestStatsEndpoint(t *testing.T) {
	store := newMemoryStore()
	router := newTestRouter(&searcherStub{}, store)
	_, _ = store.GetOrCreate(context.Background(), "u1")
	require.NoError(t, store.RecordImpressions(context.Background(), "u1", []movies.MovieRecord{{ID: "1"}}))

	rec := do(t, router, http.MethodGet, "/api/v1/users/u1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp statsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Movies, 1)
	assert.Equal(t, 1, resp.Movies[0].TimesShown)
}

func TestRouterRequiresToken(t *testing.T) {
	router := NewRouter(Dependencies{
		Search: &searcherStub{},
		Tokens: tokenStub{valid: "secret"},
	})

	rec := do(t, router, http.MethodGet, "/api/v1/search?q=x", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health checks skip the token guard")
}

func TestRouterRateLimits(t *testing.T) {
	router := NewRouter(Dependencies{Search: &searcherStub{}, Limiter: denyAll{}})
	rec := do(t, router, http.MethodGet, "/api/v1/search?q=x&user=u1", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	rec := do(t, NewRouter(Dependencies{}), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	down := NewRouter(Dependencies{Ready: func(context.Context) error { return errors.New("db down") }})
	rec = do(t, down, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, NewRouter(Dependencies{}), http.MethodPost, "/healthz", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("cinemabot_up 1\n"))
	})
	rec := do(t, NewRouter(Dependencies{Metrics: metricsHandler}), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cinemabot_up")
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x&user=u9", nil)
	assert.Equal(t, "user:u9", rateLimitKey(req))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.7", rateLimitKey(req))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "ip:192.0.2.1", rateLimitKey(req))
}

func TestFavoriteIDsAreTrimmedConsistently(t *testing.T) {
	store := newMemoryStore()
	router := newTestRouter(&searcherStub{}, store)
	_, _ = store.GetOrCreate(context.Background(), "u1")

	rec := do(t, router, http.MethodPut, "/api/v1/users/u1/favorites/%20m1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodDelete, "/api/v1/users/u1/favorites/%20m1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/users/u1/favorites", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp favoritesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Favorites)
}

func TestBlankPathIDsAreRejected(t *testing.T) {
	store := newMemoryStore()
	router := newTestRouter(&searcherStub{}, store)

	tests := []struct {
		method string
		target string
	}{
		{http.MethodPut, "/api/v1/users/%20/"},
		{http.MethodGet, "/api/v1/users/%20/favorites"},
		{http.MethodPut, "/api/v1/users/u1/favorites/%20"},
		{http.MethodDelete, "/api/v1/users/u1/favorites/%20"},
		{http.MethodGet, "/api/v1/users/%20/history"},
		{http.MethodGet, "/api/v1/users/%20/stats"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.target, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, store.users)
}

func TestSearchBlankQueryDoesNotCreateUser(t *testing.T) {
	searcher := &searcherStub{}
	store := newMemoryStore()

	rec := do(t, newTestRouter(searcher, store), http.MethodGet, "/api/v1/search?q=%20&user=x", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.users)
	assert.Empty(t, searcher.query, "the engine must not be called")
}
