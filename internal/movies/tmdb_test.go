package movies

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTMDbProviderLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tmdbSearchPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("api_key") != "key" || query.Get("query") != "alien" || query.Get("language") != "ru-RU" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{
		  "page": 1,
		  "total_results": 2,
		  "results": [
		    {"id": 348, "title": "Чужой", "original_title": "Alien", "release_date": "1979-05-25",
		     "overview": "Экипаж буксира", "poster_path": "/alien.jpg", "vote_average": 8.1},
		    {"id": 679, "title": "Aliens", "original_title": "Aliens", "release_date": ""}
		  ]
		}`))
	}))
	t.Cleanup(server.Close)

	provider := NewTMDbProvider(ClientConfig{BaseURL: server.URL, APIKey: "key", Timeout: time.Second}, "ru-RU")

	records, err := provider.Lookup(context.Background(), "alien")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records got %d", len(records))
	}
	first := records[0]
	if first.ID != "348" || first.Title != "Чужой" || first.OriginalTitle != "Alien" || first.Year != 1979 {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if first.PosterURL != tmdbImageBaseURL+"/alien.jpg" || first.Rating != 8.1 {
		t.Fatalf("unexpected first record details: %+v", first)
	}
	if records[1].OriginalTitle != "" || records[1].Year != 0 {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestTMDbProviderStatusMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	provider := NewTMDbProvider(ClientConfig{BaseURL: server.URL, Timeout: time.Second}, "")
	if _, err := provider.Lookup(context.Background(), "alien"); !errors.Is(err, ErrProviderRateLimited) {
		t.Fatalf("expected rate limited got %v", err)
	}
	if _, err := provider.Lookup(context.Background(), ""); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected empty query got %v", err)
	}
}
