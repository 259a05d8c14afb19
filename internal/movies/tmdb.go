package movies

import (
	"context"
	"strconv"
	"strings"
)

const (
	defaultTMDbBaseURL = "https://api.themoviedb.org"
	tmdbSearchPath     = "/3/search/movie"
	tmdbImageBaseURL   = "https://image.tmdb.org/t/p/w500"
	tmdbWatchURL       = "https://www.themoviedb.org/movie/"
)

// TMDbProvider looks movies up through The Movie Database v3 search API.
type TMDbProvider struct {
	client   *apiClient
	apiKey   string
	language string
}

// NewTMDbProvider builds a provider. Language is passed through to TMDb and
// may be empty.
func NewTMDbProvider(cfg ClientConfig, language string) *TMDbProvider {
	return &TMDbProvider{
		client:   newAPIClient("tmdb", defaultTMDbBaseURL, cfg),
		apiKey:   cfg.APIKey,
		language: language,
	}
}

var _ Provider = (*TMDbProvider)(nil)

func (p *TMDbProvider) Lookup(ctx context.Context, query string) ([]MovieRecord, error) {
	if p == nil || p.client == nil {
		return nil, ErrProviderUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	params := map[string]string{
		"api_key":       p.apiKey,
		"query":         query,
		"page":          "1",
		"include_adult": "false",
	}
	if p.language != "" {
		params["language"] = p.language
	}

	var payload tmdbSearchResponse
	if err := p.client.get(ctx, tmdbSearchPath, params, nil, &payload); err != nil {
		return nil, err
	}

	records := make([]MovieRecord, 0, len(payload.Results))
	for _, movie := range payload.Results {
		if movie.ID <= 0 {
			continue
		}
		records = append(records, movie.record())
	}
	return records, nil
}

type tmdbSearchResponse struct {
	Page         int         `json:"page"`
	Results      []tmdbMovie `json:"results"`
	TotalResults int         `json:"total_results"`
}

type tmdbMovie struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	OriginalTitle string  `json:"original_title"`
	ReleaseDate   string  `json:"release_date"`
	Overview      string  `json:"overview"`
	PosterPath    string  `json:"poster_path"`
	VoteAverage   float64 `json:"vote_average"`
}

func (m tmdbMovie) record() MovieRecord {
	id := strconv.FormatInt(m.ID, 10)
	title := strings.TrimSpace(m.Title)
	original := strings.TrimSpace(m.OriginalTitle)
	if title == "" {
		title, original = original, ""
	}
	if original == title {
		original = ""
	}

	record := MovieRecord{
		ID:            id,
		Title:         title,
		OriginalTitle: original,
		Year:          parseYear(m.ReleaseDate),
		Plot:          truncatePlot(m.Overview),
		WatchURL:      tmdbWatchURL + id,
	}
	if m.VoteAverage > 0 && m.VoteAverage <= 10 {
		record.Rating = m.VoteAverage
	}
	if m.PosterPath != "" {
		record.PosterURL = tmdbImageBaseURL + m.PosterPath
	}
	return record
}
