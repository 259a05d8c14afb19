package movies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	defaultKinopoiskBaseURL = "https://kinopoiskapiunofficial.tech"
	kinopoiskSearchPath     = "/api/v2.1/films/search-by-keyword"
	kinopoiskWatchURL       = "https://www.kinopoisk.vip/film/%s/"

	// PlotLimit is the number of runes kept from a plot summary.
	PlotLimit = 150
)

// KinopoiskProvider looks movies up through the unofficial Kinopoisk API.
type KinopoiskProvider struct {
	client *apiClient
	apiKey string
}

// NewKinopoiskProvider builds a provider that authenticates with cfg.APIKey.
func NewKinopoiskProvider(cfg ClientConfig) *KinopoiskProvider {
	return &KinopoiskProvider{
		client: newAPIClient("kinopoisk", defaultKinopoiskBaseURL, cfg),
		apiKey: cfg.APIKey,
	}
}

var _ Provider = (*KinopoiskProvider)(nil)

// Lookup performs a keyword search. A successful response with no films yields
// an empty slice and a nil error.
func (p *KinopoiskProvider) Lookup(ctx context.Context, query string) ([]MovieRecord, error) {
	if p == nil || p.client == nil {
		return nil, ErrProviderUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	var payload kinopoiskSearchResponse
	err := p.client.get(ctx, kinopoiskSearchPath,
		map[string]string{"keyword": query, "page": "1"},
		map[string]string{"X-API-KEY": p.apiKey},
		&payload,
	)
	if err != nil {
		return nil, err
	}

	records := make([]MovieRecord, 0, len(payload.Films))
	for _, film := range payload.Films {
		if film.FilmID <= 0 {
			continue
		}
		records = append(records, film.record())
	}
	return records, nil
}

type kinopoiskSearchResponse struct {
	Keyword string          `json:"keyword"`
	Films   []kinopoiskFilm `json:"films"`
}

type kinopoiskFilm struct {
	FilmID      int64       `json:"filmId"`
	NameRu      string      `json:"nameRu"`
	NameEn      string      `json:"nameEn"`
	Year        looseString `json:"year"`
	Description string      `json:"description"`
	FilmLength  string      `json:"filmLength"`
	Rating      looseString `json:"rating"`
	PosterURL   string      `json:"posterUrl"`
	Countries   []struct {
		Country string `json:"country"`
	} `json:"countries"`
	Genres []struct {
		Genre string `json:"genre"`
	} `json:"genres"`
}

func (f kinopoiskFilm) record() MovieRecord {
	id := strconv.FormatInt(f.FilmID, 10)
	title := strings.TrimSpace(f.NameRu)
	original := strings.TrimSpace(f.NameEn)
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
		Year:          parseYear(string(f.Year)),
		Plot:          truncatePlot(f.Description),
		Rating:        parseRating(string(f.Rating)),
		PosterURL:     f.PosterURL,
		Length:        f.FilmLength,
		WatchURL:      fmt.Sprintf(kinopoiskWatchURL, id),
	}
	for _, genre := range f.Genres {
		if genre.Genre != "" {
			record.Genres = append(record.Genres, genre.Genre)
		}
	}
	for _, country := range f.Countries {
		if country.Country != "" {
			record.Countries = append(record.Countries, country.Country)
		}
	}
	return record
}

// looseString accepts a JSON string, number or null. The API is inconsistent
// about quoting years and ratings.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = looseString(str)
		return nil
	}
	*s = looseString(data)
	return nil
}

// parseYear reads the leading four digit year of values like "1999" or
// "1999-2003". Anything else is treated as unknown.
func parseYear(raw string) int {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) && end < 4 && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end != 4 {
		return 0
	}
	year, err := strconv.Atoi(raw[:end])
	if err != nil {
		return 0
	}
	return year
}

// parseRating accepts "8.2" style scores and "79%" expectation ratings,
// returning 0 when the value is missing or malformed.
func parseRating(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return 0
	}
	percent := strings.HasSuffix(raw, "%")
	raw = strings.TrimSuffix(raw, "%")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return 0
	}
	if percent {
		value /= 10
	}
	if value > 10 {
		return 0
	}
	return value
}

func truncatePlot(plot string) string {
	plot = strings.TrimFunc(plot, unicode.IsSpace)
	if utf8.RuneCountInString(plot) <= PlotLimit {
		return plot
	}
	runes := []rune(plot)
	return strings.TrimRightFunc(string(runes[:PlotLimit]), unicode.IsSpace) + "..."
}
