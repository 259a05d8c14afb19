package movies

import "context"

// MovieRecord is a provider search hit normalized into the fields the bot
// renders. Records are treated as immutable once fetched.
type MovieRecord struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	OriginalTitle string   `json:"originalTitle,omitempty"`
	Year          int      `json:"year,omitempty"`
	Genres        []string `json:"genres,omitempty"`
	Countries     []string `json:"countries,omitempty"`
	Plot          string   `json:"plot,omitempty"`
	Rating        float64  `json:"rating,omitempty"`
	PosterURL     string   `json:"posterUrl,omitempty"`
	Length        string   `json:"length,omitempty"`
	WatchURL      string   `json:"watchUrl,omitempty"`
}

// Provider returns candidate movies for a normalized query.
type Provider interface {
	Lookup(ctx context.Context, query string) ([]MovieRecord, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, query string) ([]MovieRecord, error)

func (f ProviderFunc) Lookup(ctx context.Context, query string) ([]MovieRecord, error) {
	return f(ctx, query)
}

func cloneRecords(records []MovieRecord) []MovieRecord {
	out := make([]MovieRecord, len(records))
	for i, record := range records {
		record.Genres = append([]string(nil), record.Genres...)
		record.Countries = append([]string(nil), record.Countries...)
		out[i] = record
	}
	return out
}
