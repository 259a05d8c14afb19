package handlers

import (
	"context"

	"github.com/somepatt/tgbot-search-films/internal/models"
	"github.com/somepatt/tgbot-search-films/internal/movies"
)

// Searcher runs ranked movie searches.
type Searcher interface {
	Search(ctx context.Context, rawQuery string, limit int) ([]movies.MovieRecord, error)
}

// UserStore captures the user operations required by the handlers.
type UserStore interface {
	GetOrCreate(ctx context.Context, id string) (models.User, error)
}

// FavoriteStore captures favorite persistence.
type FavoriteStore interface {
	Add(ctx context.Context, userID, movieID string) error
	Remove(ctx context.Context, userID, movieID string) error
	List(ctx context.Context, userID string) ([]models.Favorite, error)
}

// HistoryStore captures search history persistence.
type HistoryStore interface {
	Record(ctx context.Context, userID, rawQuery string) error
	Recent(ctx context.Context, userID string, limit int) ([]string, error)
}

// StatsStore captures impression counting.
type StatsStore interface {
	RecordImpressions(ctx context.Context, userID string, shown []movies.MovieRecord) error
	Top(ctx context.Context, userID string, limit int) ([]models.MovieStat, error)
}
