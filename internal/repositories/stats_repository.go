package repositories

import (
	"context"

	"github.com/somepatt/tgbot-search-films/internal/models"
	"github.com/somepatt/tgbot-search-films/internal/movies"
)

// StatsRepository counts the movies shown to each user.
type StatsRepository interface {
	// RecordImpressions bumps the counter of every shown movie in one
	// transaction. It fails with ErrUnknownUser when the user does not exist.
	RecordImpressions(ctx context.Context, userID string, shown []movies.MovieRecord) error
	// Top returns the most shown movies, ties broken by title.
	Top(ctx context.Context, userID string, limit int) ([]models.MovieStat, error)
}
