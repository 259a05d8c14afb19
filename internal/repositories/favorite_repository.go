package repositories

import (
	"context"

	"github.com/somepatt/tgbot-search-films/internal/models"
)

// FavoriteRepository defines the data access contract for favorites.
type FavoriteRepository interface {
	// Add is idempotent. It fails with ErrUnknownUser when the user does not
	// exist.
	Add(ctx context.Context, userID, movieID string) error
	// Remove succeeds whether or not the favorite existed.
	Remove(ctx context.Context, userID, movieID string) error
	// List returns favorites oldest first, ties broken by movie id.
	List(ctx context.Context, userID string) ([]models.Favorite, error)
}
