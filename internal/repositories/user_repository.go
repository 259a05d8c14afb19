package repositories

import (
	"context"

	"github.com/somepatt/tgbot-search-films/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	// GetOrCreate returns the user with id, creating it first if needed.
	// Repeated calls return the same CreatedAt.
	GetOrCreate(ctx context.Context, id string) (models.User, error)
	// Find returns ErrNotFound for unknown ids.
	Find(ctx context.Context, id string) (models.User, error)
}
