package repositories

import (
	"context"
)

// DefaultHistoryLimit is used when callers ask for a non-positive number of
// history entries.
const DefaultHistoryLimit = 10

// HistoryRepository defines the data access contract for search history.
type HistoryRepository interface {
	// Record appends a raw query. It fails with ErrUnknownUser when the user
	// does not exist.
	Record(ctx context.Context, userID, rawQuery string) error
	// Recent returns up to limit raw queries, most recent first.
	Recent(ctx context.Context, userID string, limit int) ([]string, error)
}
