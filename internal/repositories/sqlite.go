package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/somepatt/tgbot-search-films/internal/models"
	"github.com/somepatt/tgbot-search-films/internal/movies"
)

// Timestamps are stored as Unix nanoseconds so ordering keeps full precision.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS favorites (
    user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    movie_id TEXT NOT NULL,
    added_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, movie_id)
);

CREATE INDEX IF NOT EXISTS favorites_user_added_idx ON favorites (user_id, added_at);

CREATE TABLE IF NOT EXISTS search_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    query TEXT NOT NULL,
    searched_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS search_history_user_time_idx ON search_history (user_id, searched_at DESC);

CREATE TABLE IF NOT EXISTS movie_stats (
    user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    movie_id TEXT NOT NULL,
    title TEXT NOT NULL,
    times_shown INTEGER NOT NULL DEFAULT 1,
    last_shown_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, movie_id)
);
`

// EnsureSQLiteSchema creates the tables used by the SQLite repositories.
func EnsureSQLiteSchema(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create sqlite schema: %w", err)
	}
	return nil
}

func fromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func sqliteUserExists(ctx context.Context, conn *sql.DB, userID string) (bool, error) {
	var exists bool
	if err := conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// SQLiteUserRepository provides SQLite-backed persistence for users.
type SQLiteUserRepository struct {
	db      *sql.DB
	NowFunc func() time.Time
}

// NewSQLiteUserRepository constructs a user repository backed by SQLite.
func NewSQLiteUserRepository(conn *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: conn, NowFunc: utcNow}
}

var _ UserRepository = (*SQLiteUserRepository)(nil)

func (r *SQLiteUserRepository) GetOrCreate(ctx context.Context, id string) (models.User, error) {
	if _, err := r.db.ExecContext(ctx, `
        INSERT INTO users (id, created_at)
        VALUES (?, ?)
        ON CONFLICT (id) DO NOTHING
    `, id, r.NowFunc().UnixNano()); err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return r.Find(ctx, id)
}

func (r *SQLiteUserRepository) Find(ctx context.Context, id string) (models.User, error) {
	var (
		user      models.User
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, created_at FROM users WHERE id = ?`, id).Scan(&user.ID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	user.CreatedAt = fromUnixNano(createdAt)
	return user, nil
}

// SQLiteFavoriteRepository provides SQLite-backed persistence for favorites.
type SQLiteFavoriteRepository struct {
	db      *sql.DB
	NowFunc func() time.Time
}

// NewSQLiteFavoriteRepository constructs a favorite repository backed by SQLite.
func NewSQLiteFavoriteRepository(conn *sql.DB) *SQLiteFavoriteRepository {
	return &SQLiteFavoriteRepository{db: conn, NowFunc: utcNow}
}

var _ FavoriteRepository = (*SQLiteFavoriteRepository)(nil)

// Add inserts the favorite only when the user exists, in a single statement.
// When nothing was inserted the user is checked to tell a duplicate from an
// unknown user.
func (r *SQLiteFavoriteRepository) Add(ctx context.Context, userID, movieID string) error {
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO favorites (user_id, movie_id, added_at)
        SELECT ?, ?, ?
        WHERE EXISTS (SELECT 1 FROM users WHERE id = ?)
        ON CONFLICT (user_id, movie_id) DO NOTHING
    `, userID, movieID, r.NowFunc().UnixNano(), userID)
	if err != nil {
		return fmt.Errorf("insert favorite: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert favorite: %w", err)
	}
	if inserted > 0 {
		return nil
	}

	exists, err := sqliteUserExists(ctx, r.db, userID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnknownUser
	}
	return nil
}

func (r *SQLiteFavoriteRepository) Remove(ctx context.Context, userID, movieID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE user_id = ? AND movie_id = ?`, userID, movieID); err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}

func (r *SQLiteFavoriteRepository) List(ctx context.Context, userID string) ([]models.Favorite, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT user_id, movie_id, added_at
        FROM favorites
        WHERE user_id = ?
        ORDER BY added_at ASC, movie_id ASC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("select favorites: %w", err)
	}
	defer rows.Close()

	favorites := make([]models.Favorite, 0)
	for rows.Next() {
		var (
			favorite models.Favorite
			addedAt  int64
		)
		if err := rows.Scan(&favorite.UserID, &favorite.MovieID, &addedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		favorite.AddedAt = fromUnixNano(addedAt)
		favorites = append(favorites, favorite)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return favorites, nil
}

// SQLiteHistoryRepository provides SQLite-backed persistence for search history.
type SQLiteHistoryRepository struct {
	db      *sql.DB
	NowFunc func() time.Time
}

// NewSQLiteHistoryRepository constructs a history repository backed by SQLite.
func NewSQLiteHistoryRepository(conn *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: conn, NowFunc: utcNow}
}

var _ HistoryRepository = (*SQLiteHistoryRepository)(nil)

func (r *SQLiteHistoryRepository) Record(ctx context.Context, userID, rawQuery string) error {
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO search_history (user_id, query, searched_at)
        SELECT ?, ?, ?
        WHERE EXISTS (SELECT 1 FROM users WHERE id = ?)
    `, userID, rawQuery, r.NowFunc().UnixNano(), userID)
	if err != nil {
		return fmt.Errorf("insert search history: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert search history: %w", err)
	}
	if inserted == 0 {
		return ErrUnknownUser
	}
	return nil
}

func (r *SQLiteHistoryRepository) Recent(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT query
        FROM search_history
        WHERE user_id = ?
        ORDER BY searched_at DESC, id DESC
        LIMIT ?
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select search history: %w", err)
	}
	defer rows.Close()

	queries := make([]string, 0, limit)
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			return nil, fmt.Errorf("scan search history: %w", err)
		}
		queries = append(queries, query)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search history: %w", err)
	}
	return queries, nil
}

// SQLiteStatsRepository provides SQLite-backed persistence for movie impressions.
type SQLiteStatsRepository struct {
	db      *sql.DB
	NowFunc func() time.Time
}

// NewSQLiteStatsRepository constructs a stats repository backed by SQLite.
func NewSQLiteStatsRepository(conn *sql.DB) *SQLiteStatsRepository {
	return &SQLiteStatsRepository{db: conn, NowFunc: utcNow}
}

var _ StatsRepository = (*SQLiteStatsRepository)(nil)

func (r *SQLiteStatsRepository) RecordImpressions(ctx context.Context, userID string, shown []movies.MovieRecord) error {
	if len(shown) == 0 {
		return nil
	}

	exists, err := sqliteUserExists(ctx, r.db, userID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnknownUser
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.NowFunc().UnixNano()
	for _, movie := range shown {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO movie_stats (user_id, movie_id, title, times_shown, last_shown_at)
            VALUES (?, ?, ?, 1, ?)
            ON CONFLICT (user_id, movie_id)
            DO UPDATE SET times_shown = times_shown + 1,
                          title = excluded.title,
                          last_shown_at = excluded.last_shown_at
        `, userID, movie.ID, movie.Title, now); err != nil {
			return fmt.Errorf("upsert movie stat: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit movie stats: %w", err)
	}
	return nil
}

func (r *SQLiteStatsRepository) Top(ctx context.Context, userID string, limit int) ([]models.MovieStat, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT user_id, movie_id, title, times_shown, last_shown_at
        FROM movie_stats
        WHERE user_id = ?
        ORDER BY times_shown DESC, title ASC, movie_id ASC
        LIMIT ?
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select movie stats: %w", err)
	}
	defer rows.Close()

	stats := make([]models.MovieStat, 0)
	for rows.Next() {
		var (
			stat        models.MovieStat
			lastShownAt int64
		)
		if err := rows.Scan(&stat.UserID, &stat.MovieID, &stat.Title, &stat.TimesShown, &lastShownAt); err != nil {
			return nil, fmt.Errorf("scan movie stat: %w", err)
		}
		stat.LastShownAt = fromUnixNano(lastShownAt)
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movie stats: %w", err)
	}
	return stats, nil
}
