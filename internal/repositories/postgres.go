package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/somepatt/tgbot-search-films/internal/db"
	"github.com/somepatt/tgbot-search-films/internal/models"
	"github.com/somepatt/tgbot-search-films/internal/movies"
)

const pgForeignKeyViolation = "23503"

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
	// NowFunc stamps new users; defaults to the current UTC time.
	NowFunc func() time.Time
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool, NowFunc: utcNow}
}

var _ UserRepository = (*PostgresUserRepository)(nil)

// GetOrCreate inserts the user if missing and returns the stored row.
func (r *PostgresUserRepository) GetOrCreate(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var user models.User
	err = crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO users (id, created_at)
            VALUES ($1, $2)
            ON CONFLICT (id) DO NOTHING
        `, id, r.NowFunc().UTC()); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if err := tx.QueryRow(ctx, `SELECT id, created_at FROM users WHERE id = $1`, id).
			Scan(&user.ID, &user.CreatedAt); err != nil {
			return fmt.Errorf("select user: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

// Find fetches a user by id.
func (r *PostgresUserRepository) Find(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var user models.User
	err = conn.QueryRow(ctx, `SELECT id, created_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

// PostgresFavoriteRepository provides PostgreSQL-backed persistence for favorites.
type PostgresFavoriteRepository struct {
	pool    db.Pool
	NowFunc func() time.Time
}

// NewPostgresFavoriteRepository constructs a favorite repository backed by PostgreSQL.
func NewPostgresFavoriteRepository(pool db.Pool) *PostgresFavoriteRepository {
	return &PostgresFavoriteRepository{pool: pool, NowFunc: utcNow}
}

var _ FavoriteRepository = (*PostgresFavoriteRepository)(nil)

// Add stores a favorite. Adding an existing favorite keeps the original
// added_at.
func (r *PostgresFavoriteRepository) Add(ctx context.Context, userID, movieID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO favorites (user_id, movie_id, added_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, movie_id) DO NOTHING
    `, userID, movieID, r.NowFunc().UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

// Remove deletes a favorite if present.
func (r *PostgresFavoriteRepository) Remove(ctx context.Context, userID, movieID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM favorites
        WHERE user_id = $1 AND movie_id = $2
    `, userID, movieID); err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}

// List returns the user's favorites in the order they were added.
func (r *PostgresFavoriteRepository) List(ctx context.Context, userID string) ([]models.Favorite, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT user_id, movie_id, added_at
        FROM favorites
        WHERE user_id = $1
        ORDER BY added_at ASC, movie_id ASC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("select favorites: %w", err)
	}
	defer rows.Close()

	favorites := make([]models.Favorite, 0)
	for rows.Next() {
		var favorite models.Favorite
		if err := rows.Scan(&favorite.UserID, &favorite.MovieID, &favorite.AddedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		favorite.AddedAt = favorite.AddedAt.UTC()
		favorites = append(favorites, favorite)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return favorites, nil
}

// PostgresHistoryRepository provides PostgreSQL-backed persistence for search history.
type PostgresHistoryRepository struct {
	pool    db.Pool
	NowFunc func() time.Time
}

// NewPostgresHistoryRepository constructs a history repository backed by PostgreSQL.
func NewPostgresHistoryRepository(pool db.Pool) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{pool: pool, NowFunc: utcNow}
}

var _ HistoryRepository = (*PostgresHistoryRepository)(nil)

func (r *PostgresHistoryRepository) Record(ctx context.Context, userID, rawQuery string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// v7 ids sort in insertion order, which breaks searched_at ties in Recent.
	_, err = conn.Exec(ctx, `
        INSERT INTO search_history (id, user_id, query, searched_at)
        VALUES ($1, $2, $3, $4)
    `, uuid.Must(uuid.NewV7()).String(), userID, rawQuery, r.NowFunc().UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("insert search history: %w", err)
	}
	return nil
}

func (r *PostgresHistoryRepository) Recent(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT query
        FROM search_history
        WHERE user_id = $1
        ORDER BY searched_at DESC, id DESC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select search history: %w", err)
	}

	queries, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect search history: %w", err)
	}
	if queries == nil {
		queries = []string{}
	}
	return queries, nil
}

// PostgresStatsRepository provides PostgreSQL-backed persistence for movie impressions.
type PostgresStatsRepository struct {
	pool    db.Pool
	NowFunc func() time.Time
}

// NewPostgresStatsRepository constructs a stats repository backed by PostgreSQL.
func NewPostgresStatsRepository(pool db.Pool) *PostgresStatsRepository {
	return &PostgresStatsRepository{pool: pool, NowFunc: utcNow}
}

var _ StatsRepository = (*PostgresStatsRepository)(nil)

func (r *PostgresStatsRepository) RecordImpressions(ctx context.Context, userID string, shown []movies.MovieRecord) error {
	if len(shown) == 0 {
		return nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	now := r.NowFunc().UTC()
	err = crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, movie := range shown {
			batch.Queue(`
                INSERT INTO movie_stats (user_id, movie_id, title, times_shown, last_shown_at)
                VALUES ($1, $2, $3, 1, $4)
                ON CONFLICT (user_id, movie_id)
                DO UPDATE SET times_shown = movie_stats.times_shown + 1,
                              title = EXCLUDED.title,
                              last_shown_at = EXCLUDED.last_shown_at
            `, userID, movie.ID, movie.Title, now)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("upsert movie stats: %w", err)
	}
	return nil
}

func (r *PostgresStatsRepository) Top(ctx context.Context, userID string, limit int) ([]models.MovieStat, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT user_id, movie_id, title, times_shown, last_shown_at
        FROM movie_stats
        WHERE user_id = $1
        ORDER BY times_shown DESC, title ASC, movie_id ASC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select movie stats: %w", err)
	}
	defer rows.Close()

	stats := make([]models.MovieStat, 0)
	for rows.Next() {
		var stat models.MovieStat
		if err := rows.Scan(&stat.UserID, &stat.MovieID, &stat.Title, &stat.TimesShown, &stat.LastShownAt); err != nil {
			return nil, fmt.Errorf("scan movie stat: %w", err)
		}
		stat.LastShownAt = stat.LastShownAt.UTC()
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movie stats: %w", err)
	}
	return stats, nil
}
