package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"net/url"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) a SQLite database at path with WAL journaling,
// foreign keys and a busy timeout enabled on every connection.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	dsn := sqliteDSN(path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return conn, nil
}

// uriPathEscaper escapes the characters SQLite would otherwise read as the
// start of the query, the fragment or a percent escape.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func sqliteDSN(path string) string {
	u := url.URL{
		Scheme:   "file",
		Opaque:   uriPathEscaper.Replace(filepath.ToSlash(path)),
		RawQuery: "_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
	}
	return u.String()
}

// SnapshotSQLite writes a consistent copy of the open database to dest, which
// must not exist yet.
func SnapshotSQLite(ctx context.Context, conn *sql.DB, dest string) error {
	if _, err := conn.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("snapshot sqlite: %w", err)
	}
	return nil
}
