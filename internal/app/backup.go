package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/somepatt/tgbot-search-films/internal/config"
	"github.com/somepatt/tgbot-search-films/internal/db"
	"github.com/somepatt/tgbot-search-films/internal/storage"
)

func newBackupCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Upload a snapshot of the SQLite store to the backup bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runBackup(cmd.Context(), cfg, time.Now(), cmd.OutOrStdout())
		},
	}
}

func runBackup(ctx context.Context, cfg config.Config, now time.Time, out io.Writer) error {
	if cfg.Store.Driver != config.DriverSQLite {
		return errors.New("backup supports the sqlite store only; use pg_dump for postgres")
	}

	archive, err := storage.NewS3Archive(ctx, cfg.Backup)
	if err != nil {
		return err
	}

	conn, err := db.OpenSQLite(ctx, cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	defer conn.Close()

	tmpDir, err := os.MkdirTemp("", "cinemabot-backup-")
	if err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "cinemabot.db")
	if err := db.SnapshotSQLite(ctx, conn, snapshot); err != nil {
		return err
	}

	f, err := os.Open(snapshot)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	location, err := archive.Save(ctx, now.UTC().Format("20060102T150405Z")+".db", f)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "uploaded backup to %s\n", location)
	return nil
}
