package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/somepatt/tgbot-search-films/internal/auth"
	"github.com/somepatt/tgbot-search-films/internal/httpserver"
	"github.com/somepatt/tgbot-search-films/internal/logging"
	"github.com/somepatt/tgbot-search-films/internal/movies"
	"github.com/somepatt/tgbot-search-films/internal/repositories"
	"github.com/somepatt/tgbot-search-films/internal/search"
)

// writeTimeoutSlack is added to the provider timeout for the HTTP write
// deadline so a slow search can still answer.
const writeTimeoutSlack = 5 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP adapter API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, opts, func(ctx context.Context, c *core) error {
				handler, err := c.router()
				if err != nil {
					return err
				}

				srv := httpserver.New(c.cfg.HTTP.Port, handler, c.cfg.Provider.Timeout+writeTimeoutSlack)
				c.logger.Info("starting http server",
					"port", c.cfg.HTTP.Port,
					"provider", c.cfg.Provider.Kind,
					"store", c.cfg.Store.Driver,
				)
				return srv.Run(ctx, nil, c.logger)
			})
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|status]",
		Short:     "Apply or list database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			command := "up"
			if len(args) > 0 {
				command = args[0]
			}
			return runMigrations(cmd.Context(), cfg.Store, command, cmd.OutOrStdout())
		},
	}
}

func newSearchCommand(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		userID string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search movies by title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if search.NewQuery(query).Empty() {
				return search.ErrInvalidQuery
			}
			return withCore(cmd, opts, func(ctx context.Context, c *core) error {
				if userID != "" {
					ctx = logging.With(ctx, "user_id", userID)
					if _, err := c.stores.Users.GetOrCreate(ctx, userID); err != nil {
						return err
					}
				}

				results, err := c.engine.Search(ctx, query, limit)
				if err != nil {
					return err
				}

				if userID != "" {
					if err := c.stores.History.Record(ctx, userID, query); err != nil {
						c.logger.Warn("record search history", "error", err)
					}
					if err := c.stores.Stats.RecordImpressions(ctx, userID, results); err != nil {
						c.logger.Warn("record movie impressions", "error", err)
					}
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), results)
				}
				return printMovies(cmd.OutOrStdout(), results)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (0 uses the configured default)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "record the search for this user")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func newFavoritesCommand(opts *rootOptions) *cobra.Command {
	favorites := &cobra.Command{Use: "favorites", Short: "Manage a user's favorite movies"}

	favorites.AddCommand(
		&cobra.Command{
			Use:   "list USER_ID",
			Short: "List favorites in the order they were added",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCore(cmd, opts, func(ctx context.Context, c *core) error {
					list, err := c.stores.Favorites.List(ctx, args[0])
					if err != nil {
						return err
					}
					for _, favorite := range list {
						fmt.Fprintln(cmd.OutOrStdout(), favorite.MovieID)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "add USER_ID MOVIE_ID",
			Short: "Add a favorite, creating the user if needed",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCore(cmd, opts, func(ctx context.Context, c *core) error {
					if _, err := c.stores.Users.GetOrCreate(ctx, args[0]); err != nil {
						return err
					}
					return c.stores.Favorites.Add(ctx, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "remove USER_ID MOVIE_ID",
			Short: "Remove a favorite",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCore(cmd, opts, func(ctx context.Context, c *core) error {
					return c.stores.Favorites.Remove(ctx, args[0], args[1])
				})
			},
		},
	)
	return favorites
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history USER_ID",
		Short: "Show a user's recent searches, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, opts, func(ctx context.Context, c *core) error {
				queries, err := c.stores.History.Recent(ctx, args[0], limit)
				if err != nil {
					return err
				}
				for _, query := range queries {
					fmt.Fprintln(cmd.OutOrStdout(), query)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", repositories.DefaultHistoryLimit, "number of searches to show")
	return cmd
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "stats USER_ID",
		Short: "Show the movies most often shown to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, opts, func(ctx context.Context, c *core) error {
				stats, err := c.stores.Stats.Top(ctx, args[0], limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, stat := range stats {
					fmt.Fprintf(w, "%d\t%s\t%s\n", stat.TimesShown, stat.MovieID, stat.Title)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", repositories.DefaultHistoryLimit, "number of movies to show")
	return cmd
}

func newHashTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token TOKEN",
		Short: "Print the bcrypt hash to use as api.token_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func printMovies(out io.Writer, records []movies.MovieRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "no movies found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, record := range records {
		year := "-"
		if record.Year > 0 {
			year = fmt.Sprint(record.Year)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\n", record.ID, record.Title, year, record.Rating)
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
