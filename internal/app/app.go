package app

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/somepatt/tgbot-search-films/internal/config"
)

// Run executes the cinemabot command line with args (without the program
// name).
func Run(ctx context.Context, args []string) error {
	root := newRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.configPath)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "cinemabot",
		Short:         "Movie search and favorites core for chat bots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newSearchCommand(opts),
		newFavoritesCommand(opts),
		newHistoryCommand(opts),
		newStatsCommand(opts),
		newBackupCommand(opts),
		newHashTokenCommand(),
	)
	return root
}

// withCore loads configuration, builds the core and hands it to fn.
func withCore(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, c *core) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, err := buildCore(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}
