// Package cli implements the jnanactl admin commands. Every command opens
// the service database directly.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/jnana/internal/adapters/repository"
	service "github.com/okian/jnana/internal/app"
	"github.com/okian/jnana/internal/config"
	"github.com/okian/jnana/pkg/logger"
)

type options struct {
	configPath string
	dbPath     string
	verbose    bool
}

// RootCmd builds the jnanactl command tree.
func RootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "jnanactl",
		Short: "Administer a jnana labeling database",
		Long: `jnanactl imports items, exports the accepted dataset and inspects
agreement, workers and the edit queue of a jnana database.

The database path and tunables come from the same configuration as the
server: defaults, then --config (or JNANA_CONFIG), then JNANA_* variables.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "database path (overrides db_path)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		importCmd(opts),
		exportCmd(opts),
		reportCmd(opts),
		sweepCmd(opts),
		workersCmd(opts),
		editsCmd(opts),
	)
	return root
}

// env is an opened database with a service over it.
type env struct {
	cfg   *config.Config
	store *repository.SQLiteStore
	svc   *service.Service
}

func (e *env) Close() error { return e.store.Close() }

func open(ctx context.Context, cmd *cobra.Command, opts *options) (*env, error) {
	load := config.Load
	if opts.configPath != "" {
		load = func(ctx context.Context) (*config.Config, error) { return config.LoadFile(ctx, opts.configPath) }
	}
	cfg, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}

	log := logger.Nop()
	if opts.verbose {
		if log, err = logger.New(cmd.ErrOrStderr(), "debug"); err != nil {
			return nil, err
		}
	}

	store, err := repository.Open(ctx, cfg.DBPath,
		repository.WithReservationTTL(cfg.Timer()),
		repository.WithLogger(log.Named("store")),
	)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	svc, err := service.New(store, service.WithConfig(cfg), service.WithLogger(log))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &env{cfg: cfg, store: store, svc: svc}, nil
}

// withEnv opens the database for the duration of fn.
func withEnv(cmd *cobra.Command, opts *options, fn func(ctx context.Context, e *env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := open(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}
