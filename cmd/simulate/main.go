package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/okian/jnana/internal/simulation"
	"github.com/okian/jnana/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	cfg := simulation.DefaultConfig()
	var runTimeout time.Duration

	root := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a jnana server with concurrent simulated workers",
		Long: `simulate onboards a set of workers against a running server, lets each
one ask for work and submit or skip until nothing is left for it, and then
checks that no worker saw an item twice, that no item exceeded its quota and
that the server stored every judgment it acknowledged.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if cfg.Verbose {
				level = "debug"
			}
			log, err := logger.New(cmd.ErrOrStderr(), level)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()

			res, err := simulation.Run(ctx, cfg, log)
			if res != nil {
				s := res.Stats
				fmt.Fprintf(cmd.OutOrStdout(),
					"workers %d, assignments %d, submitted %d (%d judgments, %d doubts), skipped %d, expired %d, rate limited %d, failed %d in %s\n",
					s.Workers, s.Assignments, s.Submitted, s.Recorded, s.Doubts, s.Skipped, s.Expired, s.RateLimited, s.Failed,
					s.Duration.Round(time.Millisecond))
			}
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), color.New(color.FgRed).Sprint("FAIL"))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.New(color.FgGreen).Sprint("OK"))
			return nil
		},
	}

	f := root.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of concurrent workers")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "seed for worker behavior")
	f.Float64Var(&cfg.CorrectRate, "correct", cfg.CorrectRate, "chance of labelling a sub-item Correct")
	f.Float64Var(&cfg.DoubtRate, "doubt", cfg.DoubtRate, "chance of labelling a sub-item Doubt")
	f.Float64Var(&cfg.SkipRate, "skip", cfg.SkipRate, "chance of skipping an assignment")
	f.IntVar(&cfg.IdleRetries, "idle-retries", cfg.IdleRetries, "extra requests after none_available")
	f.DurationVar(&cfg.IdleWait, "idle-wait", cfg.IdleWait, "pause between idle retries")
	f.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "overall deadline")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable debug logging")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
