package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/okian/jnana/internal/domain/model"
)

func sweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Convert expired reservations into timeout skips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				n, err := e.svc.Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d reservations\n", n)
				return nil
			})
		},
	}
}

func workersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "List onboarded workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				ws, err := e.svc.Workers(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPHONE\tJOINED")
				for _, w := range ws {
					fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n",
						w.ID, w.FirstName, w.LastName, w.Phone, w.CreatedAt.Format("2006-01-02"))
				}
				return tw.Flush()
			})
		},
	}
}

func editsCmd(opts *options) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "edits",
		Short: "List edit requests for sub-items judged Incorrect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status == "all" {
				status = ""
			}
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				reqs, err := e.svc.EditQueue(ctx, status)
				if err != nil {
					return err
				}
				if len(reqs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no edit requests")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ITEM\tSUB-ITEMS\tSTATUS\tUPDATED")
				for _, r := range reqs {
					st := r.Status
					if st == model.EditPending {
						st = color.New(color.FgYellow).Sprint(st)
					} else {
						st = color.New(color.FgGreen).Sprint(st)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ItemID, joinInts(r.SubIndexes), st, r.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", model.EditPending, "pending, done or all")

	cmd.AddCommand(&cobra.Command{
		Use:   "done <item-id>",
		Short: "Mark an item's edit request as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				if err := e.svc.MarkEditDone(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "edit request %s closed\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ",")
}
