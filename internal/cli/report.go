package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/types"
)

func reportCmd(opts *options) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the dataset overview, agreement summary and leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, opts, func(ctx context.Context, e *env) error {
				rep, err := e.svc.Report(ctx)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rep, top)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&top, "top", 20, "leaderboard rows to show (0 for all)")
	return cmd
}

func printReport(w io.Writer, rep types.Report, top int) {
	bold := color.New(color.Bold)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	bad := color.New(color.FgRed)

	ov := rep.Overview
	fmt.Fprintln(w, bold.Sprint("Dataset"))
	fmt.Fprintf(w, "  items        %d (%s complete, %d in progress, %s retired)\n",
		ov.TotalItems, good.Sprint(ov.CompletedItems), ov.InProgressItems, warn.Sprint(ov.RetiredItems))
	fmt.Fprintf(w, "  judgments    %d\n", ov.Judgments)
	fmt.Fprintf(w, "  reserved now %d\n", ov.ActiveReservations)
	fmt.Fprintf(w, "  workers      %d\n", ov.Workers)

	ag := rep.Agreement
	fmt.Fprintln(w, bold.Sprint("Agreement"))
	avg := fmt.Sprintf("%.4f", ag.AverageScore)
	if ag.AverageScore >= rep.Threshold {
		avg = good.Sprint(avg)
	} else {
		avg = bad.Sprint(avg)
	}
	fmt.Fprintf(w, "  scored sub-items %d, average %s (threshold %.2f, Q=%d)\n", ag.Scored, avg, rep.Threshold, rep.Quota)
	fmt.Fprintf(w, "  accepted %d, low agreement %s, ties %d\n", ag.Accepted, warn.Sprint(ag.LowAgreement), ag.Ties)
	if ag.PooledKappa != nil {
		fmt.Fprintf(w, "  pooled kappa %.4f\n", *ag.PooledKappa)
	}
	fmt.Fprintf(w, "  labels Correct=%d Incorrect=%d Doubt=%d\n",
		ag.Labels[string(model.LabelCorrect)], ag.Labels[string(model.LabelIncorrect)], ag.Labels[string(model.LabelDoubt)])
	fmt.Fprintf(w, "  doubts raised %d, pending edits %d\n", len(rep.Doubts), rep.EditQueue)

	fmt.Fprintln(w, bold.Sprint("Leaderboard"))
	rows := rep.Leaderboard
	if top > 0 && len(rows) > top {
		rows = rows[:top]
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "  (no judgments yet)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  RANK\tWORKER\tITEMS\tJUDGED\tMATCHES\tQUALITY%\tDOUBTS")
	for _, r := range rows {
		fmt.Fprintf(tw, "  %d\t%s\t%d\t%d\t%d\t%.2f\t%d\n",
			r.Rank, r.WorkerID, r.ItemsAudited, r.Judged, r.Matches, r.QualityPct, r.DoubtsRaised)
	}
	_ = tw.Flush()
}
