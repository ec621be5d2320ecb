package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sololeveling/lifesystem/internal/domain"
)

func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "sweep daily|weekly",
		Short:     "Run a quest sweep now",
		Long:      `Run the daily expire-and-renew sweep or the weekly generation sweep once, outside the scheduler.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"daily", "weekly"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			var report *domain.SweepReport
			if args[0] == "weekly" {
				report, err = d.Engine.Quests.WeeklySweep(ctx)
			} else {
				report, err = d.Engine.Quests.DailySweep(ctx)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s sweep finished in %s\n", report.Sweep, report.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  expired:   %d\n", report.Expired)
			fmt.Fprintf(out, "  generated: %d of %d\n", report.Generated, report.Candidates)
			fmt.Fprintf(out, "  skipped:   %d\n", report.Skipped)
			fmt.Fprintf(out, "  failed:    %d\n", report.Failed)
			if report.Purged > 0 {
				fmt.Fprintf(out, "  purged:    %d\n", report.Purged)
			}
			for _, e := range report.Errors {
				fmt.Fprintf(out, "  ! %s\n", e)
			}
			return nil
		},
	}
}
