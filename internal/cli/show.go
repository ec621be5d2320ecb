package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show USER",
		Short: "Show an adventurer's level, XP, streak, stats and achievements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			user, err := resolveUser(ctx, d, args[0])
			if err != nil {
				return err
			}
			view, err := d.Engine.Progression.Progress(ctx, user.ID)
			if err != nil {
				return err
			}
			earned, err := d.Engine.Achievements.Earned(ctx, user.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			category := view.Category
			if category == "" {
				category = "(not set)"
			}
			fmt.Fprintf(out, "Adventurer:   %s\n", user.Username)
			fmt.Fprintf(out, "Category:     %s\n", category)
			fmt.Fprintf(out, "Level:        %d\n", view.Level)
			fmt.Fprintf(out, "XP:           %s\n", xpBar(view.CurrentXP, view.ExpToNextLevel))
			fmt.Fprintf(out, "Total XP:     %d\n", view.TotalXP)
			fmt.Fprintf(out, "Streak:       %s (best %d)\n", plural(view.StreakDays, "day"), view.LongestStreak)
			fmt.Fprintf(out, "Completed:    %s\n", plural(view.Completed, "quest"))

			fmt.Fprintln(out, "\nStats:")
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, s := range view.Stats {
				fmt.Fprintf(w, "  %s\t%s\t%d/%d\n", s.Name, statBar(s.Value, s.Max), s.Value, s.Max)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(out, "\nAchievements (%d/%d):\n", len(earned), len(d.Engine.Achievements.Definitions()))
			if len(earned) == 0 {
				fmt.Fprintln(out, "  none yet")
			}
			for _, e := range earned {
				fmt.Fprintf(out, "  %s %s: %s (%s)\n", e.Icon, e.Name, e.Description, formatDate(e.EarnedAt))
			}
			return nil
		},
	}
}
