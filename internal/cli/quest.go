package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sololeveling/lifesystem/internal/domain"
)

func newGenerateCmd(a *app) *cobra.Command {
	var questType string
	cmd := &cobra.Command{
		Use:   "generate USER",
		Short: "Replace an adventurer's live quests with a fresh batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qt, err := domain.ParseQuestType(questType)
			if err != nil {
				return err
			}
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
			res, err := d.Engine.Quests.Generate(ctx, user.ID, qt)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %d %s quests for %s", len(res.Quests), qt, user.Username)
			if res.Cleared > 0 {
				fmt.Fprintf(out, " (replaced %d)", res.Cleared)
			}
			fmt.Fprintln(out)
			if res.Fallback {
				fmt.Fprintln(out, "The catalog had nothing to offer; using generic quests.")
			}
			return printQuests(cmd, res.Quests)
		},
	}
	cmd.Flags().StringVarP(&questType, "type", "t", "daily", "daily or weekly")
	return cmd
}

func newCompleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "complete USER QUEST_ID",
		Short: "Complete a quest and collect its XP",
		Args:  cobra.ExactArgs(2),
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
			res, err := d.Engine.Progression.Complete(ctx, user.ID, args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Quest complete! +%d XP\n", res.XPGained)
			if res.LeveledUp {
				fmt.Fprintf(out, "LEVEL UP! %d → %d\n", res.PreviousLevel, res.NewLevel)
			}
			fmt.Fprintf(out, "Level %d  %s\n", res.NewLevel, xpBar(res.CurrentXP, res.ExpToNextLevel))
			if res.StatIncreased != "" {
				fmt.Fprintf(out, "%s +1\n", res.StatIncreased)
			}
			streak := fmt.Sprintf("Streak: %s", plural(res.Streak.Current, "day"))
			if res.Streak.IsNewRecord {
				streak += " (new record)"
			}
			fmt.Fprintln(out, streak)
			for _, ach := range res.NewAchievements {
				fmt.Fprintf(out, "Achievement unlocked: %s %s\n", ach.Icon, ach.Name)
			}
			return nil
		},
	}
}
