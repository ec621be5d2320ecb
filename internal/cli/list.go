package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sololeveling/lifesystem/internal/app/engagement"
	"github.com/sololeveling/lifesystem/internal/domain"
)

func newQuestsCmd(a *app) *cobra.Command {
	var (
		questType string
		all       bool
	)
	cmd := &cobra.Command{
		Use:     "quests USER",
		Aliases: []string{"ls"},
		Short:   "List an adventurer's quests",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var qt domain.QuestType
			if questType != "" {
				parsed, err := domain.ParseQuestType(questType)
				if err != nil {
					return err
				}
				qt = parsed
			}

			d, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			user, err := resolveUser(ctx, d, args[0])
			if err != nil {
				return err
			}
			quests, err := d.Engine.Quests.List(ctx, user.ID, qt, !all)
			if err != nil {
				return err
			}

			if len(quests) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No active quests. Run 'lifesystem generate %s' to get started.\n", user.Username)
				return nil
			}
			return printQuests(cmd, quests)
		},
	}
	cmd.Flags().StringVarP(&questType, "type", "t", "", "daily or weekly (default all)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include completed and expired quests")
	return cmd
}

func printQuests(cmd *cobra.Command, quests []domain.AssignedQuest) error {
	now := time.Now()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tTITLE\tXP\tSTATE\tEXPIRES")
	for _, q := range quests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			q.ID,
			q.QuestType,
			q.Title,
			engagement.RewardFor(&q),
			q.State(now),
			formatDate(q.ExpiresAt),
		)
	}
	return w.Flush()
}
