package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNotificationsCmd(a *app) *cobra.Command {
	var (
		all      bool
		markRead bool
		limit    int
	)
	cmd := &cobra.Command{
		Use:     "notifications USER",
		Aliases: []string{"inbox"},
		Short:   "Show an adventurer's notifications",
		Args:    cobra.ExactArgs(1),
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
			notes, err := d.Engine.Notifications.List(ctx, user.ID, !all, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(notes) == 0 {
				fmt.Fprintln(out, "No notifications.")
				return nil
			}
			for _, n := range notes {
				mark := "*"
				if n.Read {
					mark = " "
				}
				fmt.Fprintf(out, "%s %s  [%s] %s\n    %s\n", mark, formatDate(n.CreatedAt), n.Type, n.Title, n.Message)
				if markRead && !n.Read {
					if err := d.Engine.Notifications.MarkRead(ctx, user.ID, n.ID); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include read notifications")
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "mark the listed notifications read")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum notifications to show")
	return cmd
}
