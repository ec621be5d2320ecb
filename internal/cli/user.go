package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sololeveling/lifesystem/internal/domain"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserCreateCmd(a), newUserCategoryCmd(a), newUserListCmd(a))
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var role, category string
	cmd := &cobra.Command{
		Use:   "create USERNAME",
		Short: "Create an adventurer, coach or admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			d, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			user, err := d.Engine.Users.Create(ctx, args[0], r, category)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (%s)\n", user.Role, user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "adventurer", "adventurer, coach or admin")
	cmd.Flags().StringVar(&category, "category", "", "field of interest quests are drawn from")
	return cmd
}

func newUserCategoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "category USER CATEGORY",
		Short: "Set an adventurer's category",
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
			if err := d.Engine.Users.SetCategory(ctx, user.ID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now follows %s\n", user.Username, args[1])
			return nil
		},
	}
}

func newUserListCmd(a *app) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r domain.Role
			if role != "" {
				parsed, err := domain.ParseRole(role)
				if err != nil {
					return err
				}
				r = parsed
			}
			ctx := cmd.Context()
			d, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			users, err := d.Engine.Users.List(ctx, r, true)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users. Run 'lifesystem user create <name>' to add one.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tCREATED")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, formatDate(u.CreatedAt))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "filter by role")
	return cmd
}
