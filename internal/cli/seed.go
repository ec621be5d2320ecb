package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sololeveling/lifesystem/internal/daemon"
	"github.com/sololeveling/lifesystem/internal/infra/catalog"
)

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [FILE]",
		Short: "Load quest templates from a YAML file (default: the built-in catalog)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Catalog.SeedFile
			if len(args) == 1 {
				path = args[0]
			}
			templates, err := catalog.Load(path)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			d, err := daemon.NewWithConfig(a.cfg, a.log)
			if err != nil {
				return err
			}
			defer d.Close()

			n, err := d.Engine.Catalog.Seed(ctx, templates)
			if err != nil {
				return err
			}
			source := path
			if source == "" {
				source = "built-in catalog"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d templates in %d categories from %s\n",
				n, len(catalog.Categories(templates)), source)
			return nil
		},
	}
}
