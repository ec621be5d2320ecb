package cli

import (
	"github.com/spf13/cobra"

	"github.com/sololeveling/lifesystem/internal/daemon"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host        string
		port        int
		noScheduler bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Life System API server and sweep scheduler",
		Long:  `Start the REST API (default 127.0.0.1:7770) and the daily and weekly quest sweeps.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Override config from flags
			if host != "" {
				a.cfg.API.Host = host
			}
			if port > 0 {
				a.cfg.API.Port = port
			}
			if noScheduler {
				a.cfg.Scheduler.Enabled = false
			}

			d, err := daemon.NewWithConfig(a.cfg, a.log)
			if err != nil {
				return err
			}
			return d.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Host to listen on (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides config)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run the daily and weekly sweeps")
	return cmd
}
