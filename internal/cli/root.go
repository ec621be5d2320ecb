// Package cli implements the Life System command-line interface using Cobra.
// Each subcommand maps to one engine capability (generate, complete, sweep, etc.).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sololeveling/lifesystem/internal/daemon"
)

// app carries state shared by every subcommand.
type app struct {
	cfgPath string
	verbose bool

	cfg daemon.Config
	log *zap.Logger
}

func newRootCmd(version string) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "lifesystem",
		Short: "Life System: daily quests, levels and streaks for real-life habits",
		Long: `Life System turns habits into quests.
Every adventurer gets a fresh batch of daily and weekly quests from their
chosen category; completing them earns XP, levels, stats and achievements.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.init,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "config file (default $LIFESYSTEM_HOME/config.toml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(a),
		newSeedCmd(a),
		newUserCmd(a),
		newGenerateCmd(a),
		newCompleteCmd(a),
		newQuestsCmd(a),
		newSweepCmd(a),
		newShowCmd(a),
		newNotificationsCmd(a),
		newConfigCmd(a),
	)
	return root
}

// init loads the config and builds the logger. One-shot commands only log
// warnings unless --verbose is set.
func (a *app) init(cmd *cobra.Command, args []string) error {
	path := a.cfgPath
	if path == "" {
		path = daemon.ConfigPath()
	}
	cfg, err := daemon.LoadConfigFrom(path)
	if err != nil && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
		// config init must be able to replace a broken file
		cfg, err = daemon.DefaultConfig(), nil
	}
	if err != nil {
		return err
	}
	a.cfg = cfg

	lc := cfg.Logging
	switch {
	case a.verbose:
		lc.Level = "debug"
	case cmd.Name() != "serve":
		lc.Level = "warn"
	}
	log, err := daemon.NewLogger(lc)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.log = log
	return nil
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	if err := newRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
