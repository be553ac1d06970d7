package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/akalivaty/Artale-drop-bot/pkg/config"
	"github.com/akalivaty/Artale-drop-bot/pkg/logger"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	dataDir    string
	logLevel   string
	cfg        *config.Config
}

// NewRootCmd assembles the command tree. Reports go to stdout, logs to
// stderr.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "dropctl",
		Short:         "Artale drop lookup tool",
		Long:          "Build the item index cache and look up which monsters drop which items.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.dataDir != "" {
				cfg.Data.Dir = opts.dataDir
			}
			logger.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults apply when empty)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "directory holding the JSON documents (overrides data.dir)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(newBuildCmd(opts))
	root.AddCommand(newDropCmd(opts))
	root.AddCommand(newMobCmd(opts))
	root.AddCommand(newRewriteCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	return root
}

// Execute runs the root command against os.Args.
func Execute() error {
	root := NewRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	return root.Execute()
}
