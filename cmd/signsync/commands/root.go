// Package commands implements the signsync CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/signsync/config"
	"github.com/c0deZ3R0/signsync/logging"
)

type rootOptions struct {
	configPath string
	cfg        config.Config
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree. Each call returns independent state.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "signsync",
		Short:         "Shared sign type sync for project apps",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			cfg.Logging.Output = cmd.ErrOrStderr()
			logging.Init(cfg.Logging)
			logging.Default().Debug("logging configured", "config", cfg.Logging.String(), "config_file", opts.configPath)
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML or JSON config file (SIGNSYNC_* variables override it)")

	root.AddCommand(demoCmd(opts), configCmd(opts), journalCmd(opts))
	return root
}
