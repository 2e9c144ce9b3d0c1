package main

import (
	"github.com/spf13/cobra"

	"AgentFlow/internal/config"
	"AgentFlow/pkg/logger"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "agentd",
		Short:         "Agentic task runner that splits queries into tool-backed steps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.Resolve(opts.configPath))
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Log); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return logger.Sync()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to a YAML or JSON config file (defaults to $"+config.EnvConfigPath+")")

	cmd.AddCommand(newServeCommand(opts), newRunCommand(opts))
	return cmd
}
