package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"satbathy/pkg/config"
)

func ConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Creates or shows configuration files",
	}
	cmd.AddCommand(configInitCommand())
	cmd.AddCommand(configShowCommand())
	return cmd
}

func configInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Writes a configuration file holding the default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "satbathy.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", path)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			log.Info().Str("path", path).Msg("configuration written")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [path]",
		Short: "Prints the effective configuration, defaults filled in",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if len(args) == 1 {
				var err error
				if cfg, err = config.LoadConfig(args[0]); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				log.Warn().Err(err).Msg("configuration is not valid")
			}
			out := yaml.NewEncoder(cmd.OutOrStdout())
			defer out.Close()
			return out.Encode(cfg)
		},
	}
}
