package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/avatarsync/pkg/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the avatarsync configuration file",
	}

	cmd.AddCommand(newConfigInitCmd(opts), newConfigShowCmd(opts))

	return cmd
}

func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			path := opts.configPath
			if path == "" {
				path = config.GetDefaultConfigPath()
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			cfg, logCloser, err := opts.load()
			if err != nil {
				return err
			}
			defer logCloser.Close()

			return writeYAML(cmd.OutOrStdout(), cfg)
		},
	}
}
