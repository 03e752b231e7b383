package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mythwright/nexus-config-backup/pkg/config"
	"github.com/mythwright/nexus-config-backup/pkg/util"
)

func newInitCommand(opts *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with the default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := util.ExpandPath(opts.configPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("settings file %s already exists, use --force to overwrite it", path)
			}

			cfg := config.NewDefault()
			if opts.target != "" {
				cfg.TargetFolder = opts.target
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default settings to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing settings file")
	return cmd
}
