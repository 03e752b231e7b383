package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mythwright/nexus-config-backup/pkg/engine"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

func newRunCommand(opts *globalOptions) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the launch behaviour selected in the settings file",
		Long:  `run does what the add-on does when the host starts: a backup if backup_on_launch is set, then a cleanup if delete_old_on_launch is set.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := resolveSource(source)
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.BackupOnLaunch && !cfg.DeleteOldOnLaunch {
				plog.Info("Neither backup_on_launch nor delete_old_on_launch is set, nothing to do.")
				return nil
			}

			m := runMetrics(cfg.Engine.Metrics)
			e := engine.New(engine.Options{Metrics: m})
			defer e.Close()

			_, err = e.Launch(cfg, src).Wait(cmd.Context())
			m.Log()
			return err
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "Folder to back up")
	return cmd
}
