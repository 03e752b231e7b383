package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mythwright/nexus-config-backup/pkg/buildinfo"
	"github.com/mythwright/nexus-config-backup/pkg/engine"
	"github.com/mythwright/nexus-config-backup/pkg/metrics"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

func newBackupCommand(opts *globalOptions) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write one archive of the source folder",
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
			cfg.LogSummary()

			e := engine.New(engine.Options{Metrics: runMetrics(cfg.Engine.Metrics)})
			defer e.Close()

			res, err := e.RunBackup(cmd.Context(), cfg, src)
			if err != nil {
				return err
			}
			plog.Info(buildinfo.Name+" backup finished successfully.",
				"archive", res.ArchivePath,
				"size", humanize.IBytes(uint64(res.Size)),
				"duration", res.Elapsed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "Folder to back up")
	return cmd
}

func runMetrics(enabled bool) metrics.Metrics {
	if !enabled {
		return &metrics.NoopMetrics{}
	}
	return metrics.NewRunMetrics()
}
