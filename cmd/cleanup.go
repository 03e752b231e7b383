package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mythwright/nexus-config-backup/pkg/buildinfo"
	"github.com/mythwright/nexus-config-backup/pkg/engine"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

func newCleanupCommand(opts *globalOptions) *cobra.Command {
	var (
		dryRun bool
		keep   int
	)
	cmd := &cobra.Command{
		Use:     "cleanup",
		Aliases: []string{"prune"},
		Short:   "Delete all but the newest archives",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("keep") {
				cfg.BackupsToKeep = keep
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			cfg.Runtime.DryRun = dryRun
			cfg.LogSummary()

			e := engine.New(engine.Options{Metrics: runMetrics(cfg.Engine.Metrics)})
			defer e.Close()

			res, err := e.CleanupOldBackups(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			plog.Info(buildinfo.Name+" cleanup finished successfully.",
				"kept", len(res.Kept),
				"deleted", len(res.Deleted),
				"dry_run", dryRun)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be deleted without deleting anything")
	cmd.Flags().IntVarP(&keep, "keep", "k", 0, "Override the number of archives to keep")
	return cmd
}
