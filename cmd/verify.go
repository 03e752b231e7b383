package cmd

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mythwright/nexus-config-backup/pkg/pathcompression"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

// errVerifyFailed is returned when at least one archive is corrupt.
var errVerifyFailed = errors.New("one or more archives failed verification")

func newVerifyCommand(opts *globalOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "verify [archive...]",
		Short: "Read archives back and check every entry's checksum",
		Long:  `verify checks the given archives. Without arguments it checks the newest archive in the destination folder, or every archive with --all.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				archives, err := findArchives(cfg.TargetFolder)
				if err != nil {
					return err
				}
				if len(archives) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No backups found in %s\n", cfg.TargetFolder)
					return nil
				}
				if !all {
					archives = archives[:1]
				}
				for _, a := range archives {
					paths = append(paths, a.Path)
				}
			}

			failed := 0
			for _, p := range paths {
				res, err := pathcompression.Verify(cmd.Context(), p)
				if err != nil {
					failed++
					plog.Error("Archive failed verification", "archive", p, "error", err)
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %s: %v\n", p, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK    %s (%d files, %d dirs, %s)\n", p, res.Files, res.Dirs, humanize.IBytes(uint64(res.Bytes)))
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", errVerifyFailed, failed, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Verify every archive in the destination folder")
	return cmd
}
