package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/mythwright/nexus-config-backup/pkg/archivename"
	"github.com/mythwright/nexus-config-backup/pkg/pathcompression"
)

// archiveInfo is one archive found in the destination folder.
type archiveInfo struct {
	Name string
	Path string
	Size int64
}

// findArchives returns the archives in dir, newest first. A missing folder
// yields no archives.
func findArchives(dir string) ([]archiveInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read destination folder %s: %w", dir, err)
	}

	var found []archiveInfo
	for _, e := range entries {
		if e.IsDir() || !archivename.Match(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, archiveInfo{Name: e.Name(), Path: filepath.Join(dir, e.Name()), Size: info.Size()})
	}
	slices.SortFunc(found, func(a, b archiveInfo) int {
		switch {
		case a.Name > b.Name:
			return -1
		case a.Name < b.Name:
			return 1
		}
		return 0
	})
	return found, nil
}

func newListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [archive]",
		Short: "List archives, or the entries of one archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return listEntries(cmd, args[0])
			}
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

			table := uitable.New()
			table.MaxColWidth = 60
			table.AddRow("ARCHIVE", "CREATED", "SIZE")
			for _, a := range archives {
				created := "?"
				if t, err := archivename.Parse(a.Name); err == nil {
					created = humanize.Time(t)
				}
				table.AddRow(a.Name, created, humanize.IBytes(uint64(a.Size)))
			}
			table.AddRow("", "", "")
			table.AddRow(fmt.Sprintf("%d archive(s), keeping %d", len(archives), cfg.BackupsToKeep), "", "")
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func listEntries(cmd *cobra.Command, archivePath string) error {
	entries, err := pathcompression.List(archivePath)
	if err != nil {
		return err
	}
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("NAME", "SIZE", "PACKED", "MODIFIED")
	for _, e := range entries {
		if e.IsDir {
			table.AddRow(e.Name, "-", "-", e.Modified.Format("2006-01-02 15:04"))
			continue
		}
		table.AddRow(e.Name, humanize.IBytes(e.Size), humanize.IBytes(e.CompressedSize), e.Modified.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(cmd.OutOrStdout(), table)
	return nil
}
