package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mythwright/nexus-config-backup/pkg/buildinfo"
	"github.com/mythwright/nexus-config-backup/pkg/plugin"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def := plugin.AddonDefinition()
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", buildinfo.Name, buildinfo.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "%s by %s (%s)\n", def.Name, def.Author, def.UpdateLink)
			return nil
		},
	}
}
