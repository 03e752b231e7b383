// Package cmd implements the nexus-backup command line. It is a standalone
// host for the backup engine: the source folder comes from a flag instead of
// the plugin host, and settings come from the same config file.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mythwright/nexus-config-backup/pkg/buildinfo"
	"github.com/mythwright/nexus-config-backup/pkg/config"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
	"github.com/mythwright/nexus-config-backup/pkg/util"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFile    string
	target     string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	var logFile *lumberjack.Logger

	root := &cobra.Command{
		Use:           "nexus-backup",
		Short:         "Back up an add-on folder into timestamped zip archives",
		Long:          `nexus-backup snapshots a folder into backup-YYYY-MM-DD-HH-mm.zip archives and prunes old archives, keeping the newest N.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logFile != "" {
				path, err := util.ExpandPath(opts.logFile)
				if err != nil {
					return err
				}
				logFile = &lumberjack.Logger{
					Filename:   path,
					MaxSize:    10, // MB
					MaxBackups: 3,
					Compress:   true,
				}
				plog.SetOutput(logFile)
			}
			if opts.logLevel != "" {
				lvl, err := plog.ParseLevel(opts.logLevel)
				if err != nil {
					return err
				}
				plog.SetLevel(lvl)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logFile != nil {
				plog.SetOutput(os.Stderr)
				return logFile.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Path to the settings file (.json, .yaml or .yml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override the log level: 'debug', 'notice', 'info', 'warn', 'error' or 'critical'")
	flags.StringVar(&opts.logFile, "log-file", "", "Write logs to a rotated file instead of the console")
	flags.StringVarP(&opts.target, "target", "t", "", "Override the destination folder from the settings file")

	root.AddCommand(
		newBackupCommand(opts),
		newCleanupCommand(opts),
		newRunCommand(opts),
		newListCommand(opts),
		newVerifyCommand(opts),
		newInitCommand(opts),
		newScheduleCommand(opts),
		newVersionCommand(),
	)
	return root
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return config.ConfigFileName
	}
	return filepath.Join(dir, "nexus-backup", config.ConfigFileName)
}

// loadConfig reads the settings file and applies the flag overrides. The
// result is validated.
func (o *globalOptions) loadConfig() (config.Config, error) {
	path, err := util.ExpandPath(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if o.target != "" {
		cfg.TargetFolder = o.target
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	if lvl, err := plog.ParseLevel(cfg.LogLevel); err == nil {
		plog.SetLevel(lvl)
	}
	return cfg, nil
}

// resolveSource expands and absolutizes the source folder flag.
func resolveSource(source string) (string, error) {
	if source == "" {
		return "", fmt.Errorf("the --source flag is required")
	}
	expanded, err := util.ExpandPath(source)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("could not determine absolute source path for %s: %w", source, err)
	}
	return abs, nil
}
