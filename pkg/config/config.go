package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mythwright/nexus-config-backup/pkg/buildinfo"
	"github.com/mythwright/nexus-config-backup/pkg/pathcompression"
	"github.com/mythwright/nexus-config-backup/pkg/pathfilter"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
	"github.com/mythwright/nexus-config-backup/pkg/util"
)

// ConfigFileName is the default name of the settings file.
const ConfigFileName = "nexus-backup.config.json"

// DefaultTargetDirName is the folder created under the user's documents.
const DefaultTargetDirName = "nexus-configs"

type CompressionConfig struct {
	Method string `json:"method" yaml:"method"`
	Level  string `json:"level" yaml:"level"`
}

type EngineConfig struct {
	Metrics       bool `json:"metrics" yaml:"metrics"`
	DeleteWorkers int  `json:"delete_workers" yaml:"delete_workers"`
	BufferSizeKB  int  `json:"buffer_size_kb" yaml:"buffer_size_kb"`
}

type FilterConfig struct {
	// Note: omitempty is intentionally not used so that the rules
	// appear in the generated config file for better discoverability.
	ExcludeDirSubstrings  []string `json:"exclude_dir_substrings" yaml:"exclude_dir_substrings"`
	ExcludeFileSubstrings []string `json:"exclude_file_substrings" yaml:"exclude_file_substrings"`
}

// RuntimeConfig holds settings that only come from flags and never hit the file.
type RuntimeConfig struct {
	DryRun bool
}

// Config is one immutable snapshot of the backup settings. The host reloads
// it for every operation, so edits on disk apply to the next run.
type Config struct {
	Version           string            `json:"version" yaml:"version"`
	TargetFolder      string            `json:"target_folder" yaml:"target_folder"`
	BackupOnLaunch    bool              `json:"backup_on_launch" yaml:"backup_on_launch"`
	DeleteOldOnLaunch bool              `json:"delete_old_on_launch" yaml:"delete_old_on_launch"`
	BackupsToKeep     int               `json:"backups_to_keep" yaml:"backups_to_keep"`
	LogLevel          string            `json:"log_level" yaml:"log_level"`
	Compression       CompressionConfig `json:"compression" yaml:"compression"`
	Engine            EngineConfig      `json:"engine" yaml:"engine"`
	Filter            FilterConfig      `json:"filter" yaml:"filter"`
	Runtime           RuntimeConfig     `json:"-" yaml:"-"`
}

// DefaultTargetFolder returns <user documents>/nexus-configs.
func DefaultTargetFolder() string {
	docs, err := util.DocumentsDir()
	if err != nil {
		return filepath.Join("~", "Documents", DefaultTargetDirName)
	}
	return filepath.Join(docs, DefaultTargetDirName)
}

// NewDefault returns a Config with the documented defaults.
func NewDefault() Config {
	rules := pathfilter.DefaultRules()
	return Config{
		Version:           buildinfo.Version,
		TargetFolder:      DefaultTargetFolder(),
		BackupOnLaunch:    false,
		DeleteOldOnLaunch: false,
		BackupsToKeep:     5,
		LogLevel:          "info",
		Compression: CompressionConfig{
			Method: string(pathcompression.Store), // Fast and crash-friendly.
			Level:  string(pathcompression.Default),
		},
		Engine: EngineConfig{
			Metrics:       true,
			DeleteWorkers: 4,
			BufferSizeKB:  256, // Keep it between 64KB-4MB
		},
		Filter: FilterConfig{
			ExcludeDirSubstrings:  rules.DirSubstrings,
			ExcludeFileSubstrings: rules.FileSubstrings,
		},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the settings file at path on top of the defaults, so fields
// missing from the file keep their default value. A missing file is not an
// error and yields NewDefault().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			plog.Debug("No configuration file, using defaults", "path", path)
			return NewDefault(), nil
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", path, err)
	}

	cfg := NewDefault()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	cfg.Version = buildinfo.Version
	return cfg, nil
}

// Save writes cfg to path atomically. The format follows the file extension.
func Save(path string, cfg Config) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", path)
	return nil
}

// Validate checks the settings and normalizes TargetFolder to a clean,
// tilde-expanded path.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TargetFolder) == "" {
		return fmt.Errorf("target_folder cannot be empty")
	}

	target, err := util.ExpandPath(c.TargetFolder)
	if err != nil {
		return fmt.Errorf("could not expand target folder: %w", err)
	}
	c.TargetFolder = filepath.Clean(target)

	if c.BackupsToKeep < 0 {
		return fmt.Errorf("backups_to_keep cannot be negative")
	}
	if _, err := plog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := pathcompression.ParseMethod(c.Compression.Method); err != nil {
		return err
	}
	if _, err := pathcompression.ParseLevel(c.Compression.Level); err != nil {
		return err
	}
	if c.Engine.DeleteWorkers < 1 {
		return fmt.Errorf("engine.delete_workers must be at least 1")
	}
	if c.Engine.BufferSizeKB <= 0 {
		return fmt.Errorf("engine.buffer_size_kb must be greater than 0")
	}
	return nil
}

// FilterRules returns the path filter rules for this config.
func (c *Config) FilterRules() pathfilter.Rules {
	return pathfilter.Rules{
		DirSubstrings:  c.Filter.ExcludeDirSubstrings,
		FileSubstrings: c.Filter.ExcludeFileSubstrings,
	}
}

// LogSummary logs the effective settings.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"target", c.TargetFolder,
		"backups_to_keep", c.BackupsToKeep,
		"backup_on_launch", c.BackupOnLaunch,
		"delete_old_on_launch", c.DeleteOldOnLaunch,
		"log_level", c.LogLevel,
		"compression", fmt.Sprintf("%s (l:%s)", c.Compression.Method, c.Compression.Level),
		"delete_workers", c.Engine.DeleteWorkers,
		"buffer_size_kb", c.Engine.BufferSizeKB,
		"metrics", c.Engine.Metrics,
	}
	if c.Runtime.DryRun {
		logArgs = append(logArgs, "dry_run", true)
	}
	plog.Info("Configuration loaded", logArgs...)
}

// FileStore persists Config in a single file. It satisfies the host's
// settings-persistence contract.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the file fresh on every call.
func (s *FileStore) Load() (Config, error) {
	return Load(s.Path)
}

// Save replaces the file with cfg.
func (s *FileStore) Save(cfg Config) error {
	return Save(s.Path, cfg)
}
