package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mythwright/nexus-config-backup/pkg/buildinfo"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.BackupsToKeep != 5 {
		t.Errorf("expected 5 backups to keep by default, got %d", cfg.BackupsToKeep)
	}
	if cfg.BackupOnLaunch || cfg.DeleteOldOnLaunch {
		t.Error("expected launch flags to be off by default")
	}
	if filepath.Base(cfg.TargetFolder) != DefaultTargetDirName {
		t.Errorf("expected default target to end in %q, got %q", DefaultTargetDirName, cfg.TargetFolder)
	}
	if cfg.Compression.Method != "store" {
		t.Errorf("expected store compression by default, got %q", cfg.Compression.Method)
	}
	if len(cfg.Filter.ExcludeDirSubstrings) != 1 || cfg.Filter.ExcludeDirSubstrings[0] != "common" {
		t.Errorf("unexpected default dir exclusions: %v", cfg.Filter.ExcludeDirSubstrings)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	newValidConfig := func(t *testing.T) Config {
		cfg := NewDefault()
		cfg.TargetFolder = t.TempDir()
		return cfg
	}

	t.Run("Valid Config", func(t *testing.T) {
		cfg := newValidConfig(t)
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config to pass validation, but got error: %v", err)
		}
	})

	t.Run("Empty Target Folder", func(t *testing.T) {
		cfg := newValidConfig(t)
		cfg.TargetFolder = "  "
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for empty target folder, but got nil")
		}
	})

	t.Run("Target Folder Is Cleaned", func(t *testing.T) {
		cfg := newValidConfig(t)
		base := cfg.TargetFolder
		cfg.TargetFolder = base + string(filepath.Separator) + "sub" + string(filepath.Separator) + ".."
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.TargetFolder != base {
			t.Errorf("expected cleaned target %q, got %q", base, cfg.TargetFolder)
		}
	})

	t.Run("Tilde Is Expanded", func(t *testing.T) {
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}
		cfg := newValidConfig(t)
		cfg.TargetFolder = "~/nexus-configs"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.TargetFolder != filepath.Join(home, "nexus-configs") {
			t.Errorf("expected expanded target, got %q", cfg.TargetFolder)
		}
	})

	t.Run("Negative BackupsToKeep", func(t *testing.T) {
		cfg := newValidConfig(t)
		cfg.BackupsToKeep = -1
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for negative backups_to_keep, but got nil")
		}
	})

	t.Run("Zero BackupsToKeep Is Allowed", func(t *testing.T) {
		cfg := newValidConfig(t)
		cfg.BackupsToKeep = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected keep 0 to be valid, got %v", err)
		}
	})

	t.Run("Invalid Compression Method", func(t *testing.T) {
		cfg := newValidConfig(t)
		cfg.Compression.Method = "rar"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for invalid compression method, but got nil")
		}
	})

	t.Run("Invalid Compression Level", func(t *testing.T) {
		cfg := newValidConfig(t)
		cfg.Compression.Level = "ultra"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for invalid compression level, but got nil")
		}
	})

	t.Run("Invalid Log Level", func(t *testing.T) {
		cfg := newValidConfig(t)
		cfg.LogLevel = "chatty"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for invalid log level, but got nil")
		}
	})

	t.Run("Invalid DeleteWorkers", func(t *testing.T) {
		cfg := newValidConfig(t)
		cfg.Engine.DeleteWorkers = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for zero delete workers, but got nil")
		}
	})

	t.Run("Invalid BufferSizeKB", func(t *testing.T) {
		cfg := newValidConfig(t)
		cfg.Engine.BufferSizeKB = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for zero buffer size, but got nil")
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("Missing File Returns Defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), ConfigFileName))
		if err != nil {
			t.Fatalf("expected no error for missing file, got %v", err)
		}
		if cfg.BackupsToKeep != NewDefault().BackupsToKeep {
			t.Errorf("expected default keep count, got %d", cfg.BackupsToKeep)
		}
	})

	t.Run("Empty File Returns Defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		if err := os.WriteFile(path, []byte("  \n"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("expected no error for empty file, got %v", err)
		}
		if cfg.Engine.DeleteWorkers != 4 {
			t.Errorf("expected default delete workers, got %d", cfg.Engine.DeleteWorkers)
		}
	})

	t.Run("Partial JSON Keeps Defaults For Missing Fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		content := `{"backups_to_keep": 2, "backup_on_launch": true}`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.BackupsToKeep != 2 {
			t.Errorf("expected keep 2 from file, got %d", cfg.BackupsToKeep)
		}
		if !cfg.BackupOnLaunch {
			t.Error("expected backup_on_launch from file")
		}
		if cfg.Compression.Method != "store" {
			t.Errorf("expected default compression to survive, got %q", cfg.Compression.Method)
		}
		if cfg.Engine.BufferSizeKB != 256 {
			t.Errorf("expected default buffer size to survive, got %d", cfg.Engine.BufferSizeKB)
		}
	})

	t.Run("YAML By Extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nexus-backup.yaml")
		content := "backups_to_keep: 7\ncompression:\n  method: zstd\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.BackupsToKeep != 7 || cfg.Compression.Method != "zstd" {
			t.Errorf("unexpected yaml values: keep=%d method=%q", cfg.BackupsToKeep, cfg.Compression.Method)
		}
		if cfg.Compression.Level != "default" {
			t.Errorf("expected default level to survive, got %q", cfg.Compression.Level)
		}
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		if err := os.WriteFile(path, []byte(`{"backups_to_keep": `), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected error for malformed json, but got nil")
		}
	})

	t.Run("Version Is Overwritten", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		if err := os.WriteFile(path, []byte(`{"version": "0.0.0"}`), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Version != buildinfo.Version {
			t.Errorf("expected version %q, got %q", buildinfo.Version, cfg.Version)
		}
	})
}

func TestFileStore_RoundTrip(t *testing.T) {
	for _, name := range []string{ConfigFileName, "nexus-backup.yml"} {
		t.Run(name, func(t *testing.T) {
			store := NewFileStore(filepath.Join(t.TempDir(), "nested", name))

			cfg := NewDefault()
			cfg.TargetFolder = "/backups/nexus"
			cfg.BackupsToKeep = 0
			cfg.DeleteOldOnLaunch = true
			cfg.Compression.Method = "deflate"
			cfg.Filter.ExcludeFileSubstrings = []string{".dll", ".exe"}

			if err := store.Save(cfg); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got, err := store.Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got.TargetFolder != cfg.TargetFolder {
				t.Errorf("target: got %q, want %q", got.TargetFolder, cfg.TargetFolder)
			}
			if got.BackupsToKeep != 0 {
				t.Errorf("expected keep 0 to survive the round trip, got %d", got.BackupsToKeep)
			}
			if !got.DeleteOldOnLaunch {
				t.Error("expected delete_old_on_launch to survive the round trip")
			}
			if got.Compression.Method != "deflate" {
				t.Errorf("method: got %q", got.Compression.Method)
			}
			if len(got.Filter.ExcludeFileSubstrings) != 2 {
				t.Errorf("file exclusions: got %v", got.Filter.ExcludeFileSubstrings)
			}

			entries, err := os.ReadDir(filepath.Dir(store.Path))
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 {
				t.Errorf("expected only the config file after save, found %d entries", len(entries))
			}
		})
	}
}

func TestFileStore_ReadsFreshEachTime(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), ConfigFileName))

	first := NewDefault()
	first.BackupsToKeep = 1
	if err := store.Save(first); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.Load(); got.BackupsToKeep != 1 {
		t.Fatalf("expected 1, got %d", got.BackupsToKeep)
	}

	if err := os.WriteFile(store.Path, []byte(`{"backups_to_keep": 9}`), 0644); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.Load(); got.BackupsToKeep != 9 {
		t.Errorf("expected edit on disk to be picked up, got %d", got.BackupsToKeep)
	}
}
