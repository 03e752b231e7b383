package pathretention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"github.com/mythwright/nexus-config-backup/pkg/hints"
	"github.com/mythwright/nexus-config-backup/pkg/pathretentionmetrics"
)

// createArchives creates empty files with the given names in dir.
func createArchives(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
}

func remaining(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names
}

func tenDailyArchives() []string {
	var names []string
	for day := 1; day <= 10; day++ {
		names = append(names, fmt.Sprintf("backup-2024-01-%02d-00-00", day))
	}
	return names
}

func TestPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	createArchives(t, dir, tenDailyArchives()...)

	m := &pathretentionmetrics.RetentionMetrics{}
	res, err := NewPruner(Options{Workers: 2, Metrics: m}).Prune(context.Background(), dir, 3)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	want := []string{"backup-2024-01-08-00-00", "backup-2024-01-09-00-00", "backup-2024-01-10-00-00"}
	if got := remaining(t, dir); !slices.Equal(got, want) {
		t.Errorf("expected %v to remain, got %v", want, got)
	}
	if len(res.Deleted) != 7 {
		t.Errorf("expected 7 deletions, got %d", len(res.Deleted))
	}
	if res.Kept[0] != "backup-2024-01-10-00-00" {
		t.Errorf("expected newest archive first in Kept, got %q", res.Kept[0])
	}
	if got := m.BackupsDeleted.Load(); got != 7 {
		t.Errorf("expected BackupsDeleted to be 7, got %d", got)
	}
}

func TestPruneKeepZeroDeletesAllArchives(t *testing.T) {
	dir := t.TempDir()
	createArchives(t, dir, tenDailyArchives()...)
	createArchives(t, dir, "backup-2024-02-01-10-30.zip", "notes.txt", "backup-old.zip")

	res, err := Prune(context.Background(), dir, 0)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	want := []string{"backup-old.zip", "notes.txt"}
	if got := remaining(t, dir); !slices.Equal(got, want) {
		t.Errorf("expected only unrelated files %v to remain, got %v", want, got)
	}
	if len(res.Kept) != 0 {
		t.Errorf("expected nothing kept, got %v", res.Kept)
	}
	if len(res.Ignored) != 2 {
		t.Errorf("expected 2 ignored entries, got %v", res.Ignored)
	}
}

func TestPruneRemovesArchiveDirectories(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "backup-2024-01-01-00-00", "inner")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	createArchives(t, nested, "file.txt")
	createArchives(t, dir, "backup-2024-01-02-00-00.zip")

	if _, err := Prune(context.Background(), dir, 1); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if got := remaining(t, dir); !slices.Equal(got, []string{"backup-2024-01-02-00-00.zip"}) {
		t.Errorf("expected archive directory to be removed, got %v", got)
	}
}

func TestPruneNothingToDo(t *testing.T) {
	t.Run("Missing folder is a hint", func(t *testing.T) {
		_, err := Prune(context.Background(), filepath.Join(t.TempDir(), "missing"), 3)
		if !hints.Is(err, ErrNothingToPrune) {
			t.Errorf("expected a nothing-to-prune hint, got %v", err)
		}
	})

	t.Run("Fewer archives than keep is a hint", func(t *testing.T) {
		dir := t.TempDir()
		createArchives(t, dir, "backup-2024-01-01-00-00.zip")
		res, err := Prune(context.Background(), dir, 5)
		if !hints.Is(err, ErrNothingToPrune) {
			t.Errorf("expected a nothing-to-prune hint, got %v", err)
		}
		if len(res.Kept) != 1 {
			t.Errorf("expected 1 kept archive, got %v", res.Kept)
		}
	})
}

func TestPruneRejectsNegativeKeep(t *testing.T) {
	_, err := Prune(context.Background(), t.TempDir(), -1)
	if !errors.Is(err, ErrInvalidKeepCount) {
		t.Errorf("expected ErrInvalidKeepCount, got %v", err)
	}
}

func TestPruneDryRun(t *testing.T) {
	dir := t.TempDir()
	createArchives(t, dir, tenDailyArchives()...)

	res, err := NewPruner(Options{DryRun: true}).Prune(context.Background(), dir, 3)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if got := remaining(t, dir); len(got) != 10 {
		t.Errorf("expected dry run to delete nothing, %d files remain", len(got))
	}
	if len(res.Deleted) != 7 {
		t.Errorf("expected dry run to report 7 deletions, got %d", len(res.Deleted))
	}
}

func TestPruneContinuesAfterFailure(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	dir := t.TempDir()
	createArchives(t, dir, tenDailyArchives()...)

	// A read-only archive directory with content cannot be emptied.
	locked := filepath.Join(dir, "backup-2024-01-00-00-00")
	if err := os.MkdirAll(locked, 0755); err != nil {
		t.Fatal(err)
	}
	createArchives(t, locked, "payload")
	if err := os.Chmod(locked, 0555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })

	m := &pathretentionmetrics.RetentionMetrics{}
	res, err := NewPruner(Options{Workers: 1, Metrics: m}).Prune(context.Background(), dir, 3)
	if !errors.Is(err, ErrDeleteFailed) {
		t.Fatalf("expected ErrDeleteFailed, got %v", err)
	}
	if !slices.Equal(res.Failed, []string{"backup-2024-01-00-00-00"}) {
		t.Errorf("expected the locked archive to fail, got %v", res.Failed)
	}
	if len(res.Deleted) != 7 {
		t.Errorf("expected the other 7 candidates to be deleted, got %d", len(res.Deleted))
	}
	if got := m.BackupsFailed.Load(); got != 1 {
		t.Errorf("expected BackupsFailed to be 1, got %d", got)
	}
}
