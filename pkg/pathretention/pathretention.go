// Package pathretention prunes old archives from a destination folder under
// a keep-last-N policy.
//
// Only direct children whose names match the archive naming pattern are
// candidates. Archive names embed a zero-padded timestamp, so sorting them
// by name in descending order is newest-first. Unrelated files that share
// the folder are never touched.
package pathretention

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mythwright/nexus-config-backup/pkg/archivename"
	"github.com/mythwright/nexus-config-backup/pkg/hints"
	"github.com/mythwright/nexus-config-backup/pkg/pathretentionmetrics"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

var (
	// ErrNothingToPrune is returned as a hint when no candidate exceeds the keep count.
	ErrNothingToPrune = errors.New("nothing to prune")
	// ErrDeleteFailed is returned when at least one candidate could not be removed.
	ErrDeleteFailed = errors.New("failed to delete outdated backups")
	// ErrInvalidKeepCount rejects negative keep counts.
	ErrInvalidKeepCount = errors.New("backups to keep must not be negative")
)

const defaultWorkers = 4

// Options configures a Pruner.
type Options struct {
	// Workers bounds concurrent deletions.
	Workers int
	// DryRun logs what would be deleted without deleting it.
	DryRun  bool
	Metrics pathretentionmetrics.Metrics
}

// Result reports what a prune did. Names are base names inside the folder.
type Result struct {
	Kept    []string
	Deleted []string
	Failed  []string
	// Ignored lists entries that do not look like archives.
	Ignored []string
}

// Pruner applies the keep-last-N policy.
type Pruner struct {
	workers int
	dryRun  bool
	metrics pathretentionmetrics.Metrics
}

// NewPruner returns a Pruner for opts.
func NewPruner(opts Options) *Pruner {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	m := opts.Metrics
	if m == nil {
		m = &pathretentionmetrics.NoopMetrics{}
	}
	return &Pruner{workers: workers, dryRun: opts.DryRun, metrics: m}
}

// Prune is a shorthand for NewPruner(Options{}).Prune.
func Prune(ctx context.Context, folder string, keep int) (Result, error) {
	return NewPruner(Options{}).Prune(ctx, folder, keep)
}

// Prune keeps the newest keep archives in folder and deletes the rest. A
// keep of zero deletes every archive. Every candidate is attempted even when
// earlier deletions fail. A missing folder, or a folder with no more than
// keep archives, returns a hint wrapping ErrNothingToPrune.
func (p *Pruner) Prune(ctx context.Context, folder string, keep int) (Result, error) {
	var res Result
	if keep < 0 {
		return res, fmt.Errorf("%w: %d", ErrInvalidKeepCount, keep)
	}

	archives, err := p.listArchives(ctx, folder, &res)
	if err != nil {
		return res, err
	}
	if archives == nil {
		return res, hints.Newf("%s does not exist yet: %w", folder, ErrNothingToPrune)
	}

	// Newest first.
	slices.Sort(archives)
	slices.Reverse(archives)

	if keep > len(archives) {
		keep = len(archives)
	}
	res.Kept = archives[:keep]
	toDelete := archives[keep:]
	p.metrics.AddBackupsKept(int64(len(res.Kept)))

	if len(toDelete) == 0 {
		if p.dryRun {
			plog.Debug("[DRY RUN] No backups need deletion", "path", folder, "kept", len(res.Kept))
		} else {
			plog.Debug("No backups need deletion", "path", folder, "kept", len(res.Kept))
		}
		return res, hints.Wrap(ErrNothingToPrune)
	}

	plog.Info("Deleting outdated backups", "path", folder, "count", len(toDelete), "keep", keep)

	p.metrics.StartProgress("Delete progress", 10*time.Second)
	defer func() {
		p.metrics.StopProgress()
		p.metrics.LogSummary("Delete finished")
	}()

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.workers)

	for _, name := range toDelete {
		if ctx.Err() != nil {
			plog.Debug("Cancellation received, stopping retention job feeding.")
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			ok := p.delete(filepath.Join(folder, name))
			mu.Lock()
			defer mu.Unlock()
			if ok {
				res.Deleted = append(res.Deleted, name)
			} else {
				res.Failed = append(res.Failed, name)
			}
			return nil
		})
	}
	// Workers never return an error; failures are collected in res.
	_ = g.Wait()

	slices.Sort(res.Deleted)
	slices.Sort(res.Failed)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(res.Failed) > 0 {
		return res, fmt.Errorf("%w: %d of %d in %s", ErrDeleteFailed, len(res.Failed), len(toDelete), folder)
	}
	return res, nil
}

// listArchives returns the archive names in folder, or nil if folder does not exist.
func (p *Pruner) listArchives(ctx context.Context, folder string, res *Result) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			plog.Debug("Backup folder does not exist yet, nothing to prune.", "path", folder)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup folder %s: %w", folder, err)
	}

	archives := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if !archivename.Match(name) {
			res.Ignored = append(res.Ignored, name)
			continue
		}
		archives = append(archives, name)
	}
	return archives, nil
}

// delete removes one candidate and reports whether it is gone.
func (p *Pruner) delete(path string) bool {
	if p.dryRun {
		plog.Notice("[DRY RUN] DELETE", "path", path)
		return true
	}

	var size int64
	if info, err := os.Lstat(path); err == nil && !info.IsDir() {
		size = info.Size()
	}

	plog.Notice("DELETE", "path", path)
	if err := os.RemoveAll(path); err != nil {
		p.metrics.AddBackupsFailed(1)
		plog.Warn("Failed to delete outdated backup", "path", path, "error", err)
		return false
	}
	p.metrics.AddBackupsDeleted(1)
	p.metrics.AddBytesFreed(size)
	plog.Notice("DELETED", "path", path)
	return true
}
