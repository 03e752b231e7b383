// Package engine runs backups and retention against one destination folder
// at a time.
//
// Every operation receives the configuration it should use; the engine keeps
// no settings between calls. Work that mutates a destination folder is
// serialized per folder twice over: an in-process keyed mutex orders the
// engine's own tasks, and a lock file in the folder keeps other processes
// out. Concurrent cleanup requests for one folder are coalesced into a
// single prune.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
	"golang.org/x/sync/singleflight"

	"github.com/mythwright/nexus-config-backup/pkg/archivename"
	"github.com/mythwright/nexus-config-backup/pkg/buildinfo"
	"github.com/mythwright/nexus-config-backup/pkg/config"
	"github.com/mythwright/nexus-config-backup/pkg/hints"
	"github.com/mythwright/nexus-config-backup/pkg/lockfile"
	"github.com/mythwright/nexus-config-backup/pkg/metrics"
	"github.com/mythwright/nexus-config-backup/pkg/pathcompression"
	"github.com/mythwright/nexus-config-backup/pkg/pathcompressionmetrics"
	"github.com/mythwright/nexus-config-backup/pkg/pathfilter"
	"github.com/mythwright/nexus-config-backup/pkg/pathretention"
	"github.com/mythwright/nexus-config-backup/pkg/pathretentionmetrics"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
	"github.com/mythwright/nexus-config-backup/pkg/preflight"
	"github.com/mythwright/nexus-config-backup/pkg/snapshot"
)

var (
	// ErrSourceUnreadable means the source root could not be read.
	ErrSourceUnreadable = errors.New("source unreadable")
	// ErrDestinationUnwritable means the destination folder or the archive file could not be created.
	ErrDestinationUnwritable = errors.New("destination unwritable")
	// ErrArchiveWriteFailure means an archive was aborted part way through.
	ErrArchiveWriteFailure = errors.New("archive write failure")
	// ErrDeletionFailure means at least one outdated archive could not be deleted.
	ErrDeletionFailure = errors.New("deletion failure")
	// ErrClosed is returned for work submitted after Close.
	ErrClosed = errors.New("engine is closed")
)

// ArchiveExt is the extension of every archive the engine writes.
const ArchiveExt = ".zip"

// Options configures an Engine.
type Options struct {
	// Clock names archives. Nil means the wall clock.
	Clock clock.Clock
	// Metrics receives one observation per finished operation. Nil disables it.
	Metrics metrics.Metrics
	// ProgressInterval enables periodic progress logs for long runs.
	ProgressInterval time.Duration
}

// BackupResult describes a finished backup.
type BackupResult struct {
	ArchivePath string
	Files       int64
	Dirs        int64
	Excluded    int64
	Unreadable  int64
	Size        int64
	Elapsed     time.Duration
}

// CleanupResult describes a finished cleanup.
type CleanupResult = pathretention.Result

// Engine runs backup and cleanup operations.
type Engine struct {
	clock            clock.Clock
	locker           *lockfile.Locker
	metrics          metrics.Metrics
	progressInterval time.Duration

	folders  *kmutex.Kmutex
	cleanups singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	tasks  sync.WaitGroup
}

// New returns an Engine ready to accept work.
func New(opts Options) *Engine {
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	m := opts.Metrics
	if m == nil {
		m = &metrics.NoopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		clock:            clk,
		locker:           lockfile.NewLocker(buildinfo.Name, clk),
		metrics:          m,
		progressInterval: opts.ProgressInterval,
		folders:          kmutex.New(),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// RunBackup writes one archive of sourceRoot into cfg.TargetFolder and
// blocks until it is on disk under its final name.
func (e *Engine) RunBackup(ctx context.Context, cfg config.Config, sourceRoot string) (BackupResult, error) {
	start := e.clock.Now()
	res, err := e.runBackup(ctx, cfg, sourceRoot)
	res.Elapsed = e.clock.Now().Sub(start)

	switch {
	case err == nil:
		e.metrics.ObserveBackup(metrics.OutcomeSuccess, res.Elapsed, res.Size)
	case hints.IsHint(err):
		e.metrics.ObserveBackup(metrics.OutcomeSkipped, res.Elapsed, 0)
	default:
		e.metrics.ObserveBackup(metrics.OutcomeFailure, res.Elapsed, 0)
	}
	return res, err
}

func (e *Engine) runBackup(ctx context.Context, cfg config.Config, sourceRoot string) (BackupResult, error) {
	var res BackupResult

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := cfg.Validate(); err != nil {
		return res, fmt.Errorf("invalid configuration: %w", err)
	}

	absSource, err := filepath.Abs(sourceRoot)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	if err := preflight.CheckSourceAccessible(absSource); err != nil {
		plog.Error("Source folder is not readable", "source", absSource, "error", err)
		return res, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}

	dest := cfg.TargetFolder
	if err := preflight.CheckDestinationAccessible(dest); err != nil {
		plog.Critical("Destination folder is not usable", "target", dest, "error", err)
		return res, fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	}
	if err := preflight.EnsureDestination(dest); err != nil {
		plog.Critical("Could not create destination folder", "target", dest, "error", err)
		return res, fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	}
	if free, err := preflight.FreeSpace(dest); err == nil {
		plog.Debug("Destination free space", "target", dest, "free", humanize.IBytes(free))
	}

	release, err := e.acquireFolder(ctx, dest, "backup")
	if err != nil {
		return res, err
	}
	defer release()

	filter := pathfilter.New(cfg.FilterRules())
	absDest, err := filepath.Abs(dest)
	if err != nil {
		absDest = dest
	}
	switch {
	case filepath.Clean(absDest) == absSource:
		plog.Debug("Destination is the source, excluding archives and lock files from the snapshot", "target", dest)
		filter.WithExcludedNames(absSource, isDestinationArtifact)
	case preflight.IsNested(absSource, absDest):
		plog.Debug("Destination is inside the source, excluding it from the snapshot", "target", dest)
		filter.WithExcludedPaths(absDest)
	}

	// Validate already checked these.
	method, _ := pathcompression.ParseMethod(cfg.Compression.Method)
	level, _ := pathcompression.ParseLevel(cfg.Compression.Level)

	var cm pathcompressionmetrics.Metrics = &pathcompressionmetrics.NoopMetrics{}
	if cfg.Engine.Metrics {
		cm = &pathcompressionmetrics.CompressionMetrics{}
	}
	writer := pathcompression.NewWriter(pathcompression.Options{
		Method:       method,
		Level:        level,
		BufferSizeKB: cfg.Engine.BufferSizeKB,
		Metrics:      cm,
	})

	res.ArchivePath = filepath.Join(dest, archivename.FileName(e.clock.Now(), ArchiveExt))
	plog.Info("Starting backup", "source", absSource, "archive", res.ArchivePath, "compression", method)

	stats := &snapshot.Stats{}
	walker := snapshot.NewWalker(filter, stats)

	cm.StartProgress("Backup progress", e.progressInterval)
	err = writer.Write(ctx, walker.Walk(ctx, absSource), res.ArchivePath)
	cm.StopProgress()

	res.Excluded = stats.Excluded.Load()
	res.Unreadable = stats.Unreadable.Load()
	if c, ok := cm.(*pathcompressionmetrics.CompressionMetrics); ok {
		res.Files = c.FilesAdded.Load()
		res.Dirs = c.DirsAdded.Load()
	}

	if err != nil {
		return res, classifyWriteError(err, res.ArchivePath)
	}

	if info, statErr := os.Stat(res.ArchivePath); statErr == nil {
		res.Size = info.Size()
	}
	cm.LogSummary("Backup finished")
	plog.Info("Backup completed", "archive", res.ArchivePath, "size", humanize.IBytes(uint64(res.Size)))
	return res, nil
}

func classifyWriteError(err error, archivePath string) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		plog.Warn("Backup canceled", "archive", archivePath)
		return err
	case errors.Is(err, pathcompression.ErrCreateArchive):
		plog.Critical("Could not create archive file", "archive", archivePath, "error", err)
		return fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	case errors.Is(err, snapshot.ErrRootUnreadable):
		plog.Error("Source folder became unreadable", "error", err)
		return fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	default:
		plog.Error("Archive write failed", "archive", archivePath, "error", err)
		return fmt.Errorf("%w: %w", ErrArchiveWriteFailure, err)
	}
}

// CleanupOldBackups applies the keep-last-N policy to cfg.TargetFolder.
// Requests for a folder that already has a cleanup in flight join it and
// share its result. Having nothing to prune is not an error.
func (e *Engine) CleanupOldBackups(ctx context.Context, cfg config.Config) (CleanupResult, error) {
	if err := ctx.Err(); err != nil {
		return pathretention.Result{}, err
	}
	if err := cfg.Validate(); err != nil {
		return pathretention.Result{}, fmt.Errorf("invalid configuration: %w", err)
	}

	v, err, shared := e.cleanups.Do(cfg.TargetFolder, func() (any, error) {
		return e.cleanup(ctx, cfg)
	})
	if shared {
		plog.Debug("Joined cleanup already in flight", "target", cfg.TargetFolder)
	}
	res, _ := v.(pathretention.Result)

	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case hints.IsHint(err):
		outcome = metrics.OutcomeSkipped
	default:
		outcome = metrics.OutcomeFailure
	}
	e.metrics.ObserveCleanup(outcome, len(res.Deleted), len(res.Failed))
	return res, err
}

func (e *Engine) cleanup(ctx context.Context, cfg config.Config) (pathretention.Result, error) {
	dest := cfg.TargetFolder

	// No folder means no archives; there is nothing to lock either.
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		plog.Debug("Nothing to clean up, destination does not exist yet", "target", dest)
		return pathretention.Result{}, nil
	}

	release, err := e.acquireFolder(ctx, dest, "cleanup")
	if err != nil {
		return pathretention.Result{}, err
	}
	defer release()

	var rm pathretentionmetrics.Metrics = &pathretentionmetrics.NoopMetrics{}
	if cfg.Engine.Metrics {
		rm = &pathretentionmetrics.RetentionMetrics{}
	}
	pruner := pathretention.NewPruner(pathretention.Options{
		Workers: cfg.Engine.DeleteWorkers,
		DryRun:  cfg.Runtime.DryRun,
		Metrics: rm,
	})

	plog.Info("Starting cleanup", "target", dest, "keep", cfg.BackupsToKeep)
	res, err := pruner.Prune(ctx, dest, cfg.BackupsToKeep)
	if err != nil {
		if hints.IsHint(err) {
			plog.Debug("Cleanup skipped", "reason", err)
			return res, nil
		}
		if errors.Is(err, pathretention.ErrDeleteFailed) {
			plog.Error("Some outdated backups could not be deleted", "failed", len(res.Failed))
			return res, fmt.Errorf("%w: %w", ErrDeletionFailure, err)
		}
		return res, err
	}
	rm.LogSummary("Cleanup finished")
	plog.Info("Cleanup completed", "kept", len(res.Kept), "deleted", len(res.Deleted))
	return res, nil
}

// acquireFolder serializes work on one destination folder. The in-process
// mutex is taken first so the engine's own tasks queue up instead of failing
// on their own lock file.
func (e *Engine) acquireFolder(ctx context.Context, dest, operation string) (func(), error) {
	key := filepath.Clean(dest)
	e.folders.Lock(key)

	plog.Debug("Attempting to acquire lock", "path", key, "operation", operation)
	lock, err := e.locker.Acquire(ctx, key, operation)
	if err != nil {
		e.folders.Unlock(key)
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			plog.Warn("Operation is already running for this target, skipping run.", "details", lockErr.Error())
			return nil, hints.Newf("skipping %s: %w", operation, err)
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return func() {
		lock.Release()
		e.folders.Unlock(key)
	}, nil
}

// isDestinationArtifact reports whether name is a file the engine itself
// writes into a destination folder.
func isDestinationArtifact(name string) bool {
	if archivename.Match(name) || name == lockfile.LockFileName {
		return true
	}
	// Temporary lock files are named after the lock file.
	if strings.HasPrefix(name, lockfile.LockFileName+".") {
		return true
	}
	ok, _ := filepath.Match(pathcompression.TempPattern, name)
	return ok
}
