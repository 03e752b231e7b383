// Package snapshot walks a live source tree and yields the entries that
// belong in a backup. The walk is lazy: entries are produced as the
// consumer pulls them, so an archive can be streamed without first building
// the whole file list in memory.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/mythwright/nexus-config-backup/pkg/pathfilter"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
	"github.com/mythwright/nexus-config-backup/pkg/util"
)

// ErrRootUnreadable is yielded when the source root itself cannot be read.
var ErrRootUnreadable = errors.New("source root unreadable")

// Kind tells files and directories apart.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// Entry is one included file or directory.
type Entry struct {
	// RelPath is relative to the source root and always uses forward slashes.
	RelPath string
	Kind    Kind
	AbsPath string
	Info    fs.FileInfo
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Kind == KindDir }

// Filter is the predicate applied to each walked path.
type Filter interface {
	Include(e pathfilter.Entry) pathfilter.Decision
}

// Stats counts what a walk did. It is safe to read while the walk runs.
type Stats struct {
	Yielded    atomic.Int64
	Excluded   atomic.Int64
	Unreadable atomic.Int64
}

// Walker walks one source tree per call.
type Walker struct {
	filter Filter
	stats  *Stats
}

// NewWalker returns a Walker. A nil stats is allowed.
func NewWalker(filter Filter, stats *Stats) *Walker {
	if stats == nil {
		stats = &Stats{}
	}
	return &Walker{filter: filter, stats: stats}
}

// Stats returns the walker's counters.
func (w *Walker) Stats() *Stats { return w.stats }

// Walk is a shorthand for NewWalker(filter, nil).Walk(ctx, root).
func Walk(ctx context.Context, root string, filter Filter) iter.Seq2[Entry, error] {
	return NewWalker(filter, nil).Walk(ctx, root)
}

// Walk yields included entries depth-first. Excluded directories are pruned
// during descent. Entries that vanish or become unreadable mid-walk are
// logged and skipped. A failure on the root, any other I/O error, or
// cancellation of ctx is yielded once as a terminal error.
func (w *Walker) Walk(ctx context.Context, root string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		rootInfo, err := os.Stat(root)
		if err != nil {
			yield(Entry{}, fmt.Errorf("%w: %w", ErrRootUnreadable, err))
			return
		}
		if !rootInfo.IsDir() {
			yield(Entry{}, fmt.Errorf("%w: %s is not a directory", ErrRootUnreadable, root))
			return
		}

		stopped := false
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if path == root {
					return fmt.Errorf("%w: %w", ErrRootUnreadable, err)
				}
				if isVanished(err) {
					w.stats.Unreadable.Add(1)
					plog.Warn("Skipping unreadable entry", "path", path, "error", err)
					return nil
				}
				return fmt.Errorf("failed to walk %s: %w", path, err)
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return fmt.Errorf("failed to get relative path for %s: %w", path, err)
			}
			relPath := util.NormalizePath(rel)
			isDir := d.IsDir()

			switch w.filter.Include(pathfilter.Entry{RelPath: relPath, AbsPath: path, IsDir: isDir}) {
			case pathfilter.SkipDir:
				w.stats.Excluded.Add(1)
				plog.Debug("Skipping excluded directory", "path", path)
				if isDir {
					return fs.SkipDir
				}
				return nil
			case pathfilter.Skip:
				if relPath == "" {
					return nil
				}
				w.stats.Excluded.Add(1)
				plog.Critical("Skipping excluded file", "path", path)
				return nil
			}

			if !isDir && !d.Type().IsRegular() {
				plog.Debug("Skipping non-regular file", "path", path, "type", d.Type().String())
				return nil
			}

			info, err := d.Info()
			if err != nil {
				if isVanished(err) {
					w.stats.Unreadable.Add(1)
					plog.Warn("Skipping vanished entry", "path", path, "error", err)
					if isDir {
						return fs.SkipDir
					}
					return nil
				}
				return fmt.Errorf("failed to stat %s: %w", path, err)
			}

			kind := KindFile
			if isDir {
				kind = KindDir
			}
			w.stats.Yielded.Add(1)
			if !yield(Entry{RelPath: relPath, Kind: kind, AbsPath: path, Info: info}, nil) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		})

		if stopped || walkErr == nil {
			return
		}
		yield(Entry{}, walkErr)
	}
}

func isVanished(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
