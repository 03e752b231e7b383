// Package lockfile serializes destination-mutating work across processes.
// A JSON lock file in the destination folder records the owner and a
// heartbeat timestamp; a lock whose heartbeat is older than the stale
// timeout may be taken over.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/mythwright/nexus-config-backup/pkg/plog"
	"github.com/mythwright/nexus-config-backup/pkg/util"
)

// LockFileName is the name of the lock file created in the destination folder.
// It never matches the archive name pattern, so the pruner leaves it alone.
const LockFileName = ".~nexus-backup.lock"

// LockContent defines the structure of the data written to the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	LastUpdate time.Time `json:"lastUpdate"`
	Nonce      string    `json:"nonce,omitempty"`
	AppID      string    `json:"appID"`
	Operation  string    `json:"operation,omitempty"`
}

// ErrLockActive is returned when a live lock is held by someone else.
type ErrLockActive struct {
	PID       int64
	Hostname  string
	AppID     string
	Operation string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("destination is locked by PID %d on host '%s' (app: %s, operation: %s), last updated %s ago",
		e.PID, e.Hostname, e.AppID, e.Operation, e.TimeSince.Truncate(time.Second))
}

// ErrLostRace is returned when another contender wins a stale lock takeover.
var ErrLostRace = errors.New("lost race during stale lock takeover")

// ErrCorruptLockFile indicates that the lock file on disk is empty or not valid JSON.
var ErrCorruptLockFile = errors.New("lock file is corrupt or empty")

// These are vars to allow modification during testing.
var (
	heartbeatInterval = 1 * time.Minute
	staleTimeout      = 3 * heartbeatInterval
	acquireRetryDelay = 100 * time.Millisecond
)

// Locker acquires locks on behalf of one application.
type Locker struct {
	appID string
	clock clock.Clock
}

// NewLocker returns a Locker. A nil clk means the wall clock.
func NewLocker(appID string, clk clock.Clock) *Locker {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Locker{appID: appID, clock: clk}
}

// Acquire is a shorthand for NewLocker(appID, nil).Acquire(ctx, dirPath, "").
func Acquire(ctx context.Context, dirPath, appID string) (*Lock, error) {
	return NewLocker(appID, nil).Acquire(ctx, dirPath, "")
}

// Lock is a held lock. Release it when done.
type Lock struct {
	path    string
	clock   clock.Clock
	content LockContent
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	held    bool
}

// Acquire takes the lock in dirPath. It returns *ErrLockActive if a live lock
// is held. ctx bounds the acquisition attempt only; the heartbeat runs until
// Release.
func (lk *Locker) Acquire(ctx context.Context, dirPath, operation string) (*Lock, error) {
	absLockFilePath := filepath.Join(dirPath, LockFileName)
	const maxAttempts = 3

	for range maxAttempts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		content, err := lk.newContent(operation)
		if err != nil {
			return nil, err
		}

		err = createExclusive(absLockFilePath, content)
		if err == nil {
			return lk.start(absLockFilePath, content), nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to access lock file: %w", err)
		}

		current, readErr := readLockContentSafely(absLockFilePath)
		switch {
		case readErr == nil:
			elapsed := lk.clock.Now().Sub(current.LastUpdate)
			if elapsed < staleTimeout {
				return nil, &ErrLockActive{
					PID:       current.PID,
					Hostname:  current.Hostname,
					AppID:     current.AppID,
					Operation: current.Operation,
					TimeSince: elapsed,
				}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", current.PID, "age", elapsed)
		case errors.Is(readErr, ErrCorruptLockFile):
			plog.Warn("Found corrupt lock file, treating as stale", "path", absLockFilePath, "error", readErr)
		case os.IsNotExist(readErr):
			// Released between our create and read. Try again.
			continue
		default:
			if err := lk.backoff(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if err := lk.takeover(absLockFilePath, content); err != nil {
			if errors.Is(err, ErrLostRace) {
				plog.Debug("Lock takeover race lost, retrying acquisition")
			} else {
				plog.Warn("Failed to attempt lock takeover, retrying", "error", err)
			}
			if err := lk.backoff(ctx); err != nil {
				return nil, err
			}
			continue
		}
		return lk.start(absLockFilePath, content), nil
	}

	return nil, fmt.Errorf("failed to acquire lock after %d attempts (contention)", maxAttempts)
}

// backoff waits acquireRetryDelay on the locker's clock, or until ctx is done.
func (lk *Locker) backoff(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-lk.clock.After(acquireRetryDelay):
		return nil
	}
}

func (lk *Locker) newContent(operation string) (LockContent, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return LockContent{}, err
	}
	return LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		LastUpdate: lk.clock.Now().UTC(),
		Nonce:      uuid.NewString(),
		AppID:      lk.appID,
		Operation:  operation,
	}, nil
}

func (lk *Locker) start(absLockFilePath string, content LockContent) *Lock {
	cleanupTempLockFiles(absLockFilePath, lk.clock.Now())

	ctx, cancel := context.WithCancel(context.Background())
	l := &Lock{
		path:    absLockFilePath,
		clock:   lk.clock,
		content: content,
		cancel:  cancel,
		done:    make(chan struct{}),
		held:    true,
	}
	go l.heartbeat(ctx)
	plog.Debug("Lock acquired", "path", absLockFilePath, "operation", content.Operation)
	return l
}

// createExclusive uses O_EXCL so only the first creator succeeds.
func createExclusive(absLockFilePath string, content LockContent) error {
	f, err := os.OpenFile(absLockFilePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return err
	}
	if err := writeLockContent(f, content); err != nil {
		f.Close()
		os.Remove(absLockFilePath)
		return err
	}
	return f.Close()
}

// takeover renames fresh content over a stale or corrupt lock and reads it
// back to see whether this contender won.
func (lk *Locker) takeover(absLockFilePath string, content LockContent) error {
	if err := updateLockFileAtomic(absLockFilePath, content); err != nil {
		return err
	}
	readback, err := readLockContentSafely(absLockFilePath)
	if err != nil {
		return fmt.Errorf("failed to read back lock file after takeover: %w", err)
	}
	if readback.PID != content.PID || readback.Nonce != content.Nonce {
		return ErrLostRace
	}
	plog.Debug("Successfully took over stale lock")
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release stops the heartbeat and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	l.cancel()
	<-l.done
	l.held = false

	if err := os.Remove(l.path); err != nil {
		if !os.IsNotExist(err) {
			plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
		}
		return
	}
	plog.Debug("Lock released", "path", l.path)
}

func (l *Lock) heartbeat(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.clock.After(heartbeatInterval):
			l.content.LastUpdate = l.clock.Now().UTC()
			if err := updateLockFileAtomic(l.path, l.content); err != nil {
				plog.Warn("Heartbeat failed to update lock file", "error", err)
			}
		}
	}
}

// updateLockFileAtomic writes content to a temp file and renames it over the
// lock, so the lock file is never observed empty.
func updateLockFileAtomic(absLockFilePath string, content LockContent) error {
	dir := filepath.Dir(absLockFilePath)
	tmpF, err := os.CreateTemp(dir, filepath.Base(absLockFilePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmpF.Name()); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary lock file", "path", tmpF.Name(), "error", err)
		}
	}()

	if err := writeLockContent(tmpF, content); err != nil {
		tmpF.Close()
		return err
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		return err
	}
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpF.Name(), absLockFilePath); err != nil {
		return fmt.Errorf("failed to rename temp file to lock file: %w", err)
	}
	return nil
}

// cleanupTempLockFiles removes temp files left by crashed heartbeats. Only
// files older than the stale timeout are touched.
func cleanupTempLockFiles(absLockFilePath string, now time.Time) {
	pattern := filepath.Join(filepath.Dir(absLockFilePath), filepath.Base(absLockFilePath)+".*.tmp")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		plog.Warn("Failed to glob for temporary lock files", "pattern", pattern, "error", err)
		return
	}

	threshold := now.Add(-staleTimeout)
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if info.ModTime().Before(threshold) {
			plog.Debug("Removing old temporary lock file", "path", match)
			if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
				plog.Warn("Failed to remove leftover temporary lock file", "path", match, "error", err)
			}
		}
	}
}

func writeLockContent(w io.Writer, content LockContent) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write lock content: %w", err)
	}
	return nil
}

// readLockContentSafely retries briefly on empty or partial content, which
// some filesystems expose transiently even with rename-based writes.
func readLockContentSafely(absLockFilePath string) (LockContent, error) {
	var lastErr, lastCorruptErr error
	for range 3 {
		data, err := os.ReadFile(absLockFilePath)
		if err != nil {
			if os.IsNotExist(err) {
				return LockContent{}, err
			}
			lastErr = err
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if len(data) == 0 {
			lastCorruptErr = errors.New("lock file is empty")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		var content LockContent
		if lastCorruptErr = json.Unmarshal(data, &content); lastCorruptErr != nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		return content, nil
	}

	if lastCorruptErr != nil {
		return LockContent{}, fmt.Errorf("%w: %v", ErrCorruptLockFile, lastCorruptErr)
	}
	return LockContent{}, fmt.Errorf("failed to read valid lock content: %w", lastErr)
}
