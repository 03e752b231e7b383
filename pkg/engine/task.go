package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/mythwright/nexus-config-backup/pkg/config"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

// Task is a handle on work running in the background. Done is closed once
// the work has finished; Result and Err are valid from then on.
type Task[T any] struct {
	id     string
	kind   string
	done   chan struct{}
	result T
	err    error
}

func newTask[T any](kind string) *Task[T] {
	return &Task[T]{id: uuid.NewString(), kind: kind, done: make(chan struct{})}
}

// ID identifies the task in logs.
func (t *Task[T]) ID() string { return t.id }

// Kind is "backup", "cleanup" or "launch".
func (t *Task[T]) Kind() string { return t.kind }

// Done is closed when the task has finished.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Err blocks until the task has finished and returns its error.
func (t *Task[T]) Err() error {
	<-t.done
	return t.err
}

// Result blocks until the task has finished and returns its result.
func (t *Task[T]) Result() T {
	<-t.done
	return t.result
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// LaunchResult reports what the launch-time behaviour did. A nil field means
// the step was not enabled.
type LaunchResult struct {
	Backup  *BackupResult
	Cleanup *CleanupResult
}

// dispatch runs fn on its own goroutine and tracks it for Wait. The task's
// context is cancelled by Close.
func dispatch[T any](e *Engine, kind string, fn func(ctx context.Context) (T, error)) *Task[T] {
	t := newTask[T](kind)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		t.err = ErrClosed
		close(t.done)
		return t
	}
	e.tasks.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.tasks.Done()
		defer close(t.done)

		plog.Debug("Task started", "task", t.id, "kind", kind)
		t.result, t.err = fn(e.ctx)
		if t.err != nil {
			plog.Debug("Task finished with error", "task", t.id, "kind", kind, "error", t.err)
			return
		}
		plog.Debug("Task finished", "task", t.id, "kind", kind)
	}()
	return t
}

// DispatchBackup runs RunBackup in the background.
func (e *Engine) DispatchBackup(cfg config.Config, sourceRoot string) *Task[BackupResult] {
	return dispatch(e, "backup", func(ctx context.Context) (BackupResult, error) {
		return e.RunBackup(ctx, cfg, sourceRoot)
	})
}

// DispatchCleanup runs CleanupOldBackups in the background.
func (e *Engine) DispatchCleanup(cfg config.Config) *Task[CleanupResult] {
	return dispatch(e, "cleanup", func(ctx context.Context) (CleanupResult, error) {
		return e.CleanupOldBackups(ctx, cfg)
	})
}

// Launch performs the start-up behaviour selected by cfg: a backup when
// BackupOnLaunch is set, then a cleanup when DeleteOldOnLaunch is set. A
// failed backup does not prevent the cleanup.
func (e *Engine) Launch(cfg config.Config, sourceRoot string) *Task[LaunchResult] {
	return dispatch(e, "launch", func(ctx context.Context) (LaunchResult, error) {
		var (
			res      LaunchResult
			firstErr error
		)
		if cfg.BackupOnLaunch {
			b, err := e.RunBackup(ctx, cfg, sourceRoot)
			res.Backup = &b
			if err != nil {
				plog.Error("Backup on launch failed", "error", err)
				firstErr = err
			}
		}
		if cfg.DeleteOldOnLaunch {
			c, err := e.CleanupOldBackups(ctx, cfg)
			res.Cleanup = &c
			if err != nil {
				plog.Error("Cleanup on launch failed", "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return res, firstErr
	})
}

// Wait blocks until every dispatched task has finished.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

// Close stops accepting work, cancels tasks in flight and waits for them.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.tasks.Wait()
}
