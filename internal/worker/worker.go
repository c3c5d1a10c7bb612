// Package worker implements the Worker Loop (component C8): it pulls task
// IDs from the Queue with bounded concurrency, delegates each to the
// Orchestrator, and applies the terminal-status and retry policy described
// in §4.8.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thruflo/orchcore/internal/logging"
	"github.com/thruflo/orchcore/internal/orchestrator"
	"github.com/thruflo/orchcore/internal/queue"
	"github.com/thruflo/orchcore/internal/sandbox"
	"github.com/thruflo/orchcore/internal/store"
	"github.com/thruflo/orchcore/internal/task"
)

// cancelPollInterval is how often runJob re-reads a running task's status
// from the Store to notice an external DELETE /tasks/{id} cancellation.
const cancelPollInterval = 100 * time.Millisecond

// isRetryable reports whether runErr is the kind of failure the Worker Loop
// backs off and retries. §7 reserves retry for infrastructure failures:
// PlanningError, ValidationError, SandboxError, and cancellation are all
// fatal to the task on first occurrence.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, task.ErrPlanning) || errors.Is(err, task.ErrValidation) || errors.Is(err, task.ErrSandbox) {
		return false
	}
	return true
}

// Config bounds the Worker Loop's concurrency and retry policy.
type Config struct {
	GlobalMax int // maximum concurrently running tasks, default 5

	// ConnectorClassMax is an independent concurrency ceiling per connector
	// class (the class named by a sandbox runtime is "sandbox_create" by
	// default), so e.g. sandbox creation against a remote VM provider can be
	// throttled separately from in-process CPU-bound work. Absent classes
	// are unbounded.
	ConnectorClassMax map[string]int

	MaxAttempts   int // job-level retry attempts, default 3
	BaseBackoff   time.Duration
}

// DefaultConfig returns the Worker Loop defaults described in §4.8.
func DefaultConfig() Config {
	return Config{
		GlobalMax:         5,
		ConnectorClassMax: map[string]int{"sandbox_create": 3},
		MaxAttempts:       3,
		BaseBackoff:       500 * time.Millisecond,
	}
}

// Loop is the Worker Loop: bounded-concurrency dispatch over a Queue.
type Loop struct {
	queue   queue.Queue
	store   store.Store
	sandboxes *sandbox.Manager
	orch    *orchestrator.Orchestrator
	cfg     Config
	logger  *logging.Logger

	mu               sync.Mutex
	activeTasks      int
	connectorCounts  map[string]int
	wg               sync.WaitGroup
}

// connectorClass is the admission-control class every dispatched task
// consumes: sandbox provisioning dominates per-task cost, so it is the
// class the two-tier check throttles independently of GlobalMax.
const connectorClass = "sandbox_create"

// New creates a Worker Loop.
func New(q queue.Queue, st store.Store, sandboxes *sandbox.Manager, orch *orchestrator.Orchestrator, cfg Config) *Loop {
	if cfg.GlobalMax <= 0 {
		cfg.GlobalMax = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	return &Loop{
		queue:           q,
		store:           st,
		sandboxes:       sandboxes,
		orch:            orch,
		cfg:             cfg,
		logger:          logging.With("component", "worker_loop"),
		connectorCounts: make(map[string]int),
	}
}

// Run pulls task IDs until ctx is cancelled, dispatching each to its own
// goroutine once both the global and per-connector-class admission checks
// pass. Run blocks until every in-flight job has finished after ctx is done.
func (l *Loop) Run(ctx context.Context) {
	for {
		if !l.hasCapacity() {
			select {
			case <-ctx.Done():
				l.wg.Wait()
				return
			case <-time.After(50 * time.Millisecond):
				continue
			}
		}

		taskID, err := l.queue.Pop(ctx)
		if err != nil {
			l.wg.Wait()
			return
		}

		l.admit()
		l.wg.Add(1)
		go func(id string) {
			defer l.wg.Done()
			defer l.release()
			l.runJob(ctx, id)
		}(taskID)
	}
}

func (l *Loop) hasCapacity() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.activeTasks >= l.cfg.GlobalMax {
		return false
	}
	if limit, ok := l.cfg.ConnectorClassMax[connectorClass]; ok && l.connectorCounts[connectorClass] >= limit {
		return false
	}
	return true
}

func (l *Loop) admit() {
	l.mu.Lock()
	l.activeTasks++
	l.connectorCounts[connectorClass]++
	l.mu.Unlock()
}

func (l *Loop) release() {
	l.mu.Lock()
	l.activeTasks--
	l.connectorCounts[connectorClass]--
	l.mu.Unlock()
}

// runJob executes one task with up to cfg.MaxAttempts, exponential backoff
// between attempts, restricted to infrastructure failures (see isRetryable).
// A cancel poller watches the Store for an external DELETE /tasks/{id} and
// cancels the per-task context the instant it observes StatusCancelled,
// distinct from ctx itself being cancelled by process shutdown. The sandbox
// is always torn down by the Orchestrator regardless of outcome.
func (l *Loop) runJob(ctx context.Context, taskID string) {
	t, err := l.store.GetTask(ctx, taskID)
	if err != nil {
		l.logger.Error("failed to load task", "task_id", taskID, "error", err)
		return
	}

	// A task left running by a killed process is requeued at startup and
	// restarted from the beginning.
	prev := task.StatusQueued
	if t.Status == task.StatusRunning {
		prev = task.StatusRunning
	}
	t.Status = task.StatusRunning
	t.StartedAt = time.Now().UTC()
	if err := l.store.UpdateTask(ctx, t, prev); err != nil {
		l.logger.Error("failed to mark task running", "task_id", taskID, "error", err)
		return
	}

	taskCtx, cancelTask := context.WithCancel(ctx)
	defer cancelTask()

	var cancelledByClient atomic.Bool
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		ticker := time.NewTicker(cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-taskCtx.Done():
				return
			case <-ticker.C:
				got, err := l.store.GetTask(ctx, taskID)
				if err != nil {
					continue
				}
				if got.Status == task.StatusCancelled {
					cancelledByClient.Store(true)
					cancelTask()
					return
				}
			}
		}
	}()

	var runErr error
attempts:
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		if cancelledByClient.Load() {
			break
		}

		runErr = l.orch.Run(taskCtx, t)
		if runErr == nil {
			break
		}
		if !isRetryable(runErr) {
			break
		}

		l.logger.Warn("orchestration attempt failed", "task_id", taskID, "attempt", attempt, "error", runErr)
		if attempt < l.cfg.MaxAttempts {
			backoff := l.cfg.BaseBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-taskCtx.Done():
				break attempts
			case <-time.After(backoff):
			}
		}
	}

	cancelTask()
	<-pollDone

	l.finalize(ctx, t, runErr, cancelledByClient.Load())
}

func (l *Loop) finalize(ctx context.Context, t *task.Task, runErr error, cancelledByClient bool) {
	t.CompletedAt = time.Now().UTC()

	switch {
	case cancelledByClient:
		t.Status = task.StatusCancelled
	case runErr != nil && errors.Is(runErr, context.Canceled):
		// ctx itself was cancelled (process shutdown), not the client: leave
		// the task queued/running in the Store for requeueUnfinished to pick
		// back up, rather than recording a spurious terminal status.
		return
	case runErr != nil:
		t.Status = task.StatusFailed
		t.Error = runErr.Error()
	default:
		// A run that returns without error ended in task_succeeded or
		// task_completed_with_failures; both resolve to succeeded overall,
		// including when a failed required step stopped the loop early.
		t.Status = task.StatusSucceeded
	}

	if err := l.store.UpdateTask(ctx, t, task.StatusRunning); err != nil && err != store.ErrConflict {
		l.logger.Error("failed to persist final task status", "task_id", t.ID, "error", err)
	}
}
