package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/orchcore/internal/critic"
	"github.com/thruflo/orchcore/internal/executor"
	"github.com/thruflo/orchcore/internal/orchestrator"
	"github.com/thruflo/orchcore/internal/planner"
	"github.com/thruflo/orchcore/internal/queue"
	"github.com/thruflo/orchcore/internal/registry"
	"github.com/thruflo/orchcore/internal/sandbox"
	"github.com/thruflo/orchcore/internal/store"
	"github.com/thruflo/orchcore/internal/task"
)

type stubTool struct{ name string }

func (s *stubTool) Name() string              { return s.name }
func (s *stubTool) Description() string       { return "a stub tool" }
func (s *stubTool) Schema() *jsonschema.Schema { return nil }
func (s *stubTool) Invoke(ctx context.Context, args map[string]any, execCtx registry.ExecContext) task.StepResult {
	return task.StepResult{Success: true, Output: "done"}
}

type stubLLM struct{ response string }

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.response, nil
}

// slowLLM blocks Complete until its delay elapses or ctx is cancelled first,
// so a test can observe a cancellation that lands mid-planning.
type slowLLM struct {
	response string
	delay    time.Duration
}

func (s *slowLLM) Complete(ctx context.Context, prompt string) (string, error) {
	select {
	case <-time.After(s.delay):
		return s.response, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func newTestLoop(t *testing.T, planResponse string, cfg Config) (*Loop, store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rt := sandbox.NewFakeRuntime()
	manager := sandbox.New(rt, rt, nil)

	reg := registry.New(nil)
	reg.Register(&stubTool{name: "shell"})

	p := planner.New(&stubLLM{response: planResponse}, reg)
	e := executor.New(reg)
	c := critic.New(&stubLLM{response: `{"on_track":true,"confidence":0.9}`}, reg)

	orch := orchestrator.New(st, manager, p, e, c, orchestrator.DefaultConfig())
	q := queue.New()

	return New(q, st, manager, orch, cfg), st
}

func TestLoop_Run_DispatchesAndSucceeds(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	loop, st := newTestLoop(t, `[{"tool":"shell","description":"do it","arguments":{}}]`, cfg)

	tk := &task.Task{ID: "task-1", Goal: "accomplish something", Status: task.StatusQueued, CreatedAt: time.Now()}
	require.NoError(t, st.CreateTask(context.Background(), tk))

	q := loop.queue.(*queue.InProcessQueue)
	q.Push(tk.ID, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := st.GetTask(context.Background(), tk.ID)
		return err == nil && got.Status == task.StatusSucceeded
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

// A planning error is fatal, not an infrastructure failure: the worker must
// fail the task on the first attempt rather than retrying it MaxAttempts
// times, which would otherwise emit repeated sandbox_created/task_started
// events in violation of the one-create/one-destroy invariant.
func TestLoop_Run_FailsImmediatelyOnPersistentPlanningErrorWithoutRetry(t *testing.T) {
	t.Parallel()
	cfg := Config{GlobalMax: 1, MaxAttempts: 3, BaseBackoff: 5 * time.Millisecond}
	loop, st := newTestLoop(t, "not valid json", cfg)

	tk := &task.Task{ID: "task-2", Goal: "accomplish something", Status: task.StatusQueued, CreatedAt: time.Now()}
	require.NoError(t, st.CreateTask(context.Background(), tk))

	q := loop.queue.(*queue.InProcessQueue)
	q.Push(tk.ID, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := st.GetTask(context.Background(), tk.ID)
		return err == nil && got.Status == task.StatusFailed
	}, time.Second, 10*time.Millisecond)

	got, err := st.GetTask(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Error)
	assert.Contains(t, got.Error, "planning")

	sandboxCreated := 0
	for _, ev := range listTaskEvents(t, st, tk.ID) {
		if ev.Type == task.EventSandboxCreated {
			sandboxCreated++
		}
	}
	assert.LessOrEqual(t, sandboxCreated, 1, "a fatal planning error must not cause more than one sandbox_created event")

	cancel()
	<-done
}

// An external DELETE /tasks/{id} flips the stored task to cancelled while
// runJob's planning call is still in flight; runJob's cancel poller must
// observe that and abort the per-task context rather than letting the
// orchestrator run to completion.
func TestLoop_Run_ObservesExternalCancellation(t *testing.T) {
	t.Parallel()
	st, err := store.Open(filepath.Join(t.TempDir(), "worker-cancel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rt := sandbox.NewFakeRuntime()
	manager := sandbox.New(rt, rt, nil)

	reg := registry.New(nil)
	reg.Register(&stubTool{name: "shell"})

	p := planner.New(&slowLLM{response: `[{"tool":"shell","description":"do it","arguments":{}}]`, delay: time.Second}, reg)
	e := executor.New(reg)
	c := critic.New(&stubLLM{response: `{"on_track":true,"confidence":0.9}`}, reg)

	orch := orchestrator.New(st, manager, p, e, c, orchestrator.DefaultConfig())
	q := queue.New()
	cfg := Config{GlobalMax: 1, MaxAttempts: 1, BaseBackoff: time.Millisecond}
	loop := New(q, st, manager, orch, cfg)

	tk := &task.Task{ID: "task-cancel", Goal: "accomplish something", Status: task.StatusQueued, CreatedAt: time.Now()}
	require.NoError(t, st.CreateTask(context.Background(), tk))
	q.Push(tk.ID, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := st.GetTask(context.Background(), tk.ID)
		return err == nil && got.Status == task.StatusRunning
	}, time.Second, 5*time.Millisecond)

	running, err := st.GetTask(context.Background(), tk.ID)
	require.NoError(t, err)
	running.Status = task.StatusCancelled
	require.NoError(t, st.UpdateTask(context.Background(), running, task.StatusRunning))

	require.Eventually(t, func() bool {
		got, err := st.GetTask(context.Background(), tk.ID)
		return err == nil && got.Status == task.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func listTaskEvents(t *testing.T, st store.Store, taskID string) []task.Event {
	t.Helper()
	events, err := st.ListEvents(context.Background(), taskID)
	require.NoError(t, err)
	return events
}

func TestLoop_HasCapacity_RespectsGlobalMax(t *testing.T) {
	t.Parallel()
	cfg := Config{GlobalMax: 1, MaxAttempts: 1, BaseBackoff: time.Millisecond}
	loop, _ := newTestLoop(t, `[]`, cfg)

	assert.True(t, loop.hasCapacity())
	loop.admit()
	assert.False(t, loop.hasCapacity())
	loop.release()
	assert.True(t, loop.hasCapacity())
}
