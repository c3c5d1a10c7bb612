package orchestrator

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
	"github.com/thruflo/orchcore/internal/planner"
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

type stubLLM struct {
	responses []string
	i         int
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if s.i >= len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	r := s.responses[s.i]
	s.i++
	return r, nil
}

func newTestOrchestrator(t *testing.T, planResponse string, criticResponse string, cfg Config) (*Orchestrator, store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "orch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rt := sandbox.NewFakeRuntime()
	manager := sandbox.New(rt, rt, nil)

	reg := registry.New(nil)
	reg.Register(&stubTool{name: "shell"})

	p := planner.New(&stubLLM{responses: []string{planResponse}}, reg)
	e := executor.New(reg)
	c := critic.New(&stubLLM{responses: []string{criticResponse}}, reg)

	return New(st, manager, p, e, c, cfg), st
}

func TestOrchestrator_Run_HappyPath(t *testing.T) {
	t.Parallel()
	cfg := Config{EnableCritic: true, MaxCorrectionDepth: MaxCorrectionDepth}
	orch, st := newTestOrchestrator(t,
		`[{"tool":"shell","description":"do it","arguments":{}}]`,
		`{"on_track":true,"confidence":0.9}`,
		cfg,
	)

	tk := &task.Task{ID: "task-1", Goal: "accomplish something", Status: task.StatusRunning, CreatedAt: time.Now()}
	err := orch.Run(context.Background(), tk)
	require.NoError(t, err)

	assert.True(t, tk.AllStepsCompleted())
	events, err := st.ListEvents(context.Background(), "task-1")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, task.EventTaskStarted, events[0].Type)
	assert.Equal(t, task.EventSandboxDestroyed, events[len(events)-1].Type)

	var sawSucceeded bool
	for _, ev := range events {
		if ev.Type == task.EventTaskSucceeded {
			sawSucceeded = true
		}
	}
	assert.True(t, sawSucceeded)
}

func TestOrchestrator_Run_PlanningFailurePropagates(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	orch, st := newTestOrchestrator(t, "not valid json", `{"on_track":true,"confidence":0.9}`, cfg)

	tk := &task.Task{ID: "task-2", Goal: "accomplish something", Status: task.StatusRunning, CreatedAt: time.Now()}
	err := orch.Run(context.Background(), tk)
	assert.Error(t, err)

	events, err := st.ListEvents(context.Background(), "task-2")
	require.NoError(t, err)
	var sawFailed bool
	for _, ev := range events {
		if ev.Type == task.EventOrchestrationFailed {
			sawFailed = true
		}
	}
	assert.True(t, sawFailed)
}

func TestOrchestrator_Run_CriticSplicesCorrections(t *testing.T) {
	t.Parallel()
	cfg := Config{EnableCritic: true, MaxCorrectionDepth: MaxCorrectionDepth}
	orch, st := newTestOrchestrator(t,
		`[{"tool":"shell","description":"do it","arguments":{}}]`,
		`{"on_track":false,"confidence":0.9,"corrections":[{"tool":"shell","description":"fix it","arguments":{}}]}`,
		cfg,
	)

	tk := &task.Task{ID: "task-3", Goal: "accomplish something", Status: task.StatusRunning, CreatedAt: time.Now()}
	err := orch.Run(context.Background(), tk)
	require.NoError(t, err)

	assert.Len(t, tk.Plan, 4)

	events, err := st.ListEvents(context.Background(), "task-3")
	require.NoError(t, err)
	var sawCorrection bool
	for _, ev := range events {
		if ev.Type == task.EventCorrectionApplied {
			sawCorrection = true
		}
	}
	assert.True(t, sawCorrection)
}

func TestOrchestrator_Run_CancellationSkipsOrchestrationFailedEvent(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	orch, st := newTestOrchestrator(t,
		`[{"tool":"shell","description":"do it","arguments":{}}]`,
		`{"on_track":true,"confidence":0.9}`,
		cfg,
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tk := &task.Task{ID: "task-5", Goal: "accomplish something", Status: task.StatusRunning, CreatedAt: time.Now()}
	err := orch.Run(ctx, tk)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	events, err := st.ListEvents(context.Background(), "task-5")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, task.EventSandboxDestroyed, events[len(events)-1].Type)
	for _, ev := range events {
		assert.NotEqual(t, task.EventOrchestrationFailed, ev.Type)
		assert.NotEqual(t, task.EventTaskSucceeded, ev.Type)
	}
}

func TestOrchestrator_Run_DisabledCriticSkipsEvaluation(t *testing.T) {
	t.Parallel()
	cfg := Config{EnableCritic: false}
	orch, st := newTestOrchestrator(t, `[{"tool":"shell","description":"do it","arguments":{}}]`, "", cfg)

	tk := &task.Task{ID: "task-4", Goal: "accomplish something", Status: task.StatusRunning, CreatedAt: time.Now()}
	err := orch.Run(context.Background(), tk)
	require.NoError(t, err)

	events, err := st.ListEvents(context.Background(), "task-4")
	require.NoError(t, err)
	for _, ev := range events {
		assert.NotEqual(t, task.EventCriticEvaluation, ev.Type)
	}
}
