package executor

import (
	"context"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/orchcore/internal/registry"
	"github.com/thruflo/orchcore/internal/task"
)

type stubHandler struct {
	name   string
	result task.StepResult
	panics bool
}

func (h *stubHandler) Name() string               { return h.name }
func (h *stubHandler) Description() string        { return "stub" }
func (h *stubHandler) Schema() *jsonschema.Schema  { return nil }
func (h *stubHandler) Invoke(ctx context.Context, args map[string]any, execCtx registry.ExecContext) task.StepResult {
	if h.panics {
		panic("boom")
	}
	return h.result
}

func TestExecutor_ExecuteStep_Success(t *testing.T) {
	t.Parallel()
	reg := registry.New(nil)
	reg.Register(&stubHandler{name: "ok", result: task.StepResult{Success: true, Output: "done"}})
	e := New(reg)

	step := &task.Step{ID: "s1", Tool: "ok", Arguments: map[string]any{}}
	result := e.ExecuteStep(context.Background(), step, registry.ExecContext{})

	assert.Equal(t, task.StepCompleted, result.Status)
	require.NotNil(t, result.Result)
	assert.Equal(t, "done", result.Result.Output)
}

func TestExecutor_ExecuteStep_HandlerFailure(t *testing.T) {
	t.Parallel()
	reg := registry.New(nil)
	reg.Register(&stubHandler{name: "fails", result: task.StepResult{Success: false, Error: "nope"}})
	e := New(reg)

	step := &task.Step{ID: "s1", Tool: "fails", Arguments: map[string]any{}}
	result := e.ExecuteStep(context.Background(), step, registry.ExecContext{})

	assert.Equal(t, task.StepFailed, result.Status)
	assert.Equal(t, "nope", result.Result.Error)
}

func TestExecutor_ExecuteStep_UnknownTool(t *testing.T) {
	t.Parallel()
	reg := registry.New(nil)
	e := New(reg)

	step := &task.Step{ID: "s1", Tool: "missing", Arguments: map[string]any{}}
	result := e.ExecuteStep(context.Background(), step, registry.ExecContext{})

	assert.Equal(t, task.StepFailed, result.Status)
	assert.Contains(t, result.Result.Error, "tool not found")
}

func TestExecutor_ExecuteStep_RecoversFromPanic(t *testing.T) {
	t.Parallel()
	reg := registry.New(nil)
	reg.Register(&stubHandler{name: "explodes", panics: true})
	e := New(reg)

	step := &task.Step{ID: "s1", Tool: "explodes", Arguments: map[string]any{}}

	assert.NotPanics(t, func() {
		result := e.ExecuteStep(context.Background(), step, registry.ExecContext{})
		assert.Equal(t, task.StepFailed, result.Status)
		assert.Contains(t, result.Result.Error, "panicked")
	})
}
