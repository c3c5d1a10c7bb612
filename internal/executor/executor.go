// Package executor implements the Executor (component C5): it resolves a
// step's tool, invokes the handler with a bounded execution context, and
// normalizes the outcome onto the step. Handler panics are recovered here
// and never propagate to the Orchestrator.
package executor

import (
	"context"
	"fmt"

	"github.com/thruflo/orchcore/internal/registry"
	"github.com/thruflo/orchcore/internal/task"
)

// Executor runs one Step against the Tool Registry.
type Executor struct {
	registry *registry.Registry
}

// New creates an Executor.
func New(reg *registry.Registry) *Executor {
	return &Executor{registry: reg}
}

// ExecuteStep looks up step.Tool and invokes it, returning the step with
// Status and Result populated. An unknown tool marks the step failed
// without raising. Handler panics are recovered and recorded as failure.
func (e *Executor) ExecuteStep(ctx context.Context, step *task.Step, execCtx registry.ExecContext) *task.Step {
	handler, ok := e.registry.Get(step.Tool)
	if !ok {
		step.Status = task.StepFailed
		step.Result = &task.StepResult{Success: false, Error: fmt.Sprintf("tool not found: %s", step.Tool)}
		return step
	}

	result := e.invoke(ctx, handler, step, execCtx)
	step.Result = &result
	if result.Success {
		step.Status = task.StepCompleted
	} else {
		step.Status = task.StepFailed
	}
	return step
}

func (e *Executor) invoke(ctx context.Context, handler registry.Handler, step *task.Step, execCtx registry.ExecContext) (result task.StepResult) {
	defer func() {
		if r := recover(); r != nil {
			result = task.StepResult{Success: false, Error: fmt.Sprintf("tool %s panicked: %v", step.Tool, r)}
		}
	}()
	return handler.Invoke(ctx, step.Arguments, execCtx)
}
