// Package orchestrator implements the Orchestrator (component C7): the
// per-task state machine that owns a sandbox for the task's lifetime and
// drives it through acquiring-sandbox, planning, executing, and
// finalizing, appending a typed event at every transition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/thruflo/orchcore/internal/critic"
	"github.com/thruflo/orchcore/internal/executor"
	"github.com/thruflo/orchcore/internal/logging"
	"github.com/thruflo/orchcore/internal/planner"
	"github.com/thruflo/orchcore/internal/registry"
	"github.com/thruflo/orchcore/internal/sandbox"
	"github.com/thruflo/orchcore/internal/store"
	"github.com/thruflo/orchcore/internal/stream"
	"github.com/thruflo/orchcore/internal/task"
)

// MaxCorrectionDepth bounds correction-splice chains independent of the
// sandbox destroy deadline: the Critic is not consulted for a step once its
// CorrectionDepth reaches this cap.
const MaxCorrectionDepth = 3

// stepOutputTruncateLimit bounds how much of a step's output is embedded in
// its step_completed event, for event-log compactness.
const stepOutputTruncateLimit = 500

// EnableCritic toggles whether the Critic runs after each step. Defaults on.
type Config struct {
	EnableCritic       bool
	MaxCorrectionDepth int
}

// DefaultConfig returns the Orchestrator defaults described in §4.7/4.6.
func DefaultConfig() Config {
	return Config{EnableCritic: true, MaxCorrectionDepth: MaxCorrectionDepth}
}

// Orchestrator drives one task through its full lifecycle.
type Orchestrator struct {
	store     store.Store
	sandboxes *sandbox.Manager
	planner   *planner.Planner
	executor  *executor.Executor
	critic    *critic.Critic
	cfg       Config
	logger    *logging.Logger

	// stream, if set via SetStream, receives a copy of every appended event
	// so the gateway's websocket endpoint can live-tail a task without
	// polling the store. Nil-safe: the engine runs fine without a gateway.
	stream *stream.FileStore
}

// New creates an Orchestrator.
func New(st store.Store, sandboxes *sandbox.Manager, p *planner.Planner, e *executor.Executor, c *critic.Critic, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:     st,
		sandboxes: sandboxes,
		planner:   p,
		executor:  e,
		critic:    c,
		cfg:       cfg,
		logger:    logging.With("component", "orchestrator"),
	}
}

// SetStream wires fs as the live event broadcaster. Optional: the worker
// binary wires it so the gateway can live-tail events; Run works without it.
func (o *Orchestrator) SetStream(fs *stream.FileStore) {
	o.stream = fs
}

// Run executes t's full lifecycle: acquire sandbox, plan, execute every
// step in order (consulting the Critic and splicing corrections as
// appropriate), and finalize. The sandbox is destroyed on every exit path.
// Run mutates t in place and persists it via the Store at each transition;
// the caller (the Worker Loop) is responsible for the final terminal status
// decision described in §4.8.
func (o *Orchestrator) Run(ctx context.Context, t *task.Task) error {
	o.appendEvent(ctx, t, task.EventTaskStarted, nil)

	sandboxID := t.ID
	defer func() {
		if err := o.sandboxes.Destroy(context.Background(), sandboxID); err != nil {
			o.logger.Error("sandbox destroy failed", "task_id", t.ID, "error", err)
		}
		o.appendEvent(context.Background(), t, task.EventSandboxDestroyed, map[string]any{"sandbox_id": sandboxID})
	}()

	sb, err := o.sandboxes.Create(ctx, sandboxID, task.DefaultSandboxConfig())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		o.appendEvent(ctx, t, task.EventOrchestrationFailed, map[string]any{"stage": "acquiring_sandbox", "error": err.Error()})
		return fmt.Errorf("orchestrator: acquire sandbox for %s: %w: %w", t.ID, task.ErrSandbox, err)
	}
	o.appendEvent(ctx, t, task.EventSandboxCreated, map[string]any{"sandbox_id": sb.ID, "port_map": sb.PortMap})

	o.appendEvent(ctx, t, task.EventPlanningStarted, nil)
	plan, err := o.planner.Plan(ctx, t.Goal, t.Context)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		o.appendEvent(ctx, t, task.EventOrchestrationFailed, map[string]any{"stage": "planning", "error": err.Error()})
		return fmt.Errorf("orchestrator: plan task %s: %w", t.ID, err)
	}
	t.Plan = plan
	o.appendEvent(ctx, t, task.EventPlanGenerated, map[string]any{"steps": stepSummaries(plan)})

	if err := o.executePlan(ctx, t, sb); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		o.appendEvent(ctx, t, task.EventOrchestrationFailed, map[string]any{"stage": "executing", "error": err.Error()})
		return err
	}

	if t.AllStepsCompleted() {
		o.appendEvent(ctx, t, task.EventTaskSucceeded, nil)
	} else {
		o.appendEvent(ctx, t, task.EventTaskCompletedWithFailures, nil)
	}
	return nil
}

func (o *Orchestrator) executePlan(ctx context.Context, t *task.Task, sb *task.Sandbox) error {
	o.appendEvent(ctx, t, task.EventExecutionStarted, nil)

	execCtx := registry.ExecContext{TaskID: t.ID, SandboxID: sb.ID, DefaultCwd: "/work"}

	for i := 0; i < len(t.Plan); i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("orchestrator: cancelled: %w", err)
		}

		step := t.Plan[i]
		o.appendEvent(ctx, t, task.EventStepStarted, map[string]any{"step_id": step.ID, "tool": step.Tool})

		step.Status = task.StepRunning
		o.executor.ExecuteStep(ctx, step, execCtx)

		o.appendEvent(ctx, t, task.EventStepCompleted, map[string]any{
			"step_id": step.ID,
			"success": step.Result != nil && step.Result.Success,
			"output":  truncate(stepOutput(step), stepOutputTruncateLimit),
		})

		maxDepth := o.cfg.MaxCorrectionDepth
		if maxDepth <= 0 {
			maxDepth = MaxCorrectionDepth
		}
		if o.cfg.EnableCritic && step.CorrectionDepth < maxDepth {
			i = o.runCritic(ctx, t, step, i)
		}

		if step.Status == task.StepFailed && step.Required {
			o.appendEvent(ctx, t, task.EventExecutionStopped, map[string]any{"step_id": step.ID})
			break
		}
	}
	return nil
}

// runCritic evaluates the just-executed step and, if corrections are
// produced, splices them into the plan immediately after index i. Returns
// the (possibly unchanged) index the execution loop should resume from.
func (o *Orchestrator) runCritic(ctx context.Context, t *task.Task, step *task.Step, i int) int {
	history := make([]*task.Step, 0, i+1)
	for j := 0; j <= i; j++ {
		history = append(history, t.Plan[j])
	}

	eval, corrections, err := o.critic.Evaluate(ctx, t.Goal, t.Plan, history, step)
	if err != nil {
		o.logger.Warn("critic evaluation failed, continuing without correction", "task_id", t.ID, "step_id", step.ID, "error", err)
	}
	o.appendEvent(ctx, t, task.EventCriticEvaluation, map[string]any{
		"step_id":     step.ID,
		"on_track":    eval.OnTrack,
		"confidence":  eval.Confidence,
		"issues":      eval.Issues,
		"suggestions": eval.Suggestions,
	})

	if len(corrections) == 0 {
		return i
	}

	rest := append([]*task.Step{}, t.Plan[i+1:]...)
	t.Plan = append(t.Plan[:i+1], append(corrections, rest...)...)
	o.appendEvent(ctx, t, task.EventCorrectionApplied, map[string]any{
		"after_step_id": step.ID,
		"steps":         stepSummaries(corrections),
	})
	return i
}

func (o *Orchestrator) appendEvent(ctx context.Context, t *task.Task, typ task.EventType, data map[string]any) {
	ev := task.NewEvent(t.ID, typ, data)
	seq, err := o.store.AppendEvent(ctx, t.ID, ev)
	if err != nil {
		o.logger.Error("append event failed", "task_id", t.ID, "type", typ, "error", err)
		return
	}
	ev.Seq = seq
	t.Events = append(t.Events, ev)

	if o.stream != nil {
		se, err := stream.NewTaskEvent(ev)
		if err != nil {
			o.logger.Error("encode stream event failed", "task_id", t.ID, "type", typ, "error", err)
			return
		}
		if err := o.stream.Append(se); err != nil {
			o.logger.Error("publish stream event failed", "task_id", t.ID, "type", typ, "error", err)
		}
	}
}

func stepOutput(step *task.Step) string {
	if step.Result == nil {
		return ""
	}
	if step.Result.Error != "" {
		return step.Result.Error
	}
	return step.Result.Output
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...[truncated]"
}

func stepSummaries(steps []*task.Step) []map[string]any {
	out := make([]map[string]any, 0, len(steps))
	for _, s := range steps {
		out = append(out, map[string]any{"id": s.ID, "tool": s.Tool, "description": s.Description})
	}
	return out
}
