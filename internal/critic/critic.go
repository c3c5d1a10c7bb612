// Package critic implements the Critic (component C6): after each step it
// asks the language model whether execution is still on track, and may
// splice corrective steps into the remaining plan.
package critic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/thruflo/orchcore/internal/llmclient"
	"github.com/thruflo/orchcore/internal/registry"
	"github.com/thruflo/orchcore/internal/task"
)

// DefaultConfidenceThreshold is the confidence a not-on-track evaluation
// must clear before its corrective steps are spliced in.
const DefaultConfidenceThreshold = 0.7

// Evaluation is the Critic's verdict on a single executed step.
type Evaluation struct {
	OnTrack     bool     `json:"on_track"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
}

type rawCorrection struct {
	Tool             string         `json:"tool"`
	Description      string         `json:"description"`
	Arguments        map[string]any `json:"arguments"`
	SuccessCriterion string         `json:"success_criterion"`
	Required         *bool          `json:"required"`
}

// Critic evaluates executed steps and proposes corrections.
type Critic struct {
	llm                 llmclient.LLM
	registry            *registry.Registry
	confidenceThreshold float64
}

// New creates a Critic with the default confidence threshold.
func New(llm llmclient.LLM, reg *registry.Registry) *Critic {
	return &Critic{llm: llm, registry: reg, confidenceThreshold: DefaultConfidenceThreshold}
}

// Evaluate asks the model to judge the just-executed step in the context of
// the goal, full plan, and execution history so far. Any failure inside the
// Critic (LLM error, JSON parse failure) is non-fatal: it is reported via
// the returned error, and callers must treat that as "emit no correction,
// continue execution" per the optimistic fallback below — Evaluate itself
// never panics and always returns a usable Evaluation even on error.
func (c *Critic) Evaluate(ctx context.Context, goal string, plan []*task.Step, history []*task.Step, justExecuted *task.Step) (Evaluation, []*task.Step, error) {
	prompt := c.buildPrompt(goal, plan, history, justExecuted)

	response, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return optimisticFallback(), nil, err
		}
		return optimisticFallback(), nil, fmt.Errorf("critic: llm call failed: %w: %w", task.ErrPlanning, err)
	}

	eval, corrections, err := c.parse(response)
	if err != nil {
		return optimisticFallback(), nil, fmt.Errorf("critic: %w: %w", task.ErrPlanning, err)
	}

	if eval.OnTrack || eval.Confidence < c.confidenceThreshold {
		return eval, nil, nil
	}

	steps, err := c.buildCorrectiveSteps(corrections, justExecuted)
	if err != nil {
		return eval, nil, fmt.Errorf("critic: %w", err)
	}
	return eval, steps, nil
}

// optimisticFallback is the deliberately conservative default when the
// Critic itself fails: onTrack=true, confidence=0.5, so an unreliable
// critic cannot destabilize otherwise healthy execution.
func optimisticFallback() Evaluation {
	return Evaluation{OnTrack: true, Confidence: 0.5}
}

type responseEnvelope struct {
	Evaluation
	Corrections []rawCorrection `json:"corrections"`
}

func (c *Critic) parse(response string) (Evaluation, []rawCorrection, error) {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var env responseEnvelope
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		return Evaluation{}, nil, fmt.Errorf("could not parse evaluation: %w", err)
	}
	return env.Evaluation, env.Corrections, nil
}

func (c *Critic) buildCorrectiveSteps(corrections []rawCorrection, parent *task.Step) ([]*task.Step, error) {
	steps := make([]*task.Step, 0, len(corrections))
	for i, rc := range corrections {
		if rc.Tool == "" {
			return nil, fmt.Errorf("critic: correction %d is missing a tool: %w", i, task.ErrValidation)
		}
		if _, err := c.registry.DescribeOne(rc.Tool); err != nil {
			return nil, fmt.Errorf("critic: correction %d: %w: %w", i, task.ErrValidation, err)
		}
		required := true
		if rc.Required != nil {
			required = *rc.Required
		}
		steps = append(steps, &task.Step{
			ID:               fmt.Sprintf("correction-%s", uuid.NewString()),
			Description:      rc.Description,
			Tool:             rc.Tool,
			Arguments:        rc.Arguments,
			SuccessCriterion: rc.SuccessCriterion,
			Required:         required,
			CorrectionDepth:  parent.CorrectionDepth + 1,
			Status:           task.StepPending,
		})
	}
	return steps, nil
}

func (c *Critic) buildPrompt(goal string, plan []*task.Step, history []*task.Step, justExecuted *task.Step) string {
	var sb strings.Builder
	sb.WriteString("You are reviewing the progress of an autonomous agent executing a plan.\n\n")
	sb.WriteString(fmt.Sprintf("Goal: %s\n\n", goal))
	sb.WriteString("Full plan:\n")
	for _, s := range plan {
		sb.WriteString(fmt.Sprintf("  [%s] %s (tool=%s, status=%s)\n", s.ID, s.Description, s.Tool, s.Status))
	}
	sb.WriteString("\nExecution history so far:\n")
	for _, s := range history {
		outcome := "pending"
		if s.Result != nil {
			outcome = fmt.Sprintf("success=%v output=%s", s.Result.Success, truncate(s.Result.Output, 300))
		}
		sb.WriteString(fmt.Sprintf("  [%s] %s -> %s\n", s.ID, s.Description, outcome))
	}
	sb.WriteString(fmt.Sprintf("\nJust executed: [%s] %s, success=%v\n", justExecuted.ID, justExecuted.Description, justExecuted.Result != nil && justExecuted.Result.Success))
	sb.WriteString("\nRespond with JSON only: {\"on_track\": bool, \"issues\": [string], \"suggestions\": [string], \"confidence\": 0..1, \"corrections\": [{tool, description, arguments, success_criterion, required}]}. Omit \"corrections\" if on_track is true.\n")
	return sb.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
