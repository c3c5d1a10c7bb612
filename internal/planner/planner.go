// Package planner implements the Planner (component C4): it turns a task's
// goal into an ordered, validated sequence of Steps by prompting the
// language model once and normalizing its response.
package planner

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

// Planner builds a plan for one task goal via a single LLM call.
type Planner struct {
	llm      llmclient.LLM
	registry *registry.Registry
}

// New creates a Planner.
func New(llm llmclient.LLM, reg *registry.Registry) *Planner {
	return &Planner{llm: llm, registry: reg}
}

// rawStep is the shape the model is instructed to emit per step.
type rawStep struct {
	ID               string         `json:"id"`
	Tool             string         `json:"tool"`
	Description      string         `json:"description"`
	Arguments        map[string]any `json:"arguments"`
	SuccessCriterion string         `json:"success_criterion"`
	Required         *bool          `json:"required"`
}

// Plan prompts the model for a step sequence addressing goal, validates it
// against the registry, and returns the resulting Steps. A JSON parse
// failure or a step referencing an unregistered tool is a terminal
// planning error.
func (p *Planner) Plan(ctx context.Context, goal string, context_ map[string]string) ([]*task.Step, error) {
	prompt := p.buildPrompt(goal, context_)

	response, err := p.llm.Complete(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("planner: llm call failed: %w: %w", task.ErrPlanning, err)
	}

	raw, err := parseSteps(response)
	if err != nil {
		return nil, fmt.Errorf("planner: %w: %w", task.ErrPlanning, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("planner: model returned an empty plan: %w", task.ErrPlanning)
	}

	steps := make([]*task.Step, 0, len(raw))
	for i, rs := range raw {
		if rs.Tool == "" {
			return nil, fmt.Errorf("planner: step %d is missing a tool: %w", i, task.ErrValidation)
		}
		if _, err := p.registry.DescribeOne(rs.Tool); err != nil {
			return nil, fmt.Errorf("planner: step %d: %w: %w", i, task.ErrValidation, err)
		}
		id := rs.ID
		if id == "" {
			id = uuid.NewString()
		}
		required := true
		if rs.Required != nil {
			required = *rs.Required
		}
		steps = append(steps, &task.Step{
			ID:               id,
			Description:      rs.Description,
			Tool:             rs.Tool,
			Arguments:        rs.Arguments,
			SuccessCriterion: rs.SuccessCriterion,
			Required:         required,
			Status:           task.StepPending,
		})
	}
	return steps, nil
}

// parseSteps normalizes small, deterministic model quirks — Markdown code
// fences and a bare object instead of an array — before unmarshalling, so
// that malformed-in-substance plans still fail loudly at validation.
func parseSteps(response string) ([]rawStep, error) {
	cleaned := stripCodeFences(response)

	var steps []rawStep
	if err := json.Unmarshal([]byte(cleaned), &steps); err == nil {
		return steps, nil
	}

	var single rawStep
	if err := json.Unmarshal([]byte(cleaned), &single); err == nil {
		return []rawStep{single}, nil
	}

	return nil, fmt.Errorf("could not parse plan as a JSON array or object: %s", truncateForError(cleaned))
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx != -1 {
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "json" || firstLine == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateForError(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func (p *Planner) buildPrompt(goal string, context_ map[string]string) string {
	var sb strings.Builder
	sb.WriteString("You are an autonomous task-planning agent. Given a goal, produce an ordered plan of tool invocations that accomplishes it.\n\n")
	sb.WriteString("Available tools:\n")
	for _, desc := range p.registry.Describe() {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", desc.Name, desc.Description))
		if desc.Schema != nil {
			if schemaJSON, err := json.Marshal(desc.Schema); err == nil {
				sb.WriteString(fmt.Sprintf("  arguments schema: %s\n", schemaJSON))
			}
		}
	}
	sb.WriteString("\nRespond with a JSON array only, no prose, no markdown fences. Each element must have: id, tool, description, arguments, success_criterion, required.\n\n")
	sb.WriteString(fmt.Sprintf("Goal: %s\n", goal))
	if len(context_) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range context_ {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, v))
		}
	}
	return sb.String()
}
