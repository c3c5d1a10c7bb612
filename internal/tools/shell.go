// Package tools implements the five canonical Tool Adapters (component C3):
// thin bridges from a registered tool name to a Sandbox Manager call,
// translating arguments and normalizing results. Each adapter's argument
// type is the Go struct the Tool Registry reflects its JSON Schema from.
package tools

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/thruflo/orchcore/internal/registry"
	"github.com/thruflo/orchcore/internal/sandbox"
	"github.com/thruflo/orchcore/internal/task"
)

const outputTruncateLimit = 10000

// ShellArgs is the shell tool's argument contract.
type ShellArgs struct {
	Command string `json:"command" jsonschema:"the shell command to run"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"timeout in milliseconds"`
	Cwd     string `json:"cwd,omitempty" jsonschema:"working directory inside the sandbox"`
}

// ShellTool forwards to Manager.ExecuteShell. Blocklist enforcement lives in
// the in-sandbox service (defense in depth), not here.
type ShellTool struct {
	manager *sandbox.Manager
	schema  *jsonschema.Schema
}

// NewShellTool creates the shell adapter.
func NewShellTool(manager *sandbox.Manager) *ShellTool {
	return &ShellTool{manager: manager, schema: registry.NewHandlerSchema[ShellArgs]()}
}

func (t *ShellTool) Name() string        { return "shell" }
func (t *ShellTool) Description() string { return "Run a shell command inside the task's sandbox." }
func (t *ShellTool) Schema() *jsonschema.Schema { return t.schema }

func (t *ShellTool) Invoke(ctx context.Context, args map[string]any, execCtx registry.ExecContext) task.StepResult {
	command, _ := args["command"].(string)
	if command == "" {
		return task.StepResult{Success: false, Error: "shell: command is required"}
	}
	cwd, _ := args["cwd"].(string)
	if cwd == "" {
		cwd = execCtx.DefaultCwd
	}
	timeoutMs := execCtx.Timeout
	if v, ok := args["timeout"].(float64); ok && v > 0 {
		timeoutMs = int(v)
	}
	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	result, err := t.manager.ExecuteShell(ctx, execCtx.SandboxID, command, timeout, cwd)
	if err != nil {
		return task.StepResult{Success: false, Error: err.Error()}
	}
	if !result.Success && result.Error != "" {
		return task.StepResult{Success: false, Error: result.Error}
	}

	return task.StepResult{
		Success: true,
		Output:  truncate(result.Stdout),
		Metadata: map[string]any{
			"exit_code": result.ExitCode,
			"stderr":    truncate(result.Stderr),
		},
	}
}

func truncate(s string) string {
	if len(s) <= outputTruncateLimit {
		return s
	}
	return s[:outputTruncateLimit] + "\n...[truncated]"
}

var _ registry.Handler = (*ShellTool)(nil)
