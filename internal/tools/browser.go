package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/thruflo/orchcore/internal/registry"
	"github.com/thruflo/orchcore/internal/sandbox"
	"github.com/thruflo/orchcore/internal/task"
)

// BrowserArgs is the browser tool's argument contract.
type BrowserArgs struct {
	Action       string `json:"action" jsonschema:"one of open, read, screenshot, extract_table, click, fill_form"`
	URL          string `json:"url" jsonschema:"the page URL to act on"`
	Selector     string `json:"selector,omitempty" jsonschema:"CSS selector, for click/fill_form/extract_table"`
	Instructions string `json:"instructions,omitempty" jsonschema:"free-form instructions, for fill_form"`
	Timeout      int    `json:"timeout,omitempty" jsonschema:"timeout in milliseconds"`
}

// BrowserTool forwards to Manager.ExecuteBrowser. Result shape depends on
// the requested action: title+text for read, a base64 PNG artifact for
// screenshot, a table matrix for extract_table, a URL confirmation for the
// rest.
type BrowserTool struct {
	manager *sandbox.Manager
	schema  *jsonschema.Schema
}

func NewBrowserTool(manager *sandbox.Manager) *BrowserTool {
	return &BrowserTool{manager: manager, schema: registry.NewHandlerSchema[BrowserArgs]()}
}

func (t *BrowserTool) Name() string              { return "browser" }
func (t *BrowserTool) Description() string       { return "Drive a headless browser inside the task's sandbox." }
func (t *BrowserTool) Schema() *jsonschema.Schema { return t.schema }

func (t *BrowserTool) Invoke(ctx context.Context, args map[string]any, execCtx registry.ExecContext) task.StepResult {
	action, _ := args["action"].(string)
	url, _ := args["url"].(string)
	if action == "" || url == "" {
		return task.StepResult{Success: false, Error: "browser: action and url are required"}
	}

	opts := sandbox.BrowserOptions{URL: url}
	opts.Selector, _ = args["selector"].(string)
	opts.Instructions, _ = args["instructions"].(string)
	if v, ok := args["timeout"].(float64); ok {
		opts.Timeout = int(v)
	}

	result, err := t.manager.ExecuteBrowser(ctx, execCtx.SandboxID, action, opts)
	if err != nil {
		return task.StepResult{Success: false, Error: err.Error()}
	}
	if !result.Success {
		return task.StepResult{Success: false, Error: result.Error}
	}

	switch action {
	case "screenshot":
		return task.StepResult{
			Success: true,
			Output:  "screenshot captured",
			Artifacts: []task.Artifact{{
				Type:    task.ArtifactData,
				Content: result.Screenshot,
				Metadata: map[string]any{"encoding": "base64", "format": "png", "url": url},
			}},
		}
	case "extract_table":
		return task.StepResult{Success: true, Output: fmt.Sprintf("extracted %d rows", len(result.Table)), Metadata: map[string]any{"table": result.Table}}
	case "read":
		return task.StepResult{Success: true, Output: result.Text, Metadata: map[string]any{"title": result.Title}}
	default:
		return task.StepResult{Success: true, Output: fmt.Sprintf("%s on %s confirmed", action, url)}
	}
}

var _ registry.Handler = (*BrowserTool)(nil)
