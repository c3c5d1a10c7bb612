package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/thruflo/orchcore/internal/registry"
	"github.com/thruflo/orchcore/internal/sandbox"
	"github.com/thruflo/orchcore/internal/task"
)

// FileReadArgs is the file_read tool's argument contract.
type FileReadArgs struct {
	Path string `json:"path" jsonschema:"absolute path inside the sandbox to read"`
}

// FileReadTool forwards to Manager.ReadFile.
type FileReadTool struct {
	manager *sandbox.Manager
	schema  *jsonschema.Schema
}

func NewFileReadTool(manager *sandbox.Manager) *FileReadTool {
	return &FileReadTool{manager: manager, schema: registry.NewHandlerSchema[FileReadArgs]()}
}

func (t *FileReadTool) Name() string               { return "file_read" }
func (t *FileReadTool) Description() string        { return "Read a file's content from the task's sandbox." }
func (t *FileReadTool) Schema() *jsonschema.Schema  { return t.schema }

func (t *FileReadTool) Invoke(ctx context.Context, args map[string]any, execCtx registry.ExecContext) task.StepResult {
	path, _ := args["path"].(string)
	if path == "" {
		return task.StepResult{Success: false, Error: "file_read: path is required"}
	}
	result, err := t.manager.ReadFile(ctx, execCtx.SandboxID, path)
	if err != nil {
		return task.StepResult{Success: false, Error: err.Error()}
	}
	if !result.Success {
		return task.StepResult{Success: false, Error: result.Error}
	}
	return task.StepResult{Success: true, Output: result.Content, Metadata: map[string]any{"size": result.Size, "path": result.Path}}
}

// FileWriteArgs is the file_write tool's argument contract.
type FileWriteArgs struct {
	Path    string `json:"path" jsonschema:"absolute path inside the sandbox to write"`
	Content string `json:"content" jsonschema:"content to write"`
}

// FileWriteTool forwards to Manager.WriteFile.
type FileWriteTool struct {
	manager *sandbox.Manager
	schema  *jsonschema.Schema
}

func NewFileWriteTool(manager *sandbox.Manager) *FileWriteTool {
	return &FileWriteTool{manager: manager, schema: registry.NewHandlerSchema[FileWriteArgs]()}
}

func (t *FileWriteTool) Name() string              { return "file_write" }
func (t *FileWriteTool) Description() string       { return "Write content to a file inside the task's sandbox, creating parent directories." }
func (t *FileWriteTool) Schema() *jsonschema.Schema { return t.schema }

func (t *FileWriteTool) Invoke(ctx context.Context, args map[string]any, execCtx registry.ExecContext) task.StepResult {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return task.StepResult{Success: false, Error: "file_write: path is required"}
	}
	result, err := t.manager.WriteFile(ctx, execCtx.SandboxID, path, content)
	if err != nil {
		return task.StepResult{Success: false, Error: err.Error()}
	}
	if !result.Success {
		return task.StepResult{Success: false, Error: result.Error}
	}
	return task.StepResult{
		Success: true,
		Output:  fmt.Sprintf("wrote %d bytes to %s", result.Size, result.Path),
		Artifacts: []task.Artifact{{
			Type:     task.ArtifactFile,
			Path:     result.Path,
			Metadata: map[string]any{"size": result.Size},
		}},
	}
}

// FileListArgs is the file_list tool's argument contract.
type FileListArgs struct {
	Path string `json:"path,omitempty" jsonschema:"directory inside the sandbox to list; defaults to the sandbox's default working directory"`
}

// FileListTool forwards to Manager.ListDirectory.
type FileListTool struct {
	manager *sandbox.Manager
	schema  *jsonschema.Schema
}

func NewFileListTool(manager *sandbox.Manager) *FileListTool {
	return &FileListTool{manager: manager, schema: registry.NewHandlerSchema[FileListArgs]()}
}

func (t *FileListTool) Name() string              { return "file_list" }
func (t *FileListTool) Description() string       { return "List a directory's contents inside the task's sandbox." }
func (t *FileListTool) Schema() *jsonschema.Schema { return t.schema }

func (t *FileListTool) Invoke(ctx context.Context, args map[string]any, execCtx registry.ExecContext) task.StepResult {
	path, _ := args["path"].(string)
	if path == "" {
		path = execCtx.DefaultCwd
	}
	result, err := t.manager.ListDirectory(ctx, execCtx.SandboxID, path)
	if err != nil {
		return task.StepResult{Success: false, Error: err.Error()}
	}
	if !result.Success {
		return task.StepResult{Success: false, Error: result.Error}
	}

	listing := fmt.Sprintf("%d entries in %s:\n", len(result.Files), result.Path)
	for _, f := range result.Files {
		listing += fmt.Sprintf("  %s\t%s\t%d bytes\n", f.Type, f.Name, f.Size)
	}

	entries := make([]map[string]any, 0, len(result.Files))
	for _, f := range result.Files {
		entries = append(entries, map[string]any{"name": f.Name, "type": f.Type, "size": f.Size, "modified": f.Modified})
	}

	return task.StepResult{Success: true, Output: listing, Metadata: map[string]any{"entries": entries}}
}

var (
	_ registry.Handler = (*FileReadTool)(nil)
	_ registry.Handler = (*FileWriteTool)(nil)
	_ registry.Handler = (*FileListTool)(nil)
)
