package tools

import (
	"github.com/thruflo/orchcore/internal/registry"
	"github.com/thruflo/orchcore/internal/sandbox"
)

// RegisterAll registers the five canonical sandbox-backed tools into r.
func RegisterAll(r *registry.Registry, manager *sandbox.Manager) {
	r.Register(NewShellTool(manager))
	r.Register(NewFileReadTool(manager))
	r.Register(NewFileWriteTool(manager))
	r.Register(NewFileListTool(manager))
	r.Register(NewBrowserTool(manager))
}
