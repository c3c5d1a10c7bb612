// Package registry is the process-wide Tool Registry (component C1): a flat
// map from tool name to handler. Each handler's JSON-schema input contract
// is reflected once, at registration time, from the Go struct the handler
// declares as its argument type — the same jsonschema-struct-tag idiom the
// MCP tool servers in this codebase's lineage use, so there is exactly one
// source of truth for a tool's contract.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/thruflo/orchcore/internal/logging"
	"github.com/thruflo/orchcore/internal/task"
)

// ExecContext is the bounded context a Handler is invoked with. It carries
// no deadline itself — callers are expected to derive ctx from one.
type ExecContext struct {
	TaskID      string
	SandboxID   string
	DefaultCwd  string
	Timeout     int // milliseconds; 0 means the handler's own default
}

// Handler is the uniform invocation signature every registered tool
// implements. Implementations must never panic across Invoke; the registry
// does not recover on their behalf (the Executor does — see internal/executor).
type Handler interface {
	// Name is the unique tool name used to look the handler up.
	Name() string
	// Description is shown to the Planner/Critic in the tool manifest.
	Description() string
	// Schema is the JSON Schema document for this tool's argument bag,
	// reflected once at construction time via jsonschema.For[ArgsType]() —
	// see NewHandlerSchema.
	Schema() *jsonschema.Schema
	// Invoke runs the tool. args is the step's raw argument bag.
	Invoke(ctx context.Context, args map[string]any, execCtx ExecContext) task.StepResult
}

// NewHandlerSchema reflects the JSON Schema for a tool's argument struct.
// Tool packages call this once, at package init or constructor time:
//
//	schema := registry.NewHandlerSchema[ShellArgs]()
func NewHandlerSchema[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		// A struct that cannot be reflected into a schema is a handler bug
		// caught at startup, well before any task reaches it.
		panic(fmt.Sprintf("registry: cannot derive schema: %v", err))
	}
	return schema
}

// ToolDescription is what Describe() hands to the Planner's prompt.
type ToolDescription struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Schema      *jsonschema.Schema `json:"schema"`
}

// Registry is a process-wide, concurrency-safe map of tool name to Handler.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Handler
	schemas map[string]*jsonschema.Schema
	logger  *logging.Logger
}

// New creates an empty Registry.
func New(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.With("component", "registry")
	}
	return &Registry{
		tools:   make(map[string]Handler),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  logger,
	}
}

// Register adds a handler under its own Name(). Idempotent: a second
// registration under the same name overwrites the first and logs a warning
// — rejection is by policy elsewhere, never an error here.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := h.Name()
	if _, exists := r.tools[name]; exists {
		r.logger.Warn("tool re-registered, overwriting", "tool", name)
	}

	r.tools[name] = h
	r.schemas[name] = h.Schema()
}

// Get looks up a handler by name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.tools[name]
	return h, ok
}

// Has reports whether name resolves in the registry.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// All returns every registered tool name, sorted for stable iteration.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the tool manifest the Planner embeds in its prompt.
func (r *Registry) Describe() []ToolDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]ToolDescription, 0, len(r.tools))
	for name, h := range r.tools {
		descs = append(descs, ToolDescription{
			Name:        name,
			Description: h.Description(),
			Schema:      r.schemas[name],
		})
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// DescribeOne returns the manifest entry for a single tool, or an error if
// the tool name isn't registered — used by the Planner and Critic to
// validate a step or correction's tool reference before it ever reaches the
// Executor.
func (r *Registry) DescribeOne(name string) (ToolDescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.tools[name]
	if !ok {
		return ToolDescription{}, fmt.Errorf("tool not found: %s", name)
	}
	return ToolDescription{Name: name, Description: h.Description(), Schema: r.schemas[name]}, nil
}
