// Package sandbox implements the Sandbox Manager (component C2): it creates,
// tracks, and destroys isolated execution environments, and exposes
// RPC-style façades (shell, file, browser) keyed by sandbox ID.
//
// The Manager never talks to a specific container/VM provider directly —
// that is delegated to a Runtime, which provisions/tears down the backing
// compute, and a ServiceClient, which speaks the shell/file/browser HTTP
// wire contract against whatever service URLs the Runtime reports. The
// reference Runtime (runtime_sprites.go) provisions one remote VM per
// sandbox via the Sprites SDK; the reference ServiceClient (service_http.go)
// is a plain HTTP client. A combined in-memory fake (runtime_fake.go) backs
// both interfaces with an httptest server for tests.
package sandbox

import (
	"context"
	"time"

	"github.com/thruflo/orchcore/internal/task"
)

// Runtime is the container/VM-provider collaborator: it provisions and tears
// down the backing compute for one sandbox, and reports where its
// in-sandbox services can be reached.
type Runtime interface {
	// Provision creates (or reaps-then-recreates) the backing compute for
	// sandboxID per cfg. It returns the provider's own identity for the
	// backing compute (container/VM ID) and the sandbox's service base URLs
	// keyed by logical service name ("shell", "file", "browser").
	Provision(ctx context.Context, sandboxID string, cfg task.SandboxConfig) (containerID string, serviceURLs map[string]string, err error)

	// Teardown stops and removes the backing compute for sandboxID. Must be
	// safe to call on an already-removed sandbox.
	Teardown(ctx context.Context, sandboxID string) error

	// ImageVersion reports the image/template version backing sandboxID,
	// used to check SandboxConfig.MinRuntimeVersion. Empty string if the
	// runtime does not version its images.
	ImageVersion(ctx context.Context, sandboxID string) (string, error)
}

// ServiceClient speaks the shell/file/browser HTTP wire contract exposed by
// a sandbox's in-sandbox services. Network errors, JSON parse errors, and
// HTTP non-2xx are all funneled by implementations into {success:false}.
type ServiceClient interface {
	Health(ctx context.Context, serviceURLs map[string]string, service string) bool
	ExecuteShell(ctx context.Context, serviceURLs map[string]string, command string, timeout time.Duration, cwd string) ShellResult
	ReadFile(ctx context.Context, serviceURLs map[string]string, path string) FileReadResult
	WriteFile(ctx context.Context, serviceURLs map[string]string, path string, content string) FileWriteResult
	ListDirectory(ctx context.Context, serviceURLs map[string]string, path string) FileListResult
	ExecuteBrowser(ctx context.Context, serviceURLs map[string]string, action string, opts BrowserOptions) BrowserResult
}

// ShellResult mirrors the shell service's /execute response shape.
type ShellResult struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Error    string `json:"error,omitempty"`
}

// FileReadResult mirrors the file service's /read response shape.
type FileReadResult struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Size    int    `json:"size"`
	Path    string `json:"path"`
	Error   string `json:"error,omitempty"`
}

// FileWriteResult mirrors the file service's /write response shape.
type FileWriteResult struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Error   string `json:"error,omitempty"`
}

// FileEntry is one row of a directory listing.
type FileEntry struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     int    `json:"size"`
	Modified string `json:"modified"`
}

// FileListResult mirrors the file service's /list response shape.
type FileListResult struct {
	Success bool        `json:"success"`
	Path    string      `json:"path"`
	Files   []FileEntry `json:"files"`
	Error   string      `json:"error,omitempty"`
}

// BrowserOptions carries the optional fields of a browser tool invocation.
type BrowserOptions struct {
	URL          string `json:"url"`
	Selector     string `json:"selector,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Timeout      int    `json:"timeout,omitempty"`
}

// BrowserResult is a superset of every action's response shape; only the
// fields relevant to the requested action are populated.
type BrowserResult struct {
	Success    bool       `json:"success"`
	Title      string     `json:"title,omitempty"`
	Text       string     `json:"text,omitempty"`
	Screenshot string     `json:"screenshot,omitempty"` // base64 PNG
	Table      [][]string `json:"table,omitempty"`
	URL        string     `json:"url,omitempty"`
	Error      string     `json:"error,omitempty"`
}
