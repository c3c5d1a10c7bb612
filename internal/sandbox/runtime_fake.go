package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/thruflo/orchcore/internal/task"
)

// deniedSuffixes mirrors the file service's sensitive-suffix deny list from
// §4.2's security posture.
var deniedSuffixes = []string{".env", ".pem", ".key", "credentials", "id_rsa"}

// blockedCommands mirrors the shell service's command blocklist.
var blockedCommands = []string{"rm -rf /", ":(){:|:&};:", "mkfs"}

// FakeSandbox simulates one sandbox's shell/file/browser services behind a
// single httptest.Server, so FakeRuntime exercises the same security posture
// (blocklist, path allowlist) real in-sandbox services enforce.
type FakeSandbox struct {
	server *httptest.Server
	files  map[string][]byte
	mu     sync.Mutex
}

// FakeRuntime implements both Runtime and ServiceClient entirely in
// memory, for tests that exercise the Manager without a live provider
// account or real sandbox images.
type FakeRuntime struct {
	mu        sync.Mutex
	sandboxes map[string]*FakeSandbox

	CreateCalls  []string
	DestroyCalls []string
}

// NewFakeRuntime creates an empty FakeRuntime.
func NewFakeRuntime() *FakeRuntime {
	return &FakeRuntime{sandboxes: make(map[string]*FakeSandbox)}
}

func (f *FakeRuntime) Provision(ctx context.Context, sandboxID string, cfg task.SandboxConfig) (string, map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.sandboxes[sandboxID]; ok {
		existing.server.Close()
	}

	fs := &FakeSandbox{files: make(map[string][]byte)}
	fs.server = httptest.NewServer(fs.handler())
	f.sandboxes[sandboxID] = fs
	f.CreateCalls = append(f.CreateCalls, sandboxID)

	serviceURLs := make(map[string]string, len(cfg.Services))
	for _, svc := range cfg.Services {
		serviceURLs[svc] = fs.server.URL
	}
	return sandboxID, serviceURLs, nil
}

func (f *FakeRuntime) Teardown(ctx context.Context, sandboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fs, ok := f.sandboxes[sandboxID]; ok {
		fs.server.Close()
		delete(f.sandboxes, sandboxID)
	}
	f.DestroyCalls = append(f.DestroyCalls, sandboxID)
	return nil
}

func (f *FakeRuntime) ImageVersion(ctx context.Context, sandboxID string) (string, error) {
	return "1.0.0", nil
}

// SetFile seeds path's content on sandboxID's fake filesystem, for test setup.
func (f *FakeRuntime) SetFile(sandboxID, path string, content []byte) {
	f.mu.Lock()
	fs := f.sandboxes[sandboxID]
	f.mu.Unlock()
	if fs == nil {
		return
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.files[path] = content
}

func (fs *FakeSandbox) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Command string `json:"command"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, blocked := range blockedCommands {
			if strings.Contains(req.Command, blocked) {
				json.NewEncoder(w).Encode(ShellResult{Success: false, Error: "command blocked by policy"})
				return
			}
		}
		json.NewEncoder(w).Encode(ShellResult{Success: true, ExitCode: 0, Stdout: "ok"})
	})
	mux.HandleFunc("/read", func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Query().Get("path")
		if denied, reason := isPathDenied(p); denied {
			json.NewEncoder(w).Encode(FileReadResult{Success: false, Path: p, Error: reason})
			return
		}
		fs.mu.Lock()
		content, ok := fs.files[p]
		fs.mu.Unlock()
		if !ok {
			json.NewEncoder(w).Encode(FileReadResult{Success: false, Path: p, Error: "not found"})
			return
		}
		json.NewEncoder(w).Encode(FileReadResult{Success: true, Path: p, Content: string(content), Size: len(content)})
	})
	mux.HandleFunc("/write", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if denied, reason := isPathDenied(req.Path); denied {
			json.NewEncoder(w).Encode(FileWriteResult{Success: false, Path: req.Path, Error: reason})
			return
		}
		fs.mu.Lock()
		fs.files[req.Path] = []byte(req.Content)
		fs.mu.Unlock()
		json.NewEncoder(w).Encode(FileWriteResult{Success: true, Path: req.Path, Size: len(req.Content)})
	})
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		dir := r.URL.Query().Get("path")
		fs.mu.Lock()
		entries := make([]FileEntry, 0)
		for p := range fs.files {
			if path.Dir(p) == dir {
				entries = append(entries, FileEntry{Name: path.Base(p), Type: "file", Size: len(fs.files[p])})
			}
		}
		fs.mu.Unlock()
		json.NewEncoder(w).Encode(FileListResult{Success: true, Path: dir, Files: entries})
	})
	return mux
}

func isPathDenied(p string) (bool, string) {
	if !strings.HasPrefix(p, "/work") {
		return true, "path outside allowed root /work"
	}
	for _, suffix := range deniedSuffixes {
		if strings.Contains(strings.ToLower(p), suffix) {
			return true, "path matches sensitive-suffix deny list"
		}
	}
	return false, ""
}

// ServiceClient implementation — every call resolves serviceURLs to the
// matching FakeSandbox's httptest server and issues a real HTTP request,
// exactly as HTTPServiceClient would against a live sandbox.
var fakeHTTPClient = NewHTTPServiceClient()

func (f *FakeRuntime) Health(ctx context.Context, serviceURLs map[string]string, service string) bool {
	return fakeHTTPClient.Health(ctx, serviceURLs, service)
}

func (f *FakeRuntime) ExecuteShell(ctx context.Context, serviceURLs map[string]string, command string, timeout time.Duration, cwd string) ShellResult {
	return fakeHTTPClient.ExecuteShell(ctx, serviceURLs, command, timeout, cwd)
}

func (f *FakeRuntime) ReadFile(ctx context.Context, serviceURLs map[string]string, path string) FileReadResult {
	return fakeHTTPClient.ReadFile(ctx, serviceURLs, path)
}

func (f *FakeRuntime) WriteFile(ctx context.Context, serviceURLs map[string]string, path string, content string) FileWriteResult {
	return fakeHTTPClient.WriteFile(ctx, serviceURLs, path, content)
}

func (f *FakeRuntime) ListDirectory(ctx context.Context, serviceURLs map[string]string, path string) FileListResult {
	return fakeHTTPClient.ListDirectory(ctx, serviceURLs, path)
}

func (f *FakeRuntime) ExecuteBrowser(ctx context.Context, serviceURLs map[string]string, action string, opts BrowserOptions) BrowserResult {
	return fakeHTTPClient.ExecuteBrowser(ctx, serviceURLs, action, opts)
}

var (
	_ Runtime       = (*FakeRuntime)(nil)
	_ ServiceClient = (*FakeRuntime)(nil)
)
