package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/thruflo/orchcore/internal/logging"
	"github.com/thruflo/orchcore/internal/task"
)

// healthProbeAttempts and healthProbeInterval bound Create's post-provision
// health probe per §4.2: default 30 one-second attempts.
const (
	healthProbeAttempts = 30
	healthProbeInterval = time.Second
	destroyBudget       = 10 * time.Second
)

// ErrNotFound is returned by Get and the service calls for an unknown
// sandbox ID; Destroy of an unknown ID logs a warning and returns nil.
var ErrNotFound = fmt.Errorf("sandbox: not found")

// Manager is the Sandbox Manager (C2): it owns the process-wide lookup
// table of live sandboxes and exposes the façade calls Tool Adapters use.
// The lookup table is shared across tasks and safe under concurrent
// mutation; no two live sandboxes may share an ID; entry removal always
// precedes the destructive runtime call so a crashed destroy cannot
// double-free.
type Manager struct {
	mu        sync.Mutex
	sandboxes map[string]*task.Sandbox

	runtime Runtime
	svc     ServiceClient
	logger  *logging.Logger
}

// New creates a Manager backed by runtime for provisioning/teardown and svc
// for the shell/file/browser wire contract.
func New(runtime Runtime, svc ServiceClient, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.With("component", "sandbox_manager")
	}
	return &Manager{
		sandboxes: make(map[string]*task.Sandbox),
		runtime:   runtime,
		svc:       svc,
		logger:    logger,
	}
}

// Create provisions a sandbox named id, probes its services for health
// until they respond or the retry budget is exhausted, arms the deferred
// destroy deadline, and records it in the lookup table.
func (m *Manager) Create(ctx context.Context, id string, cfg task.SandboxConfig) (*task.Sandbox, error) {
	if len(cfg.Services) == 0 {
		cfg = task.DefaultSandboxConfig()
	}
	if cfg.DestroyTimeout <= 0 {
		cfg.DestroyTimeout = time.Hour
	}

	m.reapIfPresent(ctx, id)

	containerID, serviceURLs, err := m.runtime.Provision(ctx, id, cfg)
	if err != nil {
		return nil, fmt.Errorf("sandbox: provision %s: %w", id, err)
	}

	sb := &task.Sandbox{
		ID:              id,
		ContainerID:     containerID,
		Status:          task.SandboxCreating,
		CreatedAt:       time.Now().UTC(),
		ServiceURLs:     serviceURLs,
		PortMap:         make(map[string]int),
		DestroyDeadline: time.Now().UTC().Add(cfg.DestroyTimeout),
	}

	if err := m.probeHealth(ctx, serviceURLs, cfg.Services); err != nil {
		_ = m.runtime.Teardown(ctx, id)
		return nil, fmt.Errorf("sandbox: health probe for %s: %w", id, err)
	}

	if cfg.MinRuntimeVersion != "" {
		if err := m.checkVersion(ctx, id, cfg.MinRuntimeVersion); err != nil {
			_ = m.runtime.Teardown(ctx, id)
			return nil, err
		}
	}

	sb.Status = task.SandboxRunning

	m.mu.Lock()
	m.sandboxes[id] = sb
	m.mu.Unlock()

	m.armDeferredDestroy(id, cfg.DestroyTimeout)

	return sb, nil
}

func (m *Manager) reapIfPresent(ctx context.Context, id string) {
	m.mu.Lock()
	_, exists := m.sandboxes[id]
	delete(m.sandboxes, id)
	m.mu.Unlock()
	if exists {
		m.logger.Warn("reaping stale sandbox before create", "sandbox_id", id)
		_ = m.runtime.Teardown(ctx, id)
	}
}

func (m *Manager) probeHealth(ctx context.Context, serviceURLs map[string]string, services []string) error {
	for attempt := 0; attempt < healthProbeAttempts; attempt++ {
		allHealthy := true
		for _, svc := range services {
			if !m.svc.Health(ctx, serviceURLs, svc) {
				allHealthy = false
				break
			}
		}
		if allHealthy {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(healthProbeInterval):
		}
	}
	return fmt.Errorf("services did not become healthy within %d attempts", healthProbeAttempts)
}

func (m *Manager) checkVersion(ctx context.Context, id, constraint string) error {
	version, err := m.runtime.ImageVersion(ctx, id)
	if err != nil || version == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("sandbox: invalid MinRuntimeVersion constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("sandbox: unparseable runtime version %q: %w", version, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("sandbox: runtime version %s does not satisfy %s", version, constraint)
	}
	return nil
}

// armDeferredDestroy schedules a one-shot destroy at the sandbox's deadline,
// unless Destroy has already been called by then.
func (m *Manager) armDeferredDestroy(id string, timeout time.Duration) {
	time.AfterFunc(timeout, func() {
		m.mu.Lock()
		_, stillLive := m.sandboxes[id]
		m.mu.Unlock()
		if !stillLive {
			return
		}
		m.logger.Warn("destroy deadline reached, destroying sandbox", "sandbox_id", id)
		ctx, cancel := context.WithTimeout(context.Background(), destroyBudget)
		defer cancel()
		if err := m.Destroy(ctx, id); err != nil {
			m.logger.Error("deferred destroy failed", "sandbox_id", id, "error", err)
		}
	})
}

// Get returns the live sandbox for id, or ErrNotFound.
func (m *Manager) Get(id string) (*task.Sandbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sb, ok := m.sandboxes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sb, nil
}

// Destroy stops and removes the sandbox for id. Idempotent: destroying an
// unknown sandbox logs a warning and returns nil, never an error — the
// lookup entry is removed before the destructive runtime call so a crash
// mid-teardown cannot race a second Destroy into a double-free.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	_, existed := m.sandboxes[id]
	delete(m.sandboxes, id)
	m.mu.Unlock()

	if !existed {
		m.logger.Warn("destroy called on unknown sandbox", "sandbox_id", id)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, destroyBudget)
	defer cancel()
	if err := m.runtime.Teardown(ctx, id); err != nil {
		m.logger.Error("sandbox teardown failed", "sandbox_id", id, "error", err)
		return fmt.Errorf("sandbox: destroy %s: %w", id, err)
	}
	return nil
}

// DestroyAll tears down every currently live sandbox concurrently, for
// process shutdown. Individual failures are logged, not re-raised.
func (m *Manager) DestroyAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sandboxes))
	for id := range m.sandboxes {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.Destroy(ctx, id); err != nil {
				m.logger.Error("shutdown destroy failed", "sandbox_id", id, "error", err)
			}
		}(id)
	}
	wg.Wait()
}

// ExecuteShell runs command in id's shell service.
func (m *Manager) ExecuteShell(ctx context.Context, id string, command string, timeout time.Duration, cwd string) (ShellResult, error) {
	sb, err := m.Get(id)
	if err != nil {
		return ShellResult{}, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return m.svc.ExecuteShell(ctx, sb.ServiceURLs, command, timeout, cwd), nil
}

// ReadFile reads path from id's file service.
func (m *Manager) ReadFile(ctx context.Context, id string, path string) (FileReadResult, error) {
	sb, err := m.Get(id)
	if err != nil {
		return FileReadResult{}, err
	}
	return m.svc.ReadFile(ctx, sb.ServiceURLs, path), nil
}

// WriteFile writes content to path on id's file service.
func (m *Manager) WriteFile(ctx context.Context, id string, path string, content string) (FileWriteResult, error) {
	sb, err := m.Get(id)
	if err != nil {
		return FileWriteResult{}, err
	}
	return m.svc.WriteFile(ctx, sb.ServiceURLs, path, content), nil
}

// ListDirectory lists path on id's file service.
func (m *Manager) ListDirectory(ctx context.Context, id string, path string) (FileListResult, error) {
	sb, err := m.Get(id)
	if err != nil {
		return FileListResult{}, err
	}
	return m.svc.ListDirectory(ctx, sb.ServiceURLs, path), nil
}

// ExecuteBrowser runs action on id's browser service.
func (m *Manager) ExecuteBrowser(ctx context.Context, id string, action string, opts BrowserOptions) (BrowserResult, error) {
	sb, err := m.Get(id)
	if err != nil {
		return BrowserResult{}, err
	}
	return m.svc.ExecuteBrowser(ctx, sb.ServiceURLs, action, opts), nil
}

// NewSandboxID generates an opaque sandbox ID for a task that has no stable
// name of its own to derive one from (the default is the task ID itself).
func NewSandboxID() string {
	return uuid.NewString()
}
