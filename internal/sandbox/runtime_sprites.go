package sandbox

import (
	"context"
	"fmt"
	"strings"

	sprites "github.com/superfly/sprites-go"

	"github.com/thruflo/orchcore/internal/task"
)

// SpritesRuntime implements Runtime on top of the Sprites remote-VM SDK: one
// sandbox maps to one named Sprite for its entire life. Provisioning a
// sandbox creates the Sprite; the shell/file/browser services it exposes
// are reached over the provider's per-Sprite service URL rather than a
// locally-assigned container port, which is why Sandbox.ServiceURLs exists
// alongside PortMap.
type SpritesRuntime struct {
	client *sprites.Client

	// BaseDomain is the suffix sprites-go exposes each Sprite's services
	// under, e.g. "sprites.dev". Service URLs are built as
	// https://<sandboxID>-<service>.<BaseDomain>.
	BaseDomain string
}

// NewSpritesRuntime creates a SpritesRuntime authenticated with token.
func NewSpritesRuntime(token, baseDomain string) *SpritesRuntime {
	return &SpritesRuntime{client: sprites.New(token), BaseDomain: baseDomain}
}

func (r *SpritesRuntime) Provision(ctx context.Context, sandboxID string, cfg task.SandboxConfig) (string, map[string]string, error) {
	exists, err := r.exists(ctx, sandboxID)
	if err != nil {
		return "", nil, fmt.Errorf("sandbox: check existing %s: %w", sandboxID, err)
	}
	if exists {
		if derr := r.client.DeleteSprite(ctx, sandboxID); derr != nil {
			return "", nil, fmt.Errorf("sandbox: reap stale %s: %w", sandboxID, derr)
		}
	}

	if _, err := r.client.CreateSprite(ctx, sandboxID, nil); err != nil {
		return "", nil, fmt.Errorf("sandbox: create %s: %w", sandboxID, err)
	}

	serviceURLs := make(map[string]string, len(cfg.Services))
	for _, svc := range cfg.Services {
		serviceURLs[svc] = fmt.Sprintf("https://%s-%s.%s", sandboxID, svc, r.BaseDomain)
	}
	return sandboxID, serviceURLs, nil
}

func (r *SpritesRuntime) Teardown(ctx context.Context, sandboxID string) error {
	if err := r.client.DeleteSprite(ctx, sandboxID); err != nil {
		return fmt.Errorf("sandbox: teardown %s: %w", sandboxID, err)
	}
	return nil
}

// ImageVersion is unsupported by the Sprites backend: the SDK does not
// expose a queryable image/template version, so MinRuntimeVersion checks
// are skipped for sandboxes running on this Runtime.
func (r *SpritesRuntime) ImageVersion(ctx context.Context, sandboxID string) (string, error) {
	return "", nil
}

func (r *SpritesRuntime) exists(ctx context.Context, sandboxID string) (bool, error) {
	_, err := r.client.GetSprite(ctx, sandboxID)
	if err != nil {
		errStr := strings.ToLower(err.Error())
		if strings.Contains(errStr, "not found") || strings.Contains(errStr, "404") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var _ Runtime = (*SpritesRuntime)(nil)
