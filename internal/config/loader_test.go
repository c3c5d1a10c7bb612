package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	want := DefaultConfig()
	assert.Equal(t, want, *cfg)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	content := `llm:
  endpoint: http://ollama:11434
  planner_model: mistral
  critic_model: mistral
critic:
  enabled: true
  confidence_threshold: 0.8
worker:
  concurrency: 10
  task_timeout: 30m
gateway:
  port: 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://ollama:11434", cfg.LLM.Endpoint)
	assert.Equal(t, "mistral", cfg.LLM.PlannerModel)
	assert.Equal(t, 0.8, cfg.Critic.ConfidenceThreshold)
	assert.Equal(t, 10, cfg.Worker.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.Worker.TaskTimeout)
	assert.Equal(t, 9000, cfg.Gateway.Port)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker:\n  concurrency: 2\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, DefaultLLMEndpoint, cfg.LLM.Endpoint)
	assert.Equal(t, DefaultConfidenceThreshold, cfg.Critic.ConfidenceThreshold)
	assert.Equal(t, DefaultGatewayPort, cfg.Gateway.Port)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`llm: [`), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker:\n  concurrency: 5\n"), 0o644))

	t.Setenv("ORCH_LLM_ENDPOINT", "http://remote-llm:11434")
	t.Setenv("ORCH_WORKER_CONCURRENCY", "20")
	t.Setenv("ORCH_CRITIC_ENABLED", "false")
	t.Setenv("ORCH_GATEWAY_PORT", "9100")
	t.Setenv("ORCH_SANDBOX_RUNTIME_TOKEN", "token-xyz")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://remote-llm:11434", cfg.LLM.Endpoint)
	assert.Equal(t, 20, cfg.Worker.Concurrency)
	assert.False(t, cfg.Critic.Enabled)
	assert.Equal(t, 9100, cfg.Gateway.Port)
	assert.Equal(t, "token-xyz", cfg.Sandbox.RuntimeToken)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name:    "missing llm endpoint",
			content: "llm:\n  endpoint: \"\"\n  planner_model: m\n  critic_model: m\n",
			field:   "llm.endpoint",
		},
		{
			name:    "confidence threshold out of range",
			content: "critic:\n  confidence_threshold: 1.5\n",
			field:   "critic.confidence_threshold",
		},
		{
			name:    "zero worker concurrency",
			content: "worker:\n  concurrency: 0\n",
			field:   "worker.concurrency",
		},
		{
			name:    "gateway port out of range",
			content: "gateway:\n  port: 70000\n",
			field:   "gateway.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tmpDir := t.TempDir()
			path := filepath.Join(tmpDir, "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	ve := ValidationError{Field: "test.field", Message: "must be valid"}
	assert.Equal(t, "validation error: test.field: must be valid", ve.Error())
}

func TestIsValidationError(t *testing.T) {
	t.Parallel()

	ve := ValidationError{Field: "test", Message: "test"}
	assert.True(t, IsValidationError(ve))
	assert.False(t, IsValidationError(os.ErrNotExist))
}
