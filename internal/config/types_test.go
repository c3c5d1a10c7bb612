package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfig_YAMLMarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name: "full config",
			config: Config{
				LLM:    LLM{Endpoint: "http://localhost:11434", PlannerModel: "llama3.1", CriticModel: "llama3.1"},
				Critic: Critic{Enabled: true, ConfidenceThreshold: 0.7},
				Queue:  Queue{DSN: ""},
				Worker: Worker{Concurrency: 5, TaskTimeout: time.Hour},
				Gateway: Gateway{
					Port: 8374,
				},
			},
			want: `llm:
    endpoint: http://localhost:11434
    planner_model: llama3.1
    critic_model: llama3.1
critic:
    enabled: true
    confidence_threshold: 0.7
queue:
    dsn: ""
worker:
    concurrency: 5
    task_timeout: 1h0m0s
sandbox: {}
gateway:
    port: 8374
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := yaml.Marshal(tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestConfig_SecretsOmittedFromYAML(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Sandbox: Sandbox{RuntimeToken: "sprite-token-xyz"},
		Gateway: Gateway{APIKey: "gw-key-abc"},
	}

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sprite-token-xyz")
	assert.NotContains(t, string(data), "gw-key-abc")
}

func TestConfig_YAMLUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Config
		wantErr bool
	}{
		{
			name: "valid config",
			input: `llm:
  endpoint: http://ollama:11434
  planner_model: mistral
  critic_model: mistral
critic:
  enabled: false
  confidence_threshold: 0.9
worker:
  concurrency: 10
gateway:
  port: 9000
`,
			want: Config{
				LLM:     LLM{Endpoint: "http://ollama:11434", PlannerModel: "mistral", CriticModel: "mistral"},
				Critic:  Critic{Enabled: false, ConfidenceThreshold: 0.9},
				Worker:  Worker{Concurrency: 10},
				Gateway: Gateway{Port: 9000},
			},
		},
		{
			name:    "invalid yaml",
			input:   `llm: [`,
			want:    Config{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got Config
			err := yaml.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var got Config
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, cfg, got)
}
