// Package config loads the engine's environment knobs: a static YAML file
// for component defaults, overlaid with ORCH_* environment variables for
// per-deployment secrets and endpoints, bound via viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Defaults for Config.
const (
	DefaultLLMEndpoint         = "http://localhost:11434"
	DefaultPlannerModel        = "llama3.1"
	DefaultCriticModel         = "llama3.1"
	DefaultConfidenceThreshold = 0.7
	DefaultWorkerConcurrency   = 5
	DefaultTaskTimeout         = time.Hour
	DefaultGatewayPort         = 8374
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		LLM: LLM{
			Endpoint:     DefaultLLMEndpoint,
			PlannerModel: DefaultPlannerModel,
			CriticModel:  DefaultCriticModel,
		},
		Critic: Critic{
			Enabled:             true,
			ConfidenceThreshold: DefaultConfidenceThreshold,
		},
		Worker: Worker{
			Concurrency: DefaultWorkerConcurrency,
			TaskTimeout: DefaultTaskTimeout,
		},
		Gateway: Gateway{
			Port: DefaultGatewayPort,
		},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// envKeys lists every viper key an ORCH_* environment variable can
// override, in the same order as the knobs are documented.
var envKeys = []string{
	"llm_endpoint",
	"planner_model",
	"critic_model",
	"critic_enabled",
	"critic_confidence_threshold",
	"queue_dsn",
	"task_timeout",
	"worker_concurrency",
	"sandbox_runtime_token",
	"gateway_api_key",
	"gateway_port",
}

// LoadConfig reads the static YAML config at path, if present, then applies
// ORCH_* environment variable overrides, and validates the result. A
// missing file is not an error: defaults apply and env overrides still run.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides layers ORCH_* environment variables over cfg, one field
// at a time so an unset variable never clobbers a YAML-supplied value with
// a zero value.
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("ORCH")
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if v.IsSet("llm_endpoint") {
		cfg.LLM.Endpoint = v.GetString("llm_endpoint")
	}
	if v.IsSet("planner_model") {
		cfg.LLM.PlannerModel = v.GetString("planner_model")
	}
	if v.IsSet("critic_model") {
		cfg.LLM.CriticModel = v.GetString("critic_model")
	}
	if v.IsSet("critic_enabled") {
		cfg.Critic.Enabled = v.GetBool("critic_enabled")
	}
	if v.IsSet("critic_confidence_threshold") {
		cfg.Critic.ConfidenceThreshold = v.GetFloat64("critic_confidence_threshold")
	}
	if v.IsSet("queue_dsn") {
		cfg.Queue.DSN = v.GetString("queue_dsn")
	}
	if v.IsSet("task_timeout") {
		cfg.Worker.TaskTimeout = v.GetDuration("task_timeout")
	}
	if v.IsSet("worker_concurrency") {
		cfg.Worker.Concurrency = v.GetInt("worker_concurrency")
	}
	if v.IsSet("sandbox_runtime_token") {
		cfg.Sandbox.RuntimeToken = v.GetString("sandbox_runtime_token")
	}
	if v.IsSet("gateway_api_key") {
		cfg.Gateway.APIKey = v.GetString("gateway_api_key")
	}
	if v.IsSet("gateway_port") {
		cfg.Gateway.Port = v.GetInt("gateway_port")
	}
}

// ValidateConfig checks that every config value is within bounds.
func ValidateConfig(cfg *Config) error {
	if cfg.LLM.Endpoint == "" {
		return ValidationError{Field: "llm.endpoint", Message: "required field is empty"}
	}
	if cfg.LLM.PlannerModel == "" {
		return ValidationError{Field: "llm.planner_model", Message: "required field is empty"}
	}
	if cfg.LLM.CriticModel == "" {
		return ValidationError{Field: "llm.critic_model", Message: "required field is empty"}
	}
	if cfg.Critic.ConfidenceThreshold < 0 || cfg.Critic.ConfidenceThreshold > 1 {
		return ValidationError{Field: "critic.confidence_threshold", Message: "must be between 0 and 1"}
	}
	if cfg.Worker.Concurrency <= 0 {
		return ValidationError{Field: "worker.concurrency", Message: "must be positive"}
	}
	if cfg.Worker.TaskTimeout <= 0 {
		return ValidationError{Field: "worker.task_timeout", Message: "must be positive"}
	}
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		return ValidationError{Field: "gateway.port", Message: "must be between 0 and 65535"}
	}
	return nil
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
