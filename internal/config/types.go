package config

import "time"

// LLM configures the language-model backend the Planner and Critic call.
type LLM struct {
	Endpoint     string `yaml:"endpoint"`
	PlannerModel string `yaml:"planner_model"`
	CriticModel  string `yaml:"critic_model"`
}

// Critic configures whether the Critic runs after each step and how
// confident it must be before a low-confidence evaluation is logged as a
// suggestion rather than acted on.
type Critic struct {
	Enabled             bool    `yaml:"enabled"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// Queue configures the job-dispatch backend's connection string. Empty
// means the in-process reference Queue.
type Queue struct {
	DSN string `yaml:"dsn"`
}

// Worker configures the Worker Loop's concurrency and per-task budget.
type Worker struct {
	Concurrency int           `yaml:"concurrency"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// Sandbox holds the sandbox runtime credential. Never read from the YAML
// file — it is a per-deployment secret and is only ever set via the
// ORCH_SANDBOX_RUNTIME_TOKEN environment variable.
type Sandbox struct {
	RuntimeToken string `yaml:"-"`
}

// Gateway configures the ingress HTTP API. APIKey is a secret and, like
// Sandbox.RuntimeToken, is env-only.
type Gateway struct {
	APIKey string `yaml:"-"`
	Port   int    `yaml:"port"`
}

// Config is the engine's full set of environment knobs, assembled by
// LoadConfig from a static YAML file overlaid with ORCH_* environment
// variables.
type Config struct {
	LLM     LLM     `yaml:"llm"`
	Critic  Critic  `yaml:"critic"`
	Queue   Queue   `yaml:"queue"`
	Worker  Worker  `yaml:"worker"`
	Sandbox Sandbox `yaml:"sandbox"`
	Gateway Gateway `yaml:"gateway"`
}
