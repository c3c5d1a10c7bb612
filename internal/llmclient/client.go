// Package llmclient defines the language-model collaborator (A6) the
// Planner and Critic call through: a single-method Complete interface, plus
// a reference implementation backed by a local Ollama instance.
package llmclient

import "context"

// LLM is the interface the Planner and Critic depend on. Temperature and
// token budget are concerns of the concrete implementation, not the
// interface — the reference client exposes them as constructor options.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
