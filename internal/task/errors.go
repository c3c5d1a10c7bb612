package task

import "errors"

// ErrValidation marks a fatal, non-retryable failure caused by an invalid
// goal, a plan step referencing an unregistered tool, or a schema
// mismatch. The worker never retries a run that fails this way.
var ErrValidation = errors.New("task: validation error")

// ErrPlanning marks a fatal, non-retryable failure in the Planner: the
// language model was unreachable, or its response could not be parsed as a
// step sequence even after normalization. The worker never retries a run
// that fails this way.
var ErrPlanning = errors.New("task: planning error")

// ErrSandbox marks a fatal, non-retryable failure acquiring a sandbox.
// Failures tearing a sandbox down are logged, never surfaced this way, and
// never prevent the sandbox from being removed from the lookup table.
var ErrSandbox = errors.New("task: sandbox error")

// ErrInfrastructure marks a failure in an external collaborator (queue,
// store) independent of task content. Unlike ErrValidation, ErrPlanning,
// and ErrSandbox, the worker retries these with exponential backoff.
var ErrInfrastructure = errors.New("task: infrastructure error")
