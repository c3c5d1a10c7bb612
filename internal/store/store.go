// Package store implements the Task Store (A4): the durable record of
// every Task, its Step plan, and its append-only Event log. All task
// mutation in the engine goes through this interface so that store
// invariants — compare-and-set status transitions, per-task event
// ordering — hold regardless of backend.
package store

import (
	"context"
	"errors"

	"github.com/thruflo/orchcore/internal/task"
)

// ErrNotFound is returned when a task ID does not resolve.
var ErrNotFound = errors.New("store: task not found")

// ErrConflict is returned by UpdateTask when the task's current status no
// longer matches the expected status the caller observed — another writer
// raced ahead.
var ErrConflict = errors.New("store: task status changed concurrently")

// ListFilter narrows ListTasks results. Zero-value fields are unfiltered.
type ListFilter struct {
	Status task.Status
	Label  string
	Limit  int
	Offset int
}

// Store is the durable collaborator every orchestration component reads
// and writes tasks through.
type Store interface {
	// CreateTask persists a new task in StatusQueued.
	CreateTask(ctx context.Context, t *task.Task) error

	// GetTask returns the task for id, or ErrNotFound.
	GetTask(ctx context.Context, id string) (*task.Task, error)

	// UpdateTask persists t if t's in-store status still equals
	// expectedStatus; otherwise returns ErrConflict without writing. This is
	// the compare-and-set primitive every status transition goes through.
	UpdateTask(ctx context.Context, t *task.Task, expectedStatus task.Status) error

	// AppendEvent appends ev to taskID's event log, assigning the next Seq
	// in that task's append order, and returns the assigned Seq. Per-task
	// append order is preserved even under concurrent callers.
	AppendEvent(ctx context.Context, taskID string, ev task.Event) (uint64, error)

	// ListEvents returns taskID's event log in append order.
	ListEvents(ctx context.Context, taskID string) ([]task.Event, error)

	// ListTasks returns tasks matching filter, newest first.
	ListTasks(ctx context.Context, filter ListFilter) ([]*task.Task, error)

	// Close releases any held resources (connections, file handles).
	Close() error
}
