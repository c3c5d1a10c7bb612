package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/thruflo/orchcore/internal/store"
	"github.com/thruflo/orchcore/internal/task"
)

// directStore wraps a direct SQLite store connection so the submit/list/get/
// cancel commands can share logic between gateway mode and direct-store
// mode behind one small interface.
type directStore struct {
	st store.Store
}

func openDirectStore(path string) (*directStore, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &directStore{st: st}, nil
}

func (d *directStore) close() error { return d.st.Close() }

func (d *directStore) createTask(ctx context.Context, body createTaskBody) (createTaskResult, error) {
	t := &task.Task{
		ID:       uuid.NewString(),
		Goal:     body.Goal,
		Context:  body.Context,
		Status:   task.StatusQueued,
		Priority: body.Priority,
		Labels:   body.Labels,
	}
	if err := d.st.CreateTask(ctx, t); err != nil {
		return createTaskResult{}, err
	}
	return createTaskResult{TaskID: t.ID}, nil
}

func (d *directStore) getTask(ctx context.Context, id string) (wireTask, error) {
	t, err := d.st.GetTask(ctx, id)
	if err != nil {
		return wireTask{}, err
	}
	return taskToWire(t), nil
}

func (d *directStore) listTasks(ctx context.Context, status string, limit, offset int) (wireTaskList, error) {
	tasks, err := d.st.ListTasks(ctx, store.ListFilter{Status: task.Status(status), Limit: limit, Offset: offset})
	if err != nil {
		return wireTaskList{}, err
	}
	items := make([]wireTask, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, taskToWire(t))
	}
	return wireTaskList{Items: items}, nil
}

func (d *directStore) cancelTask(ctx context.Context, id string) (wireTask, error) {
	t, err := d.st.GetTask(ctx, id)
	if err != nil {
		return wireTask{}, err
	}
	prev := t.Status
	t.Status = task.StatusCancelled
	if err := d.st.UpdateTask(ctx, t, prev); err != nil {
		return wireTask{}, err
	}
	if _, err := d.st.AppendEvent(ctx, t.ID, task.NewEvent(t.ID, task.EventExecutionStopped, map[string]any{"reason": "cancelled_by_client"})); err != nil {
		return wireTask{}, err
	}
	return taskToWire(t), nil
}

func taskToWire(t *task.Task) wireTask {
	w := wireTask{
		TaskID:    t.ID,
		Goal:      t.Goal,
		Context:   t.Context,
		Status:    t.Status,
		Plan:      t.Plan,
		Events:    t.Events,
		Artifacts: t.Artifacts,
		Priority:  t.Priority,
		Labels:    t.Labels,
		Error:     t.Error,
		CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if !t.StartedAt.IsZero() {
		w.StartedAt = t.StartedAt.Format("2006-01-02T15:04:05.000Z07:00")
	}
	if !t.CompletedAt.IsZero() {
		w.CompletedAt = t.CompletedAt.Format("2006-01-02T15:04:05.000Z07:00")
	}
	return w
}
