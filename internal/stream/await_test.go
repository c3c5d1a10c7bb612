package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/orchcore/internal/task"
)

func TestAwaitTaskTerminal_AlreadyTerminal(t *testing.T) {
	t.Parallel()

	fs := newTestStore(t)
	ev, err := NewTaskEvent(task.NewEvent("t1", task.EventTaskStarted, nil))
	require.NoError(t, err)
	require.NoError(t, fs.Append(ev))

	done, err := NewTaskEvent(task.NewEvent("t1", task.EventTaskSucceeded, nil))
	require.NoError(t, err)
	require.NoError(t, fs.Append(done))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := AwaitTaskTerminal(ctx, fs, "t1")
	require.NoError(t, err)
	assert.Equal(t, task.EventTaskSucceeded, got.Type)
}

func TestAwaitTaskTerminal_WaitsForFutureEvent(t *testing.T) {
	t.Parallel()

	fs := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan *task.Event, 1)
	errCh := make(chan error, 1)
	go func() {
		ev, err := AwaitTaskTerminal(ctx, fs, "t1")
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- ev
	}()

	time.Sleep(20 * time.Millisecond)
	ev, err := NewTaskEvent(task.NewEvent("t1", task.EventOrchestrationFailed, nil))
	require.NoError(t, err)
	require.NoError(t, fs.Append(ev))

	select {
	case got := <-resultCh:
		assert.Equal(t, task.EventOrchestrationFailed, got.Type)
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
}

func TestAwaitTaskTerminal_ContextCancelled(t *testing.T) {
	t.Parallel()

	fs := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AwaitTaskTerminal(ctx, fs, "t1")
	assert.Error(t, err)
}

func TestTaskEventWatcher_DeliversResult(t *testing.T) {
	t.Parallel()

	fs := newTestStore(t)
	w := NewTaskEventWatcher(fs, "t1")
	w.Start(context.Background())
	defer w.Stop()

	ev, err := NewTaskEvent(task.NewEvent("t1", task.EventTaskSucceeded, nil))
	require.NoError(t, err)
	require.NoError(t, fs.Append(ev))

	select {
	case got := <-w.ResultCh():
		assert.Equal(t, task.EventTaskSucceeded, got.Type)
	case err := <-w.ErrCh():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watcher result")
	}
}
