package stream

import (
	"context"
	"time"

	"github.com/thruflo/orchcore/internal/task"
)

// terminalEventTypes are the task.Event types that end a task's run, for
// AwaitTaskTerminal to recognize.
var terminalEventTypes = map[task.EventType]bool{
	task.EventTaskSucceeded:             true,
	task.EventTaskCompletedWithFailures: true,
	task.EventTaskFailed:                true,
	task.EventOrchestrationFailed:       true,
}

// AwaitTaskTerminal blocks until taskID's event log carries a terminal
// event and returns it, or until ctx is done. It checks existing events
// before subscribing, so a task that already finished returns immediately.
func AwaitTaskTerminal(ctx context.Context, fs *FileStore, taskID string) (*task.Event, error) {
	events, err := fs.Read(1)
	if err == nil {
		if ev := findTerminal(events, taskID); ev != nil {
			return ev, nil
		}
	}

	eventCh, err := fs.Subscribe(ctx, fs.LastSeq()+1, 50*time.Millisecond)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case streamEv, ok := <-eventCh:
			if !ok {
				return nil, ctx.Err()
			}
			if streamEv.Type != MessageTypeTaskEvent {
				continue
			}
			ev, err := streamEv.TaskEventData()
			if err != nil || ev.TaskID != taskID || !terminalEventTypes[ev.Type] {
				continue
			}
			return ev, nil
		}
	}
}

func findTerminal(events []*Event, taskID string) *task.Event {
	for _, streamEv := range events {
		if streamEv.Type != MessageTypeTaskEvent {
			continue
		}
		ev, err := streamEv.TaskEventData()
		if err != nil || ev.TaskID != taskID || !terminalEventTypes[ev.Type] {
			continue
		}
		return ev
	}
	return nil
}

// TaskEventWatcher watches for taskID's terminal event alongside other
// work, delivering the result on a channel instead of blocking the caller.
type TaskEventWatcher struct {
	fs       *FileStore
	taskID   string
	resultCh chan *task.Event
	errCh    chan error
	cancel   context.CancelFunc
}

// NewTaskEventWatcher creates a watcher for taskID's terminal event.
func NewTaskEventWatcher(fs *FileStore, taskID string) *TaskEventWatcher {
	return &TaskEventWatcher{
		fs:       fs,
		taskID:   taskID,
		resultCh: make(chan *task.Event, 1),
		errCh:    make(chan error, 1),
	}
}

// Start begins watching in a goroutine; send the result to ResultCh().
func (w *TaskEventWatcher) Start(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go func() {
		ev, err := AwaitTaskTerminal(watchCtx, w.fs, w.taskID)
		if err != nil {
			select {
			case w.errCh <- err:
			default:
			}
			return
		}
		select {
		case w.resultCh <- ev:
		default:
		}
	}()
}

// Stop cancels the watch.
func (w *TaskEventWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

// ResultCh returns the channel that receives the terminal event when found.
func (w *TaskEventWatcher) ResultCh() <-chan *task.Event {
	return w.resultCh
}

// ErrCh returns the channel that receives errors.
func (w *TaskEventWatcher) ErrCh() <-chan error {
	return w.errCh
}
