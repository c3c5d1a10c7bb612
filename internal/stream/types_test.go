package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/orchcore/internal/task"
)

func TestNewTaskEvent_RoundTrip(t *testing.T) {
	t.Parallel()

	te := task.NewEvent("task-1", task.EventTaskStarted, nil)
	ev, err := NewTaskEvent(te)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeTaskEvent, ev.Type)

	got, err := ev.TaskEventData()
	require.NoError(t, err)
	assert.Equal(t, te.TaskID, got.TaskID)
	assert.Equal(t, te.Type, got.Type)
}

func TestEvent_MarshalUnmarshal(t *testing.T) {
	t.Parallel()

	te := task.NewEvent("task-2", task.EventTaskSucceeded, map[string]any{"ok": true})
	ev, err := NewTaskEvent(te)
	require.NoError(t, err)
	ev.Seq = 7

	data, err := ev.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Seq)
	assert.Equal(t, MessageTypeTaskEvent, got.Type)
}

func TestEvent_WrongAccessorErrors(t *testing.T) {
	t.Parallel()

	ev, err := NewTaskEvent(task.NewEvent("t", task.EventTaskStarted, nil))
	require.NoError(t, err)

	_, err = ev.CommandData()
	assert.Error(t, err)
	_, err = ev.AckData()
	assert.Error(t, err)
}

func TestCommand_CancelTaskPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	cmd, err := NewCancelTaskCommand("cmd-1", "task-1", "user requested")
	require.NoError(t, err)
	assert.Equal(t, CommandTypeCancelTask, cmd.Type)

	payload, err := cmd.CancelTaskPayloadData()
	require.NoError(t, err)
	assert.Equal(t, "task-1", payload.TaskID)
	assert.Equal(t, "user requested", payload.Reason)
}

func TestCommand_WrongPayloadAccessorErrors(t *testing.T) {
	t.Parallel()

	cmd := &Command{ID: "x", Type: "unknown_command"}
	_, err := cmd.CancelTaskPayloadData()
	assert.Error(t, err)
}

func TestAck_Constructors(t *testing.T) {
	t.Parallel()

	ok := NewSuccessAck("cmd-1")
	assert.Equal(t, AckStatusSuccess, ok.Status)
	assert.Empty(t, ok.Error)

	failed := NewErrorAck("cmd-2", assert.AnError)
	assert.Equal(t, AckStatusError, failed.Status)
	assert.Equal(t, assert.AnError.Error(), failed.Error)
}
