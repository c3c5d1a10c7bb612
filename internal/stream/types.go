// Package stream provides the durable, subscribable event log that carries
// a task's Event history from the engine to gateway clients (dashboards,
// CLIs), plus the inverse channel for client-issued commands such as
// cancellation.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/thruflo/orchcore/internal/task"
)

// MessageType identifies the kind of message carried by an Event envelope.
type MessageType string

const (
	// MessageTypeTaskEvent wraps a task.Event emitted by the orchestrator.
	MessageTypeTaskEvent MessageType = "task_event"
	// MessageTypeCommand carries a client-issued Command.
	MessageTypeCommand MessageType = "command"
	// MessageTypeAck acknowledges a Command.
	MessageTypeAck MessageType = "ack"
)

// CommandType identifies the kind of command a client can issue.
type CommandType string

// CommandTypeCancelTask requests that a running task be cancelled.
const CommandTypeCancelTask CommandType = "cancel_task"

// Event is one entry in the durable stream. Events are serialized to JSON
// for storage and transmission; Data holds the type-specific payload.
type Event struct {
	Seq       uint64          `json:"seq,omitempty"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates a new Event wrapping data under msgType.
func NewEvent(msgType MessageType, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("stream: marshal event data: %w", err)
	}
	return &Event{Type: msgType, Timestamp: time.Now().UTC(), Data: dataBytes}, nil
}

// NewTaskEvent wraps a task.Event for durable-stream transport.
func NewTaskEvent(ev task.Event) (*Event, error) {
	return NewEvent(MessageTypeTaskEvent, ev)
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserializes an Event from JSON bytes.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("stream: unmarshal event: %w", err)
	}
	return &e, nil
}

// TaskEventData returns the wrapped task.Event if this is a task_event.
func (e *Event) TaskEventData() (*task.Event, error) {
	if e.Type != MessageTypeTaskEvent {
		return nil, fmt.Errorf("stream: event is not a task_event: %s", e.Type)
	}
	var data task.Event
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("stream: unmarshal task_event data: %w", err)
	}
	return &data, nil
}

// CommandData returns the wrapped Command if this is a command.
func (e *Event) CommandData() (*Command, error) {
	if e.Type != MessageTypeCommand {
		return nil, fmt.Errorf("stream: event is not a command: %s", e.Type)
	}
	var data Command
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("stream: unmarshal command data: %w", err)
	}
	return &data, nil
}

// AckData returns the wrapped Ack if this is an ack.
func (e *Event) AckData() (*Ack, error) {
	if e.Type != MessageTypeAck {
		return nil, fmt.Errorf("stream: event is not an ack: %s", e.Type)
	}
	var data Ack
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("stream: unmarshal ack data: %w", err)
	}
	return &data, nil
}

// Command is a client-issued instruction to the engine.
type Command struct {
	ID      string          `json:"id"`
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CancelTaskPayload is the payload of a cancel_task command.
type CancelTaskPayload struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitempty"`
}

// NewCancelTaskCommand creates a cancel_task command.
func NewCancelTaskCommand(id, taskID, reason string) (*Command, error) {
	payload, err := json.Marshal(CancelTaskPayload{TaskID: taskID, Reason: reason})
	if err != nil {
		return nil, fmt.Errorf("stream: marshal cancel_task payload: %w", err)
	}
	return &Command{ID: id, Type: CommandTypeCancelTask, Payload: payload}, nil
}

// CancelTaskPayloadData returns the command's cancel_task payload.
func (c *Command) CancelTaskPayloadData() (*CancelTaskPayload, error) {
	if c.Type != CommandTypeCancelTask {
		return nil, fmt.Errorf("stream: command is not cancel_task: %s", c.Type)
	}
	var payload CancelTaskPayload
	if err := json.Unmarshal(c.Payload, &payload); err != nil {
		return nil, fmt.Errorf("stream: unmarshal cancel_task payload: %w", err)
	}
	return &payload, nil
}

// AckStatus represents the result of command processing.
type AckStatus string

const (
	AckStatusSuccess AckStatus = "success"
	AckStatusError   AckStatus = "error"
)

// Ack acknowledges a Command.
type Ack struct {
	CommandID string    `json:"command_id"`
	Status    AckStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// NewSuccessAck creates a success acknowledgment.
func NewSuccessAck(commandID string) *Ack {
	return &Ack{CommandID: commandID, Status: AckStatusSuccess}
}

// NewErrorAck creates an error acknowledgment.
func NewErrorAck(commandID string, err error) *Ack {
	return &Ack{CommandID: commandID, Status: AckStatusError, Error: err.Error()}
}
