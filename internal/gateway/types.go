package gateway

import "github.com/thruflo/orchcore/internal/task"

// createTaskRequest is POST /tasks's body.
type createTaskRequest struct {
	Goal     string            `json:"goal"`
	Context  map[string]string `json:"context,omitempty"`
	Priority int               `json:"priority,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// createTaskResponse is POST /tasks's 201 body.
type createTaskResponse struct {
	TaskID string `json:"taskId"`
}

// taskResponse mirrors task.Task for the wire, using the taskId casing
// this API's other responses already commit to.
type taskResponse struct {
	TaskID      string            `json:"taskId"`
	Goal        string            `json:"goal"`
	Context     map[string]string `json:"context,omitempty"`
	Status      task.Status       `json:"status"`
	Plan        []*task.Step      `json:"plan,omitempty"`
	Events      []task.Event      `json:"events,omitempty"`
	Artifacts   []task.Artifact   `json:"artifacts,omitempty"`
	Priority    int               `json:"priority,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	CreatedAt   string            `json:"createdAt"`
	StartedAt   string            `json:"startedAt,omitempty"`
	CompletedAt string            `json:"completedAt,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func taskToResponse(t *task.Task) taskResponse {
	resp := taskResponse{
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
		resp.StartedAt = t.StartedAt.Format("2006-01-02T15:04:05.000Z07:00")
	}
	if !t.CompletedAt.IsZero() {
		resp.CompletedAt = t.CompletedAt.Format("2006-01-02T15:04:05.000Z07:00")
	}
	return resp
}

type listTasksResponse struct {
	Items []taskResponse `json:"items"`
}

// eventMessage is the websocket wire shape for /tasks/{id}/events, matching
// SPEC_FULL.md's {taskId, type, data} ingress contract.
type eventMessage struct {
	TaskID string         `json:"taskId"`
	Type   task.EventType `json:"type"`
	Data   map[string]any `json:"data,omitempty"`
	Seq    uint64         `json:"seq"`
}

func eventToMessage(ev task.Event) eventMessage {
	return eventMessage{TaskID: ev.TaskID, Type: ev.Type, Data: ev.Data, Seq: ev.Seq}
}

// streamTokenResponse is returned by the helper endpoint that mints a
// short-lived token a browser client embeds in the websocket URL (browsers
// cannot set an Authorization header on a WebSocket handshake).
type streamTokenResponse struct {
	Token string `json:"token"`
}
