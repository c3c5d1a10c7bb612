package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thruflo/orchcore/internal/task"
)

// wireTask mirrors the gateway's taskResponse wire shape. taskctl is a
// separate process from the gateway and has no access to its unexported
// response types, so it keeps its own copy of the contract.
type wireTask struct {
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

type wireTaskList struct {
	Items []wireTask `json:"items"`
}

type createTaskBody struct {
	Goal     string            `json:"goal"`
	Context  map[string]string `json:"context,omitempty"`
	Priority int               `json:"priority,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

type createTaskResult struct {
	TaskID string `json:"taskId"`
}

type streamTokenResult struct {
	Token string `json:"token"`
}

// apiError mirrors the gateway's error envelope closely enough to surface
// its message to the operator.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// gatewayClient is a thin HTTP client over the gateway's ingress API.
type gatewayClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newGatewayClient(baseURL, apiKey string) *gatewayClient {
	return &gatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *gatewayClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("taskctl: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("taskctl: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("taskctl: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("taskctl: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Message != "" {
			return fmt.Errorf("taskctl: %s (%s)", apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("taskctl: %s %s: %s", method, path, strings.TrimSpace(string(data)))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("taskctl: decode response: %w", err)
	}
	return nil
}

func (c *gatewayClient) createTask(ctx context.Context, body createTaskBody) (createTaskResult, error) {
	var out createTaskResult
	err := c.do(ctx, http.MethodPost, "/tasks", body, &out)
	return out, err
}

func (c *gatewayClient) getTask(ctx context.Context, id string) (wireTask, error) {
	var out wireTask
	err := c.do(ctx, http.MethodGet, "/tasks/"+id, nil, &out)
	return out, err
}

func (c *gatewayClient) listTasks(ctx context.Context, status string, limit, offset int) (wireTaskList, error) {
	q := fmt.Sprintf("?limit=%d&offset=%d", limit, offset)
	if status != "" {
		q += "&status=" + status
	}
	var out wireTaskList
	err := c.do(ctx, http.MethodGet, "/tasks"+q, nil, &out)
	return out, err
}

func (c *gatewayClient) cancelTask(ctx context.Context, id string) (wireTask, error) {
	var out wireTask
	err := c.do(ctx, http.MethodDelete, "/tasks/"+id, nil, &out)
	return out, err
}

func (c *gatewayClient) issueStreamToken(ctx context.Context, id string) (streamTokenResult, error) {
	var out streamTokenResult
	err := c.do(ctx, http.MethodPost, "/tasks/"+id+"/stream-token", nil, &out)
	return out, err
}
