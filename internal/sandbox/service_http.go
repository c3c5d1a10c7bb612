package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPServiceClient implements ServiceClient against real in-sandbox
// services, one HTTP request per operation. Every request's transport
// timeout is set slightly larger than the caller's requested operation
// timeout so a slow-but-alive service is distinguished from a dead one.
type HTTPServiceClient struct {
	client *http.Client
}

// NewHTTPServiceClient creates an HTTPServiceClient.
func NewHTTPServiceClient() *HTTPServiceClient {
	return &HTTPServiceClient{client: &http.Client{}}
}

func (c *HTTPServiceClient) do(ctx context.Context, timeout time.Duration, method, url string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sandbox: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("sandbox: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sandbox: service returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sandbox: decode response: %w", err)
	}
	return nil
}

func (c *HTTPServiceClient) Health(ctx context.Context, serviceURLs map[string]string, service string) bool {
	base, ok := serviceURLs[service]
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *HTTPServiceClient) ExecuteShell(ctx context.Context, serviceURLs map[string]string, command string, timeout time.Duration, cwd string) ShellResult {
	var out ShellResult
	body := map[string]any{"command": command, "cwd": cwd, "timeout": timeout.Milliseconds()}
	if err := c.do(ctx, timeout+5*time.Second, http.MethodPost, serviceURLs["shell"]+"/execute", body, &out); err != nil {
		return ShellResult{Success: false, Error: err.Error()}
	}
	return out
}

func (c *HTTPServiceClient) ReadFile(ctx context.Context, serviceURLs map[string]string, path string) FileReadResult {
	var out FileReadResult
	url := fmt.Sprintf("%s/read?path=%s", serviceURLs["file"], url.QueryEscape(path))
	if err := c.do(ctx, 30*time.Second, http.MethodGet, url, nil, &out); err != nil {
		return FileReadResult{Success: false, Path: path, Error: err.Error()}
	}
	return out
}

func (c *HTTPServiceClient) WriteFile(ctx context.Context, serviceURLs map[string]string, path string, content string) FileWriteResult {
	var out FileWriteResult
	body := map[string]any{"path": path, "content": content}
	if err := c.do(ctx, 30*time.Second, http.MethodPost, serviceURLs["file"]+"/write", body, &out); err != nil {
		return FileWriteResult{Success: false, Path: path, Error: err.Error()}
	}
	return out
}

func (c *HTTPServiceClient) ListDirectory(ctx context.Context, serviceURLs map[string]string, path string) FileListResult {
	var out FileListResult
	url := fmt.Sprintf("%s/list?path=%s", serviceURLs["file"], url.QueryEscape(path))
	if err := c.do(ctx, 30*time.Second, http.MethodGet, url, nil, &out); err != nil {
		return FileListResult{Success: false, Path: path, Error: err.Error()}
	}
	return out
}

func (c *HTTPServiceClient) ExecuteBrowser(ctx context.Context, serviceURLs map[string]string, action string, opts BrowserOptions) BrowserResult {
	var out BrowserResult
	timeout := 30 * time.Second
	if opts.Timeout > 0 {
		timeout = time.Duration(opts.Timeout) * time.Millisecond
	}
	body := map[string]any{"action": action, "opts": opts}
	if err := c.do(ctx, timeout+5*time.Second, http.MethodPost, serviceURLs["browser"]+"/execute", body, &out); err != nil {
		return BrowserResult{Success: false, Error: err.Error()}
	}
	return out
}

var _ ServiceClient = (*HTTPServiceClient)(nil)
