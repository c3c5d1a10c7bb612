// Package gateway implements the reference ingress HTTP API (A7): task
// submission, listing, inspection, and cancellation over chi+huma, plus a
// websocket endpoint that replays and live-tails a task's event log. It is
// a thin caller of the Task Store, Queue, and Event Stream — it carries
// none of the orchestration engine's invariants itself.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/thruflo/orchcore/internal/logging"
	"github.com/thruflo/orchcore/internal/queue"
	"github.com/thruflo/orchcore/internal/store"
	"github.com/thruflo/orchcore/internal/stream"
	"github.com/thruflo/orchcore/internal/task"
)

// Config wires the gateway directly to the engine's collaborators. No field
// here is optional except RateLimit, which falls back to
// DefaultRateLimitConfig.
type Config struct {
	Store      store.Store
	Queue      queue.Queue
	Stream     *stream.FileStore
	APIKeyHash string // argon2id hash of the shared gateway API key
	RateLimit  RateLimitConfig
}

type server struct {
	store      store.Store
	queue      queue.Queue
	stream     *stream.FileStore
	tokens     *tokenIssuer
	apiKeyHash string
	logger     *logging.Logger
}

// New returns an http.Handler implementing §6's ingress API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Store == nil || cfg.Queue == nil || cfg.Stream == nil {
		return nil, errors.New("gateway: store, queue, and stream are required")
	}
	if strings.TrimSpace(cfg.APIKeyHash) == "" {
		return nil, errors.New("gateway: api key hash is required")
	}
	rl := cfg.RateLimit
	if rl.MaxAttempts == 0 {
		rl = DefaultRateLimitConfig()
	}

	srv := &server{
		store:      cfg.Store,
		queue:      cfg.Queue,
		stream:     cfg.Stream,
		tokens:     newTokenIssuer(cfg.APIKeyHash),
		apiKeyHash: cfg.APIKeyHash,
		logger:     logging.With("component", "gateway"),
	}

	limiter := newRateLimiter(rl)
	go cleanupLoop(limiter)

	router := chi.NewRouter()
	router.Use(rateLimitMiddleware(limiter))

	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, defaultCodeForStatus(status), msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, defaultCodeForStatus(status), msg, nil)
	}

	hcfg := huma.DefaultConfig("Orchestration Gateway API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "/docs"

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// The websocket upgrade and stream-token mint bypass huma: huma has no
	// first-class support for hijacking a connection mid-operation. These
	// are registered as exact routes before the huma sub-router is mounted,
	// so chi resolves them ahead of the mount's wildcard catch-all.
	router.Get("/tasks/{id}/events", srv.handleEvents)
	router.Post("/tasks/{id}/stream-token", requireAPIKey(cfg.APIKeyHash, http.HandlerFunc(srv.handleIssueStreamToken)).ServeHTTP)

	apiRouter := chi.NewRouter()
	apiRouter.Use(requireAPIKeyMiddleware(cfg.APIKeyHash))
	api := humachi.New(apiRouter, hcfg)

	srv.registerTasks(api)

	router.Mount("/", apiRouter)

	return router, nil
}

func cleanupLoop(rl *rateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.cleanup()
	}
}

func rateLimitMiddleware(rl *rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractIP(r)
			result := rl.check(ip)
			if !result.Allowed {
				status := http.StatusTooManyRequests
				retryAfter := result.RetryAfter
				if retryAfter <= 0 {
					retryAfter = time.Second
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
				writeError(w, status, "rate_limited", "too many requests", map[string]any{"reason": result.Reason})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requireAPIKeyMiddleware(apiKeyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return requireAPIKey(apiKeyHash, next)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return "error"
	}
}

func handleStoreError(err error) huma.StatusError {
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "task not found", nil)
	}
	if errors.Is(err, store.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", "task changed concurrently, retry", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func (s *server) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Submit a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body createTaskRequest `json:"body"`
	}) (*struct {
		Body createTaskResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Goal) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "goal is required", nil)
		}

		t := &task.Task{
			ID:        uuid.NewString(),
			Goal:      input.Body.Goal,
			Context:   input.Body.Context,
			Status:    task.StatusQueued,
			Priority:  input.Body.Priority,
			Labels:    input.Body.Labels,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.CreateTask(ctx, t); err != nil {
			s.logger.Error("create task failed", "error", err)
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", "failed to create task", nil)
		}
		s.queue.Push(t.ID, t.Priority)

		return &struct {
			Body createTaskResponse `json:"body"`
		}{Body: createTaskResponse{TaskID: t.ID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body taskResponse `json:"body"`
	}, error) {
		t, err := s.store.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleStoreError(err)
		}
		return &struct {
			Body taskResponse `json:"body"`
		}{Body: taskToResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
		Offset int    `query:"offset"`
	}) (*struct {
		Body listTasksResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		tasks, err := s.store.ListTasks(ctx, store.ListFilter{
			Status: task.Status(input.Status),
			Limit:  limit,
			Offset: input.Offset,
		})
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", "failed to list tasks", nil)
		}
		items := make([]taskResponse, 0, len(tasks))
		for _, t := range tasks {
			items = append(items, taskToResponse(t))
		}
		return &struct {
			Body listTasksResponse `json:"body"`
		}{Body: listTasksResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Cancel a task",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body taskResponse `json:"body"`
	}, error) {
		t, err := s.store.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleStoreError(err)
		}
		if t.Status.Terminal() {
			return nil, newAPIError(http.StatusConflict, "conflict", "task already finished", nil)
		}
		prev := t.Status
		t.Status = task.StatusCancelled
		if err := s.store.UpdateTask(ctx, t, prev); err != nil {
			return nil, handleStoreError(err)
		}
		if _, err := s.store.AppendEvent(ctx, t.ID, task.NewEvent(t.ID, task.EventExecutionStopped, map[string]any{"reason": "cancelled_by_client"})); err != nil {
			s.logger.Error("append cancel event failed", "task_id", t.ID, "error", err)
		}
		return &struct {
			Body taskResponse `json:"body"`
		}{Body: taskToResponse(t)}, nil
	})
}

// handleIssueStreamToken mints a short-lived JWT scoped to one task's
// events, for clients (browsers) that can't attach an Authorization header
// to a websocket handshake.
func (s *server) handleIssueStreamToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "task not found", nil)
		return
	}
	token, err := s.tokens.issue(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to issue token", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(streamTokenResponse{Token: token})
}
