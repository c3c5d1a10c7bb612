package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/thruflo/orchcore/internal/stream"
)

var (
	errNoToken   = errors.New("gateway: missing bearer token or ?token= query parameter")
	errWrongTask = errors.New("gateway: stream token not valid for this task")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The gateway is meant to sit behind an operator's own reverse proxy;
	// origin checking belongs there, not hardcoded to a single frontend.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents upgrades to a websocket and streams taskID's event log: every
// event already on record, then every event appended from here on, in
// order. Authenticates either via the same Bearer API key REST calls use,
// or via a short-lived stream token (minted by handleIssueStreamToken) the
// caller embeds as a query parameter, since browsers can't set request
// headers on a WebSocket handshake.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.authenticateStreamRequest(r, id); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
		return
	}

	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "task not found", nil)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "task_id", id, "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()

	existing, err := s.store.ListEvents(ctx, id)
	if err != nil {
		s.logger.Error("replay events failed", "task_id", id, "error", err)
		return
	}
	lastSeq := uint64(0)
	for _, ev := range existing {
		if err := conn.WriteJSON(eventToMessage(ev)); err != nil {
			return
		}
		if ev.Seq > lastSeq {
			lastSeq = ev.Seq
		}
	}

	// Reading is only to detect the client closing the connection;
	// gorilla/websocket requires draining reads to process control frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// The stream numbers events across all tasks, so subscribe from its start
	// and skip this task's events already sent by the replay above.
	eventCh, err := s.stream.Subscribe(ctx, 1, 250*time.Millisecond)
	if err != nil {
		s.logger.Error("subscribe failed", "task_id", id, "error", err)
		return
	}

	for streamEv := range eventCh {
		if streamEv.Type != stream.MessageTypeTaskEvent {
			continue
		}
		ev, err := streamEv.TaskEventData()
		if err != nil || ev.TaskID != id || ev.Seq <= lastSeq {
			continue
		}
		if err := conn.WriteJSON(eventToMessage(*ev)); err != nil {
			return
		}
	}
}

// authenticateStreamRequest accepts either the gateway's shared API key or
// a stream token scoped to taskID, read from the Authorization header or,
// failing that, a ?token= query parameter.
func (s *server) authenticateStreamRequest(r *http.Request, taskID string) (Principal, error) {
	raw := bearerOrQueryToken(r)
	if raw == "" {
		return Principal{}, errNoToken
	}

	if p, err := s.tokens.verify(raw); err == nil {
		if p.TaskID != taskID {
			return Principal{}, errWrongTask
		}
		return p, nil
	}

	return authenticateAPIKey(raw, s.apiKeyHash)
}

func bearerOrQueryToken(r *http.Request) string {
	if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" {
		if tok, ok := bearerToken(authz); ok {
			return tok
		}
	}
	return r.URL.Query().Get("token")
}
