package gateway

import (
	"encoding/json"
	"net/http"
)

// apiErrorBody is the JSON error envelope returned by both the huma-routed
// REST operations and the raw chi handlers (rate limiting, websocket
// upgrade) that sit outside huma's request/response cycle.
type apiErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string, details map[string]any) *apiError {
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message, Details: details}}
}

// writeError writes apiError's envelope directly, for handlers huma never
// sees (rate limiting runs as chi middleware ahead of the huma mux; the
// websocket upgrade handler writes its own HTTP response before handing the
// connection to gorilla/websocket).
func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(newAPIError(status, code, message, details).Body)
}
