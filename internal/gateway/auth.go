package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/thruflo/orchcore/internal/auth"
)

// Principal identifies the caller an authenticated request is acting as.
// The gateway recognizes exactly one principal kind per SPEC_FULL.md's
// single-shared-secret scope, but callers are distinguished by how they
// authenticated so stream tokens can be scoped narrower than the API key.
type Principal struct {
	Source string // "api_key" or "stream_token"
	TaskID string // set only for "stream_token": the one task it may watch
}

// streamTokenClaims is the JWT payload minted by issueStreamToken and
// checked by requireStreamToken. It scopes a bearer to exactly one task's
// event stream so a websocket URL can be handed to a browser without
// exposing the gateway's long-lived API key.
type streamTokenClaims struct {
	jwt.RegisteredClaims
	TaskID string `json:"task_id"`
}

// tokenIssuer mints and verifies the short-lived JWTs used by
// /tasks/{id}/events to authenticate a websocket upgrade, which can't carry
// an Authorization header from a browser EventSource/WebSocket client.
type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func newTokenIssuer(apiKey string) *tokenIssuer {
	return &tokenIssuer{secret: []byte(apiKey), ttl: 5 * time.Minute}
}

func (ti *tokenIssuer) issue(taskID string) (string, error) {
	claims := streamTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ti.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		TaskID: taskID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.secret)
}

func (ti *tokenIssuer) verify(raw string) (Principal, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &streamTokenClaims{}
	parsed, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return ti.secret, nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid || claims.TaskID == "" {
		return Principal{}, errors.New("gateway: invalid stream token")
	}
	return Principal{Source: "stream_token", TaskID: claims.TaskID}, nil
}

// authenticateAPIKey checks the bearer key against the gateway's one
// configured secret. The secret is stored hashed (argon2id, via
// internal/auth) so the env-supplied value never round-trips in cleartext
// once loaded into the config the rest of the process can introspect.
func authenticateAPIKey(key, encodedHash string) (Principal, error) {
	if strings.TrimSpace(key) == "" {
		return Principal{}, errors.New("gateway: api key required")
	}
	ok, err := auth.VerifyAPIKey(key, encodedHash)
	if err != nil {
		return Principal{}, err
	}
	if !ok {
		return Principal{}, errors.New("gateway: invalid api key")
	}
	return Principal{Source: "api_key"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// requireAPIKey wraps next, rejecting requests without a valid
// Authorization: Bearer <api-key> header.
func requireAPIKey(apiKeyHash string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := bearerToken(authz)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		if _, err := authenticateAPIKey(token, apiKeyHash); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
