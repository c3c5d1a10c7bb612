// Command orchestrator-gateway runs the ingress HTTP API: task submission,
// inspection, and event streaming over the same Store and Queue the worker
// binary drains.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/thruflo/orchcore/internal/auth"
	"github.com/thruflo/orchcore/internal/config"
	"github.com/thruflo/orchcore/internal/gateway"
	"github.com/thruflo/orchcore/internal/logging"
	"github.com/thruflo/orchcore/internal/queue"
	"github.com/thruflo/orchcore/internal/store"
	"github.com/thruflo/orchcore/internal/stream"
)

func main() {
	configPath := flag.String("config", "orchcore.yaml", "path to the static YAML config file")
	dataDir := flag.String("data-dir", "./data", "directory for the task store and event log, shared with the worker process")
	flag.Parse()

	logger := logging.With("component", "orchestrator-gateway")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	apiKeyHash, err := resolveAPIKeyHash(cfg.Gateway.APIKey)
	if err != nil {
		logger.Error("resolve gateway api key failed", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Error("create data dir failed", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(filepath.Join(*dataDir, "tasks.db"))
	if err != nil {
		logger.Error("open store failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	fs, err := stream.NewFileStore(filepath.Join(*dataDir, "events.ndjson"))
	if err != nil {
		logger.Error("open event stream failed", "error", err)
		os.Exit(1)
	}
	defer fs.Close()

	handler, err := gateway.New(gateway.Config{
		Store:      st,
		Queue:      queue.New(),
		Stream:     fs,
		APIKeyHash: apiKeyHash,
	})
	if err != nil {
		logger.Error("build gateway failed", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", cfg.Gateway.Port)
	logger.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

// resolveAPIKeyHash accepts either a raw ORCH_GATEWAY_API_KEY secret (the
// common case) and hashes it on the way in, or an already-hashed value (an
// operator who pre-hashed via `taskctl gateway hash-key` so the cleartext
// never touches this process's environment). The two are distinguished by
// the argon2id encoded-hash prefix.
func resolveAPIKeyHash(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("ORCH_GATEWAY_API_KEY is required")
	}
	if strings.HasPrefix(raw, "$argon2id$") {
		return raw, nil
	}
	return auth.HashAPIKey(raw)
}
