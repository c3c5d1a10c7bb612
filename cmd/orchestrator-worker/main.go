// Command orchestrator-worker runs the Worker Loop: it pulls queued task IDs
// and drives each through the Orchestrator until the process receives a
// shutdown signal; an empty queue leaves it waiting for more work.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/thruflo/orchcore/internal/config"
	"github.com/thruflo/orchcore/internal/critic"
	"github.com/thruflo/orchcore/internal/executor"
	"github.com/thruflo/orchcore/internal/llmclient"
	"github.com/thruflo/orchcore/internal/logging"
	"github.com/thruflo/orchcore/internal/orchestrator"
	"github.com/thruflo/orchcore/internal/planner"
	"github.com/thruflo/orchcore/internal/queue"
	"github.com/thruflo/orchcore/internal/registry"
	"github.com/thruflo/orchcore/internal/sandbox"
	"github.com/thruflo/orchcore/internal/store"
	"github.com/thruflo/orchcore/internal/stream"
	"github.com/thruflo/orchcore/internal/task"
	"github.com/thruflo/orchcore/internal/tools"
	"github.com/thruflo/orchcore/internal/worker"
)

func main() {
	configPath := flag.String("config", "orchcore.yaml", "path to the static YAML config file")
	dataDir := flag.String("data-dir", "./data", "directory for the task store and event log")
	spritesBaseDomain := flag.String("sprites-base-domain", "sprites.dev", "service hostname suffix when running against the Sprites runtime")
	flag.Parse()

	logger := logging.With("component", "orchestrator-worker")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("load config failed", "error", err)
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

	var runtime sandbox.Runtime
	if cfg.Sandbox.RuntimeToken != "" {
		runtime = sandbox.NewSpritesRuntime(cfg.Sandbox.RuntimeToken, *spritesBaseDomain)
	} else {
		logger.Warn("no sandbox runtime token set, using the in-process fake runtime")
		runtime = sandbox.NewFakeRuntime()
	}
	manager := sandbox.New(runtime, sandbox.NewHTTPServiceClient(), logging.With("component", "sandbox"))

	reg := registry.New(logging.With("component", "registry"))
	tools.RegisterAll(reg, manager)

	plannerLLM, err := llmclient.NewOllamaClient(cfg.LLM.PlannerModel)
	if err != nil {
		logger.Error("connect planner llm failed", "error", err)
		os.Exit(1)
	}
	criticLLM, err := llmclient.NewOllamaClient(cfg.LLM.CriticModel)
	if err != nil {
		logger.Error("connect critic llm failed", "error", err)
		os.Exit(1)
	}

	p := planner.New(plannerLLM, reg)
	e := executor.New(reg)
	c := critic.New(criticLLM, reg)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.EnableCritic = cfg.Critic.Enabled
	orch := orchestrator.New(st, manager, p, e, c, orchCfg)
	orch.SetStream(fs)

	q := queue.New()
	if err := requeueUnfinished(context.Background(), st, q); err != nil {
		logger.Error("requeue unfinished tasks failed", "error", err)
	}

	workerCfg := worker.DefaultConfig()
	workerCfg.GlobalMax = cfg.Worker.Concurrency
	loop := worker.New(q, st, manager, orch, workerCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker loop starting", "concurrency", workerCfg.GlobalMax)
	loop.Run(ctx)
	logger.Info("worker loop stopped")
}

// requeueUnfinished re-enqueues every task still in a non-terminal status, so
// a restarted worker resumes work a prior process was killed mid-task.
func requeueUnfinished(ctx context.Context, st store.Store, q *queue.InProcessQueue) error {
	for _, status := range []task.Status{task.StatusQueued, task.StatusRunning} {
		tasks, err := st.ListTasks(ctx, store.ListFilter{Status: status})
		if err != nil {
			return fmt.Errorf("list %s tasks: %w", status, err)
		}
		for _, t := range tasks {
			q.Push(t.ID, t.Priority)
		}
	}
	return nil
}
