// Command thane-forge runs the build orchestration service: it serves
// the REST/WebSocket API, ingests GitHub webhooks, and drives the
// workflow engine against cloned firmware project checkouts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nugget/thane-forge/internal/api"
	"github.com/nugget/thane-forge/internal/build"
	"github.com/nugget/thane-forge/internal/buildinfo"
	"github.com/nugget/thane-forge/internal/config"
	"github.com/nugget/thane-forge/internal/deps"
	"github.com/nugget/thane-forge/internal/events"
	"github.com/nugget/thane-forge/internal/llm"
	"github.com/nugget/thane-forge/internal/repo"
	"github.com/nugget/thane-forge/internal/router"
	"github.com/nugget/thane-forge/internal/store"
	"github.com/nugget/thane-forge/internal/toolchain"
	"github.com/nugget/thane-forge/internal/webhook"
	"github.com/nugget/thane-forge/internal/workflow"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 && flag.Arg(0) == "version" {
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.Info() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
		return
	}

	runServe(logger, *configPath)
}

func runServe(logger *slog.Logger, configPath string) {
	logger.Info("starting thane-forge", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"projects_base_dir", cfg.ProjectsBaseDir,
		"default_model", cfg.LLM.DefaultModel,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.ProjectsBaseDir, 0o755); err != nil {
		logger.Error("failed to create projects directory", "path", cfg.ProjectsBaseDir, "error", err)
		os.Exit(1)
	}

	dbPath := cfg.DataDir + "/thane-forge.db"
	st, err := store.New(dbPath)
	if err != nil {
		logger.Error("failed to open store", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("store opened", "path", dbPath)

	bus := events.New(logger, cfg.EventBus.QueueBound)
	if err := bus.Start(); err != nil {
		logger.Error("failed to start event bus", "error", err)
		os.Exit(1)
	}
	defer bus.Stop()

	repoMgr := repo.New(time.Duration(cfg.Toolchain.DefaultTimeoutSec) * time.Second)

	tc := toolchain.New(toolchain.Config{
		BuildCommand:     cfg.Toolchain.BuildCommand,
		FlashCommand:     cfg.Toolchain.FlashCommand,
		SimulateCommand:  cfg.Toolchain.SimulateCommand,
		DoctorCommand:    cfg.Toolchain.DoctorCommand,
		SetTargetCommand: cfg.Toolchain.SetTargetCommand,
		DefaultTimeout:   time.Duration(cfg.Toolchain.DefaultTimeoutSec) * time.Second,
	})

	llmClient := createLLMClient(cfg, logger)

	routerCfg := router.Config{
		DefaultModel:     cfg.LLM.DefaultModel,
		FallbackProvider: cfg.LLM.FallbackProvider,
		MaxAuditLog:      1000,
	}
	for _, p := range cfg.LLM.Providers {
		for _, m := range p.Models {
			routerCfg.Routes = append(routerCfg.Routes, router.ModelRoute{Model: m, Provider: p.Name})
		}
	}
	rtr := router.New(logger, routerCfg)
	logger.Info("model router initialized", "routes", len(routerCfg.Routes), "default", routerCfg.DefaultModel)

	engine := workflow.New(logger, bus, tc, llmClient, rtr, workflow.Config{
		QAIterationBound: cfg.Workflow.QAIterationBound,
		MaxParallelTasks: cfg.Workflow.MaxParallelTasks,
		SimulatorStartup: time.Duration(cfg.Workflow.SimulatorStartupSeconds) * time.Second,
		DefaultModel:     cfg.LLM.DefaultModel,
	})

	builder := build.New(logger, st, engine)
	resolver := deps.New(logger, st)
	intake := webhook.New(logger, st, repoMgr, builder)

	seedDefaultAgents(st, logger)

	server := api.New(cfg.Listen.Address, cfg.Listen.Port, st, bus, repoMgr, builder, resolver, intake, cfg.ProjectsBaseDir, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("thane-forge stopped")
}

// seedDefaultAgents ensures the fixed set of orchestration roles exist
// on first run so the dashboard has something to show before any
// project triggers a build.
func seedDefaultAgents(st *store.Store, logger *slog.Logger) {
	defaults := []struct{ name, typ string }{
		{"build-coordinator", "coordinator"},
		{"qa-analyst", "qa"},
		{"repair-engineer", "repair"},
	}
	existing, err := st.ListAgents()
	if err != nil {
		logger.Warn("could not list agents for seeding", "error", err)
		return
	}
	if len(existing) > 0 {
		return
	}
	for _, d := range defaults {
		if err := st.CreateAgent(&store.Agent{Name: d.name, Type: d.typ, Status: store.AgentIdle}); err != nil {
			logger.Warn("failed to seed default agent", "name", d.name, "error", err)
		}
	}
	logger.Info("seeded default agents", "count", len(defaults))
}

// createLLMClient builds a multi-provider client routed per config.
// The fallback is the provider named by llm.fallback_provider, or the
// first configured provider when none matches that name, or a local
// Ollama client when no provider is configured.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	var fallback llm.Client
	clients := make(map[string]llm.Client, len(cfg.LLM.Providers))

	for _, p := range cfg.LLM.Providers {
		var c llm.Client
		switch p.Name {
		case "anthropic":
			c = llm.NewAnthropicClient(p.APIKey, logger)
		default:
			baseURL := p.BaseURL
			if baseURL == "" {
				baseURL = "http://localhost:11434"
			}
			c = llm.NewOllamaClient(baseURL, logger)
		}
		clients[p.Name] = c
		if fallback == nil || p.Name == cfg.LLM.FallbackProvider {
			fallback = c
		}
	}

	if fallback == nil {
		fallback = llm.NewOllamaClient("http://localhost:11434", logger)
	}

	multi := llm.NewMultiClient(fallback)
	for name, c := range clients {
		multi.AddProvider(name, c)
	}
	for _, p := range cfg.LLM.Providers {
		for _, m := range p.Models {
			multi.AddModel(m, p.Name)
		}
	}

	logger.Info("LLM client initialized", "providers", len(clients), "default_model", cfg.LLM.DefaultModel)
	return multi
}
