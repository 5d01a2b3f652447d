package main

// Package main is the entry point for the analysis agent server.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Open the run history database and the audit trail
//   - Wire the pipeline: registry client, intent resolver, planner, executor
//   - Serve the HTTP API, the metrics endpoint, and the run event stream
//   - Implement graceful shutdown with context cancellation

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swetaais/analysis-agent/internal/audit"
	"github.com/swetaais/analysis-agent/internal/config"
	"github.com/swetaais/analysis-agent/internal/executor"
	"github.com/swetaais/analysis-agent/internal/intent"
	"github.com/swetaais/analysis-agent/internal/pipeline"
	"github.com/swetaais/analysis-agent/internal/planner"
	"github.com/swetaais/analysis-agent/internal/registry"
	"github.com/swetaais/analysis-agent/internal/server"
)

func main() {
	configPath := flag.String("config", "/etc/analysis-agent/config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "analysis-agent: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	manager := config.NewManager(configPath)
	if err := manager.Load(ctx); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := manager.Validate(ctx); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}
	cfg := manager.Get(ctx)

	log, err := audit.NewLogger(&audit.Config{
		AppLogPath:   cfg.Logging.AppLogPath,
		AuditLogPath: cfg.Logging.AuditLogPath,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer log.Close()
	log.Log(ctx, audit.NewEvent(audit.EventConfigLoaded).
		WithDescription(configPath).WithResult(audit.ResultSuccess))

	store, err := pipeline.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer store.Close()

	var source registry.Source
	if cfg.Registry.URL != "" {
		source = &registry.HTTPSource{URL: cfg.Registry.URL}
	} else {
		source = &registry.FileSource{Path: cfg.Registry.Path}
	}
	reg := registry.NewClient(source, time.Duration(cfg.Registry.RefreshSeconds)*time.Second)

	methods := []intent.Method{
		intent.NewPatternMethod(cfg.Resolver.PatternFloor),
		intent.NewModelMethod(),
	}
	if cfg.Resolver.LLM.Enabled {
		llm, err := intent.NewLLMMethod(intent.LLMOptions{
			BaseURL: cfg.Resolver.LLM.BaseURL,
			Model:   cfg.Resolver.LLM.Model,
			APIKey:  cfg.Resolver.LLM.APIKey,
			Weight:  cfg.Resolver.LLMWeight,
			Timeout: time.Duration(cfg.Resolver.LLM.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("initializing llm method: %w", err)
		}
		methods = append(methods, llm)
	}
	resolver := intent.NewResolver(log, methods...)

	pl := planner.New(log, cfg.Executor.DefaultTimeoutSeconds, cfg.Executor.DefaultMaxRetries)
	ex := executor.New(executor.NewInvoker(cfg.Executor.SigningSecret), log, executor.Options{
		MaxConcurrent:  cfg.Executor.MaxConcurrent,
		PlanningBudget: time.Duration(cfg.Executor.PlanningBudgetSeconds * float64(time.Second)),
	})

	// the hub is created by the server; wire the coordinator to it afterwards
	var srv *server.Server
	coordinator := pipeline.NewCoordinator(reg, resolver, pl, ex, store, log,
		func(ev pipeline.RunEvent) {
			if srv != nil {
				srv.Hub().Broadcast(ev)
			}
		})
	srv = server.New(cfg, coordinator, log)

	go func() {
		for updated := range manager.Watch(ctx) {
			log.App().Info("configuration reloaded")
			_ = updated
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.App().Info("shutting down on signal: " + sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
