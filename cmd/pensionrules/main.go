// pensionrules - Multi-state public pension rules engine.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/pensionrules/internal/api"
	"github.com/opensource-finance/pensionrules/internal/assessment"
	"github.com/opensource-finance/pensionrules/internal/bus"
	"github.com/opensource-finance/pensionrules/internal/cache"
	"github.com/opensource-finance/pensionrules/internal/config"
	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/policy"
	"github.com/opensource-finance/pensionrules/internal/repository"
	"github.com/opensource-finance/pensionrules/internal/rules"
	"github.com/opensource-finance/pensionrules/internal/telemetry"
	"github.com/opensource-finance/pensionrules/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	slog.SetDefault(config.NewLogger(cfg.Logging))

	slog.Info("starting pensionrules",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize tracing
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, Version)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Error("failed to flush traces", "error", err)
		}
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Load state rule sets and compliance policies
	source, err := newRuleSource(cfg.Rules, repo)
	if err != nil {
		slog.Error("failed to read rule file", "error", err)
		os.Exit(1)
	}
	snap, err := source.Load(ctx)
	if err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}

	table, err := rules.NewRuleTable(snap.RuleSets, snap.Version)
	if err != nil {
		slog.Error("invalid state rule sets", "error", err)
		os.Exit(1)
	}
	slog.Info("rule table initialized", "version", table.Version(), "states", table.States())

	engine, err := policy.NewEngine(cfg.Rules.PolicyWorkers)
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	if err := engine.LoadRules(snap.Policies); err != nil {
		slog.Error("failed to load policies", "error", err)
		os.Exit(1)
	}
	slog.Info("policy engine initialized", "policies_count", engine.RulesCount())

	// Initialize assessment pipeline
	processor := assessment.NewProcessor(table, engine, cfg.Rules.COLAProjectionYears)
	service := assessment.NewService(processor, repo, cacheImpl, cfg.Cache.MemberTTL)
	slog.Info("assessment service initialized", "cola_years", processor.COLAYears)

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, service)

		workerCfg := worker.Config{
			TenantIDs:   cfg.Worker.TenantIDs,
			WorkerCount: cfg.Worker.Count,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started", "tenant_count", len(workerCfg.TenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Deps{
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Table:    table,
		Policies: engine,
		Service:  service,
		Source:   source,
		Version:  Version,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			cancel()
		}
	}()

	slog.Info("pensionrules is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, table, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("pensionrules shutdown complete")
}

// newRuleSource reads the configured rule file, or the embedded defaults,
// and overlays stored rule sets when enabled.
func newRuleSource(cfg domain.RulesConfig, repo domain.Repository) (*rules.Source, error) {
	var (
		file *rules.RuleFile
		err  error
	)
	if cfg.File == "" {
		file, err = rules.DefaultRuleFile()
	} else {
		file, err = rules.LoadRuleFile(cfg.File)
	}
	if err != nil {
		return nil, err
	}

	if !cfg.LoadFromRepository {
		slog.Info("stored rule sets disabled - rule and policy updates are read-only")
		return rules.NewSource(file, nil, cfg.DefaultTenant), nil
	}
	return rules.NewSource(file, repo, cfg.DefaultTenant), nil
}

func printBanner(cfg *domain.Config, table *rules.RuleTable, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║              PENSIONRULES                 ║")
	fmt.Println("  ║    Multi-State Pension Rules Engine       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Rules:    %s %v\n", table.Version(), table.States())
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /service-credit           - Resolve a service history")
	fmt.Println("    POST /eligibility              - Validate member facts")
	fmt.Println("    POST /benefit                  - Calculate a benefit")
	fmt.Println("    POST /readiness                - Score retirement readiness")
	fmt.Println("    POST /assess                   - Run the full assessment")
	fmt.Println("    GET  /states                   - List state rule sets")
	fmt.Println("    PUT  /states/{code}            - Store a rule set and reload")
	fmt.Println("    POST /members                  - Create a member")
	fmt.Println("    POST /members/{id}/service     - Add service history")
	fmt.Println("    POST /members/{id}/assess      - Assess a stored member")
	fmt.Println("    GET  /assessments/{id}         - Get assessment by ID")
	fmt.Println("    GET  /policies                 - List compliance policies")
	fmt.Println("    POST /policies                 - Create a compliance policy")
	fmt.Println("    GET  /audit                    - List audit records")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println()
}
