// Harrier - Field-agent fraud detection and geolocation integrity.
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
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/config"
	"github.com/opensource-finance/harrier/internal/detectors"
	"github.com/opensource-finance/harrier/internal/dispatch"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/fraud"
	"github.com/opensource-finance/harrier/internal/media"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/profile"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/velocity"
	"github.com/opensource-finance/harrier/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "harrier: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"media", cfg.Media.Type,
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

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	// Photo evidence
	store, err := media.NewStore(ctx, cfg.Media)
	if err != nil {
		slog.Error("failed to initialize media store", "error", err)
		os.Exit(1)
	}
	photos := media.NewResolver(
		store,
		media.NewCacheDuplicates(cacheImpl, cfg.Media.DuplicateTTL),
		media.ExifQuality{},
	)
	slog.Info("media store initialized", "type", cfg.Media.Type, "bucket", cfg.Media.Bucket)

	// Custom rules (configure via POST /v1/rules)
	rules, err := detectors.NewRules()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	loadRulesFromDatabase(ctx, repo, rules)

	detectorRegistry := detectors.NewRegistry(cfg.Detection.MaxDetectorWorkers, append(detectors.Builtin(detectors.Options{
		CollusionRadiusMeters: cfg.Detection.CollusionRadiusMeters,
		CollusionWindow:       cfg.Detection.CollusionWindow,
	}), rules)...)

	profiles := profile.NewStore(repo, cacheImpl, cfg.Cache.ProfileTTL)

	svc := fraud.NewService(fraud.Deps{
		Repository: repo,
		Profiles:   profiles,
		Registry:   detectorRegistry,
		Dispatcher: dispatch.New(busImpl),
		Photos:     photos,
		Metrics:    m,
		Detection:  cfg.Detection,
		Breaker:    cfg.Breaker,
	})
	slog.Info("fraud service initialized", "custom_rules", rules.Count())

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Detection.AsyncWorker {
		asyncWorker = worker.NewWorker(busImpl, svc)
		if err := asyncWorker.Start(worker.Config{Concurrency: cfg.Detection.WorkerConcurrency}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "concurrency", cfg.Detection.WorkerConcurrency)
		}
	}

	// Initialize Server
	handler := api.NewHandler(api.Deps{
		Detector:   svc,
		Repository: repo,
		Profiles:   profiles,
		Rules:      rules,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Limiter:    velocity.NewLimiter(cacheImpl, cfg.Detection.AgentRateLimit, cfg.Detection.AgentRateWindow),
		Version:    Version,
	})
	srv := api.NewServer(cfg.Server, handler, api.Options{Metrics: m, Gatherer: promRegistry})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

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

	slog.Info("harrier shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadRulesFromDatabase starts with an empty rule set when the stored rules
// cannot be read or compiled.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, rules *detectors.Rules) {
	stored, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return
	}

	if len(stored) == 0 {
		slog.Info("no rules in database - configure via POST /v1/rules")
		return
	}

	if err := rules.Reload(stored); err != nil {
		slog.Warn("failed to compile stored rules", "error", err)
		return
	}
	slog.Info("rules loaded from database", "stored", len(stored), "active", rules.Count())
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                 HARRIER                   |")
	fmt.Println("  |      Field-Agent Fraud Detection          |")
	fmt.Println("  |      Eyes on every visit.                 |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /v1/detect                  - Score an activity")
	fmt.Println("    GET  /v1/events/{id}             - Get a fraud event")
	fmt.Println("    GET  /v1/agents/{id}/events      - List an agent's fraud events")
	fmt.Println("    GET  /v1/agents/{id}/profile     - Get an agent's baseline")
	fmt.Println("    PUT  /v1/agents/{id}/territory   - Assign a territory")
	fmt.Println("    POST /v1/customers               - Register a customer")
	fmt.Println("    GET  /v1/rules                   - List custom rules")
	fmt.Println("    POST /v1/rules                   - Create a custom rule")
	fmt.Println("    POST /v1/rules/reload            - Hot-reload rules from database")
	fmt.Println("    POST /v1/routes/optimize         - Order visit stops")
	fmt.Println("    GET  /health, /ready, /metrics   - Probes and metrics")
	fmt.Println()
}
