// Saqr - Shadow ID scan risk assessment.
// Copyright (c) 2025 shadowid.platform
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shadowid-platform/saqr/internal/anomaly"
	"github.com/shadowid-platform/saqr/internal/api"
	"github.com/shadowid-platform/saqr/internal/assess"
	"github.com/shadowid-platform/saqr/internal/bus"
	"github.com/shadowid-platform/saqr/internal/cache"
	"github.com/shadowid-platform/saqr/internal/domain"
	"github.com/shadowid-platform/saqr/internal/features"
	"github.com/shadowid-platform/saqr/internal/model"
	"github.com/shadowid-platform/saqr/internal/observability"
	"github.com/shadowid-platform/saqr/internal/policy"
	"github.com/shadowid-platform/saqr/internal/repository"
	"github.com/shadowid-platform/saqr/internal/velocity"
	"github.com/shadowid-platform/saqr/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// .env is optional; environment variables win either way.
	godotenv.Load()

	serveMode := len(os.Args) > 1 && os.Args[1] == "serve"

	// In one-shot mode stdout carries the assessment JSON, so logs go
	// to stderr.
	logOut := io.Writer(os.Stdout)
	if !serveMode {
		logOut = os.Stderr
	}
	logLevel := slog.LevelInfo
	if os.Getenv("SAQR_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg := domain.DefaultConfig()
	if os.Getenv("SAQR_TIER") == "pro" {
		cfg = domain.ProConfig()
	}
	if dir := os.Getenv("SAQR_MODELS_DIR"); dir != "" {
		cfg.Models.Dir = dir
	}

	// Model artifacts are required in every mode.
	artifacts, err := model.LoadArtifacts(cfg.Models.Dir)
	if err != nil {
		slog.Error("failed to load model artifacts", "dir", cfg.Models.Dir, "error", err)
		os.Exit(1)
	}
	slog.Info("model artifacts loaded",
		"dir", cfg.Models.Dir,
		"features", len(artifacts.FeatureNames),
		"classes", artifacts.NumClasses(),
	)

	if serveMode {
		runServer(cfg, artifacts)
		return
	}
	runOneShot(artifacts)
}

// runOneShot assesses a single scan event and prints the verdict JSON
// to stdout. The event comes from the first argument (a JSON string)
// or, when absent, from stdin. Nothing is persisted.
func runOneShot(artifacts *model.Artifacts) {
	var input []byte
	if len(os.Args) > 1 {
		input = []byte(os.Args[1])
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			slog.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		input = data
	}

	var ev domain.ScanEvent
	if err := json.Unmarshal(input, &ev); err != nil {
		slog.Error("invalid scan event JSON", "error", err)
		os.Exit(1)
	}

	verdict := assessLocal(context.Background(), artifacts, &ev)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(verdict); err != nil {
		slog.Error("failed to write result", "error", err)
		os.Exit(1)
	}
}

// assessLocal scores one event through the model pipeline alone.
// Anomaly flags are taken exactly as supplied on the event: detection,
// policies, storage and events are serve-mode concerns. Output is the
// bare verdict (riskScore, riskLevel, riskProbability).
func assessLocal(ctx context.Context, artifacts *model.Artifacts, ev *domain.ScanEvent) domain.RiskAssessment {
	pipeline := assess.NewPipeline(model.NewCascade(artifacts), features.NewBuilder(nil), nil)
	verdict, _ := pipeline.Assess(ctx, ev)
	return verdict
}

func runServer(cfg *domain.Config, artifacts *model.Artifacts) {
	slog.Info("starting saqr",
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	velocitySvc := velocity.NewService(repo, cacheImpl, nil)
	slog.Info("velocity service initialized")

	policyEngine, err := policy.NewEngine()
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	// Policies are configured via POST /policies - no hardcoded defaults.
	if err := loadPoliciesFromDatabase(ctx, repo, policyEngine); err != nil {
		slog.Error("failed to load policies", "error", err)
		os.Exit(1)
	}
	slog.Info("policy engine initialized", "policies_count", policyEngine.PoliciesCount())

	metrics := observability.NewMetrics()

	detector := anomaly.NewDetector(velocitySvc.GenerationCounter(), nil, nil)
	pipeline := assess.NewPipeline(model.NewCascade(artifacts), features.NewBuilder(nil), nil)

	service, err := assess.NewService(assess.ServiceConfig{
		Detector: detector,
		Pipeline: pipeline,
		Policies: policyEngine,
		Repo:     repo,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Metrics:  metrics,
	})
	if err != nil {
		slog.Error("failed to initialize assessment service", "error", err)
		os.Exit(1)
	}

	// Async worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("SAQR_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, service)

		var tenantIDs []string
		if envTenants := os.Getenv("SAQR_TENANTS"); envTenants != "" {
			for _, id := range strings.Split(envTenants, ",") {
				if id = strings.TrimSpace(id); id != "" {
					tenantIDs = append(tenantIDs, id)
				}
			}
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	srv := api.NewServer(cfg.Server, service, repo, cacheImpl, busImpl, policyEngine, metrics, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("saqr is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

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

	slog.Info("saqr shutdown complete")
}

// GlobalTenantID is used for policies that apply to all tenants.
const GlobalTenantID = "*"

// loadPoliciesFromDatabase loads escalation policies into the engine.
// All policies must be configured via POST /policies - no hardcoded defaults.
func loadPoliciesFromDatabase(ctx context.Context, repo domain.Repository, engine *policy.Engine) error {
	configs, err := repo.ListPolicyConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list policies from database", "error", err)
		return nil // Start with empty policies - they can be added via API
	}

	if len(configs) > 0 {
		slog.Info("loading policies from database", "count", len(configs))
		return engine.LoadPolicies(configs)
	}

	slog.Info("no policies in database - configure via POST /policies API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +------------------------------------------+")
	fmt.Println("  |                 SAQR                     |")
	fmt.Println("  |     Shadow ID Scan Risk Assessment       |")
	fmt.Println("  |      Every scan, weighed in flight.      |")
	fmt.Println("  +------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /assess            - Assess a Shadow ID scan")
	fmt.Println("    GET  /assessments/{id}  - Get assessment by ID")
	fmt.Println("    GET  /scans/{id}        - Get scan by ID")
	fmt.Println("    GET  /policies          - List escalation policies")
	fmt.Println("    POST /policies          - Create a new policy")
	fmt.Println("    DELETE /policies/{id}   - Disable a policy")
	fmt.Println("    POST /policies/reload   - Hot-reload policies from database")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println("    GET  /metrics           - Prometheus metrics")
	fmt.Println()
}
