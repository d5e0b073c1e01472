// Package main — cmd/streamguard/main.go
//
// streamguard pipeline entrypoint.
//
// Startup sequence:
//  1. Load and validate config.
//  2. Initialise structured logger (zap).
//  3. Start Prometheus metrics server (loopback).
//  4. Open BoltDB storage, prune stale ledger entries.
//  5. Build the Store and select the scoring policy.
//  6. Open (or synthesize) the ingestion source.
//  7. Start Ingestion, Analyzer and Alert Sink goroutines.
//  8. Start the operator socket, if enabled.
//  9. Register SIGHUP handler for config hot-reload.
// 10. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel root context (propagates to all three pipeline goroutines).
//  2. Wait for the three goroutines to exit (max 5s, via WaitGroup racing a timer).
//  3. Print the final dashboard summary.
//  4. Close BoltDB, flush logger, exit 0.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/streamguard/streamguard/internal/alertsink"
	"github.com/streamguard/streamguard/internal/analyzer"
	"github.com/streamguard/streamguard/internal/audit"
	"github.com/streamguard/streamguard/internal/config"
	"github.com/streamguard/streamguard/internal/dashboard"
	"github.com/streamguard/streamguard/internal/ingestion"
	"github.com/streamguard/streamguard/internal/model"
	"github.com/streamguard/streamguard/internal/observability"
	"github.com/streamguard/streamguard/internal/operator"
	"github.com/streamguard/streamguard/internal/scoring"
	"github.com/streamguard/streamguard/internal/storage"
	"github.com/streamguard/streamguard/internal/store"
)

// topUsersInSummary is how many top-scoring users the end-of-run dashboard
// reports (spec §6: "the top five users by current score").
const topUsersInSummary = 5

func main() {
	configPath := flag.String("config", "/etc/streamguard/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("streamguard %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Initialise logger ─────────────────────────────────────────────
	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("streamguard starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 3: Prometheus metrics ────────────────────────────────────────────
	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 4: Open BoltDB ───────────────────────────────────────────────────
	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.RetentionDays, metrics)
	if err != nil {
		log.Fatal("BoltDB open failed", zap.Error(err), zap.String("path", cfg.Storage.DBPath))
	}
	defer db.Close() //nolint:errcheck
	log.Info("BoltDB opened", zap.String("path", cfg.Storage.DBPath))

	pruned, err := db.PruneOldAlerts()
	if err != nil {
		log.Warn("ledger pruning failed", zap.Error(err))
	} else {
		log.Info("ledger pruned", zap.Int("deleted", pruned))
	}

	// ── Step 5: Store and scoring policy ──────────────────────────────────────
	s := store.New(time.Duration(cfg.Window.Seconds)*time.Second, metrics, log)

	policy, err := buildPolicy(cfg, db)
	if err != nil {
		log.Fatal("scoring policy selection failed", zap.Error(err))
	}
	log.Info("scoring policy selected", zap.String("policy", policy.Name()))

	validator := audit.New(audit.Bounds{
		SeverityMin:   uint8(model.SeverityNormal),
		SeverityMax:   uint8(model.SeverityCritical),
		SkewTolerance: cfg.Audit.SkewTolerance,
	}, metrics, log)

	// ── Step 6: Ingestion source ───────────────────────────────────────────────
	if cfg.Ingestion.Synthesize {
		if err := ingestion.Synthesize(cfg.Ingestion.InputPath); err != nil {
			log.Fatal("failed to synthesize sample input", zap.Error(err))
		}
	}
	src, err := os.Open(cfg.Ingestion.InputPath)
	if err != nil {
		log.Fatal("failed to open ingestion input", zap.Error(err), zap.String("path", cfg.Ingestion.InputPath))
	}
	defer src.Close() //nolint:errcheck

	// ── Step 7: Pipeline goroutines ────────────────────────────────────────────
	adapter := ingestion.New(s, metrics, log, cfg.Ingestion.LineDelay)
	an := analyzer.New(s, policy, cfg.Scoring.Thresholds.ToThresholds(), validator, metrics, log,
		time.Duration(cfg.Window.AnalyzerIntervalMS)*time.Millisecond)
	sink, err := alertsink.New(s, db, dashboard.PlainRenderer{}, log, "")
	if err != nil {
		log.Fatal("alert sink init failed", zap.Error(err))
	}
	defer sink.Close() //nolint:errcheck

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := adapter.Run(ctx, src); err != nil {
			log.Warn("ingestion exited with error", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		an.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sink.Run(ctx)
	}()
	log.Info("pipeline started")

	// ── Step 8: Operator socket ────────────────────────────────────────────────
	if cfg.Operator.Enabled {
		opServer := operator.NewServer(cfg.Operator.SocketPath, s, log)
		go func() {
			if err := opServer.ListenAndServe(ctx); err != nil {
				log.Error("operator server error", zap.Error(err))
			}
		}()
		log.Info("operator socket listening", zap.String("path", cfg.Operator.SocketPath))
	}

	// ── Step 9: SIGHUP hot-reload ──────────────────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			// A valid reload copies the scoring weights and thresholds into
			// cfg (config.go's documented contract). The running Analyzer and
			// scoring policy keep the values they were built with at startup;
			// the log level, DB path, ingestion input path and operator
			// socket path take effect only on restart.
			log.Info("config hot-reload successful",
				zap.String("policy", newCfg.Scoring.Policy),
				zap.Float64("threshold_critical", newCfg.Scoring.Thresholds.Critical))
			cfg.Scoring.Thresholds = newCfg.Scoring.Thresholds
			cfg.Scoring.Additive = newCfg.Scoring.Additive
		}
	}()

	// ── Step 10: Wait for shutdown signal ─────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()

	shutdownTimer := time.NewTimer(5 * time.Second)
	defer shutdownTimer.Stop()
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-shutdownTimer.C:
		log.Warn("shutdown drain timeout — forcing exit")
	case <-drained:
		log.Info("pipeline goroutines drained")
	}

	summary := dashboard.BuildSummary(s, topUsersInSummary)
	fmt.Println(dashboard.PlainRenderer{}.RenderSummary(summary))

	log.Info("streamguard shutdown complete")
}

// buildPolicy selects and constructs the configured scoring.Policy.
// "additive" builds directly from config weights rather than going through
// the registry, since its weights are user-configurable; "mahalanobis"
// wraps db, which implements scoring.BaselineStore.
func buildPolicy(cfg *config.Config, db *storage.DB) (scoring.Policy, error) {
	switch cfg.Scoring.Policy {
	case "additive":
		return scoring.NewAdditivePolicy(cfg.Scoring.Additive.ToWeights()), nil
	case "mahalanobis":
		return scoring.NewMahalanobisPolicy(db, cfg.Scoring.Mahalanobis.EntropyWeight), nil
	default:
		return nil, fmt.Errorf("unknown scoring policy %q", cfg.Scoring.Policy)
	}
}

// buildLogger constructs a zap.Logger with the given level and format.
func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
