// Package main — cmd/rangecoord/main.go
//
// Range coordinator entrypoint.
//
// Startup sequence:
//  1. Load and validate config from /etc/rangecoord/config.yaml.
//  2. Initialise structured logger (zap, JSON format).
//  3. Open BoltDB storage.
//  4. Prune stale ledger entries.
//  5. Start Prometheus metrics server (127.0.0.1:9091 by default).
//  6. Wire the player registry, attack coordinator, session server, and
//     round engine.
//  7. Start the operator Unix socket (if enabled).
//  8. Start the Admin CLI: a TCP listener on --host:--port (default
//     0.0.0.0:9999, one REPL session per connection) plus a local stdin
//     REPL for the console the process was launched from.
//  9. Block on SIGINT/SIGTERM, or the stdin REPL's "quit", for graceful
//     shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM, or on the admin REPL's "quit"):
//  1. Cancel root context (propagates to all goroutines).
//  2. Stop any in-progress match.
//  3. Close BoltDB.
//  4. Flush logger.
//  5. Exit 0.
//
// On config validation failure: exit 1 immediately. rangecoord has no
// privileged kernel surface to load and does not require running as
// root.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Hyunwoo2267/ComNetProject/internal/admin"
	"github.com/Hyunwoo2267/ComNetProject/internal/attack"
	"github.com/Hyunwoo2267/ComNetProject/internal/config"
	"github.com/Hyunwoo2267/ComNetProject/internal/observability"
	"github.com/Hyunwoo2267/ComNetProject/internal/operator"
	"github.com/Hyunwoo2267/ComNetProject/internal/player"
	"github.com/Hyunwoo2267/ComNetProject/internal/round"
	"github.com/Hyunwoo2267/ComNetProject/internal/session"
	"github.com/Hyunwoo2267/ComNetProject/internal/storage"
	"github.com/Hyunwoo2267/ComNetProject/internal/traffic"
)

func main() {
	// ── Flags ─────────────────────────────────────────────────────────────────
	configPath := flag.String("config", "/etc/rangecoord/config.yaml", "Path to config.yaml")
	adminHost := flag.String("host", "0.0.0.0", "Admin CLI bind host")
	adminPort := flag.Int("port", 9999, "Admin CLI bind port")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("rangecoord %s (commit=%s built=%s)\n",
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

	log.Info("rangecoord starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 3: Open BoltDB ───────────────────────────────────────────────────
	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.RetentionDays)
	if err != nil {
		log.Fatal("BoltDB open failed", zap.Error(err),
			zap.String("path", cfg.Storage.DBPath))
	}
	defer db.Close() //nolint:errcheck
	log.Info("BoltDB opened", zap.String("path", cfg.Storage.DBPath))

	// ── Step 4: Prune stale ledger entries ────────────────────────────────────
	pruned, err := db.PruneOldLedgerEntries()
	if err != nil {
		log.Warn("ledger pruning failed", zap.Error(err))
	} else {
		log.Info("ledger pruned", zap.Int("deleted", pruned))
	}

	// ── Step 5: Prometheus metrics ────────────────────────────────────────────
	metrics := observability.NewMetrics()
	db.SetMetrics(metrics)
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 6: Wire the coordinator ──────────────────────────────────────────
	round.MinPlayers = cfg.Server.MinPlayers
	round.PreparationDuration = cfg.Server.PreparationDuration
	round.PlayingDuration = cfg.Server.PlayingDuration
	round.RoundEndDelay = cfg.Server.RoundEndDelay
	round.GameStartDelay = cfg.Server.GameStartDelay
	session.BasePort = cfg.Server.BasePort

	registry := player.NewRegistry()
	srv := session.NewServer(log, registry, nil)
	coord := attack.New(srv, srv)
	coord.SetMetrics(metrics)
	srv = session.NewServer(log, registry, coord)
	srv.SetRateLimit(session.RateLimit{
		Capacity:     cfg.RateLimit.Capacity,
		RefillPeriod: cfg.RateLimit.RefillPeriod,
	})
	srv.SetMetrics(metrics)
	srv.SetPacketLogEnabled(cfg.Observability.PacketLogEnabled)

	dummy := traffic.NewDummy(srv, time.Now().UnixNano(), 2.0)
	dummy.SetMetrics(metrics)
	noise := traffic.NewNoise(srv, srv, time.Now().UnixNano()+1)
	noise.SetMetrics(metrics)
	engine := round.New(registry, coord, srv, dummy, noise, srv, srv)
	engine.SetMetrics(metrics)
	srv.SetEngine(engine)

	go dummy.Run(ctx)

	coordAdmin := &adminSurface{rootCtx: ctx, engine: engine, srv: srv, cfg: cfg, log: log, ledger: db}
	_ = coordAdmin.StartServer()
	log.Info("session server started", zap.String("addr", cfg.Server.ListenAddr))

	// ── Step 7: Operator Unix socket ──────────────────────────────────────────
	if cfg.Operator.Enabled {
		opSrv := operator.NewServer(cfg.Operator.SocketPath, coordAdmin, log)
		go func() {
			if err := opSrv.ListenAndServe(ctx); err != nil {
				log.Error("operator socket error", zap.Error(err))
			}
		}()
		log.Info("operator socket listening", zap.String("path", cfg.Operator.SocketPath))
	}

	// ── Step 8: Admin CLI ──────────────────────────────────────────────────────
	adminAddr := fmt.Sprintf("%s:%d", *adminHost, *adminPort)
	go func() {
		if err := admin.ListenAndServe(ctx, adminAddr, coordAdmin, log); err != nil {
			log.Error("admin CLI listener error", zap.Error(err))
		}
	}()

	replDone := make(chan struct{})
	go func() {
		defer close(replDone)
		repl := admin.New(coordAdmin, log, os.Stdin, os.Stdout)
		if err := repl.Run(); err != nil && err != admin.ExitRequested {
			log.Warn("admin REPL exited with error", zap.Error(err))
		}
	}()

	// ── Step 9: Wait for shutdown signal ──────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-replDone:
		log.Info("admin REPL requested shutdown")
	}

	cancel()
	engine.Stop()

	shutdownTimer := time.NewTimer(5 * time.Second)
	defer shutdownTimer.Stop()
	<-shutdownTimer.C

	log.Info("rangecoord shutdown complete")
}

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
