package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"he300/internal/node"
	"he300/internal/report"
)

func main() {
	configPath := flag.String("config", "", "Path to node config YAML/JSON")
	memoryStore := flag.Bool("memory-store", false, "Use the in-memory store instead of PostgreSQL")
	storePath := flag.String("store-path", "", "Snapshot path for the in-memory store (optional)")
	flag.Parse()

	cfg, err := node.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store node.Store
	if *memoryStore || cfg.Database.DSN == "" {
		memory, err := node.NewMemoryFileStore(*storePath)
		if err != nil {
			slog.Error("open memory store failed", "error", err)
			os.Exit(1)
		}
		store = memory
	} else {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
		if err != nil {
			slog.Error("parse database DSN failed", "error", err)
			os.Exit(1)
		}
		if cfg.Database.MaxConns > 0 {
			poolCfg.MaxConns = cfg.Database.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(rootCtx, poolCfg)
		if err != nil {
			slog.Error("connect database failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := node.RunMigrations(rootCtx, pool, cfg.Database.MigrationsPath); err != nil {
			slog.Error("run migrations failed", "error", err)
			os.Exit(1)
		}
		store = node.NewPgStore(pool)
	}

	obs, err := node.SetupObservability(rootCtx, cfg.Observer)
	if err != nil {
		slog.Error("setup observability failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = obs.Shutdown(ctx)
	}()

	signer, err := report.LoadSigner(cfg.Signing.PrivateKeyPath)
	if err != nil {
		slog.Error("load signing key failed", "error", err)
		os.Exit(1)
	}

	notifier, err := node.NewNotifier(cfg.Redis.URL, cfg.Redis.EventChannel)
	if err != nil {
		slog.Error("connect redis notifier failed", "error", err)
		os.Exit(1)
	}
	defer notifier.Close()

	intake, err := node.NewIntake(cfg.Redis.URL, cfg.Redis.IntakeQueue)
	if err != nil {
		slog.Error("connect redis intake failed", "error", err)
		os.Exit(1)
	}
	defer intake.Close()
	if err := intake.Ping(rootCtx); err != nil {
		slog.Error("redis ping failed", "error", err)
		os.Exit(1)
	}

	service := node.NewRunService(cfg.Runner, store, signer, notifier, obs)
	defer service.Shutdown()

	slog.Info("he300 node consuming",
		"queue", cfg.Redis.IntakeQueue,
		"events", cfg.Redis.EventChannel,
		"max_parallel", cfg.Runner.MaxParallelBatches,
	)
	for {
		req, err := intake.Next(rootCtx)
		if err != nil {
			if rootCtx.Err() != nil {
				slog.Info("shutting down")
				return
			}
			slog.Error("intake failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		meta, err := service.Submit(req)
		if err != nil {
			slog.Warn("rejected request", "tenant", req.Tenant, "error", err)
			continue
		}
		slog.Info("batch accepted", "batch_id", meta.BatchID, "tenant", meta.Tenant)
	}
}
