package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pumpfun-scanner/config"
	"pumpfun-scanner/internal/api"
	"pumpfun-scanner/internal/category"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/events"
	"pumpfun-scanner/internal/logging"
	"pumpfun-scanner/internal/market"
	"pumpfun-scanner/internal/metadata"
	"pumpfun-scanner/internal/monitor"
	"pumpfun-scanner/internal/scheduler"
	"pumpfun-scanner/internal/signals"
	"pumpfun-scanner/internal/stream"
)

// Exit codes: 0 clean shutdown, 1 fatal startup (config or schema), 2
// unrecoverable storage failure, 3 forced exit after the shutdown deadline.
const (
	exitOK      = 0
	exitFatal   = 1
	exitStorage = 2
	exitForced  = 3
)

const shutdownDeadline = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitFatal
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		JSONFormat:  cfg.Logging.JSONFormat,
		IncludeFile: cfg.Logging.IncludeFile,
	}))
	logger := logging.WithComponent("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		PoolMax:  cfg.Database.PoolMax,
	})
	if err != nil {
		logger.Error("Database connect failed", "error", err)
		return exitStorage
	}
	if err := db.RunMigrations(ctx); err != nil {
		logger.Error("Migrations failed", "error", err)
		db.Close()
		return exitFatal
	}
	repo := database.NewRepository(db)

	bus := events.NewEventBus()
	mon := monitor.New()
	mon.Attach(bus)

	cache := market.NewAPICache(ctx, cfg.Redis)
	md := market.NewMarketDataClient(cache, repo)
	sniff := market.NewSolsnifferClient(cache, repo)

	mgr := category.NewManager(repo, bus, config.Current)
	enricher := metadata.NewEnricher(repo, md, bus)
	evaluator := signals.NewEvaluator(repo, mgr, bus, config.Current)
	evalQueue := signals.NewQueue(evaluator)

	scanner := market.NewScanner(repo, md, sniff)
	sched := scheduler.New(mgr, repo, scanner, bus, config.Current)
	mgr.SetScheduler(sched)

	fh := stream.NewWSFirehose(cfg.Stream.Endpoint, cfg.Stream.Token)
	batcher := stream.NewBatcher(repo, bus, config.Current, enricher)
	client := stream.NewClient(fh, batcher, repo, mgr, evalQueue, enricher, bus, config.Current)

	solFeed := market.NewSolPriceFeed(repo, bus)

	// Created tokens enter the NEW queue as soon as the create commits.
	bus.Subscribe(events.EventTokenCreated, func(e events.Event) {
		if mint, ok := e.Data["mint"].(string); ok {
			sched.Schedule(mint, category.New)
		}
	})

	mgr.Rehydrate(ctx)
	mgr.Each(func(mint string, cat category.Category) {
		sched.Schedule(mint, cat)
	})

	enricher.Start(ctx)
	evalQueue.Start(ctx)
	if err := sched.Start(ctx); err != nil {
		logger.Error("Scheduler start failed", "error", err)
		db.Close()
		return exitFatal
	}
	solFeed.Start(ctx)
	client.Start(ctx)

	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(repo, mgr, sched, mon, config.Current)
		server.Start()
	}

	logger.Info("Scanner running",
		"endpoint", cfg.Stream.Endpoint,
		"machines", mgr.MachineCount())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown signal received")

	forced := time.AfterFunc(shutdownDeadline, func() {
		fmt.Fprintln(os.Stderr, "shutdown deadline exceeded, forcing exit")
		os.Exit(exitForced)
	})
	defer forced.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer shutdownCancel()

	// Order matters: stop ingress, drain buffers, stop scans, then drop
	// the machines and close the pool.
	client.Stop(shutdownCtx)
	solFeed.Stop()
	sched.Stop(shutdownCtx)
	evalQueue.Stop()
	enricher.Stop()
	mgr.Shutdown()
	if server != nil {
		server.Stop()
	}
	cache.Close()
	cancel()
	db.Close()

	logger.Info("Shutdown complete")
	return exitOK
}
