package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/oracle-backend/internal/api"
	"github.com/kjannette/oracle-backend/internal/cache"
	"github.com/kjannette/oracle-backend/internal/config"
	"github.com/kjannette/oracle-backend/internal/db"
	"github.com/kjannette/oracle-backend/internal/ethereum"
	"github.com/kjannette/oracle-backend/internal/external"
	"github.com/kjannette/oracle-backend/internal/models"
	"github.com/kjannette/oracle-backend/internal/notifications"
	"github.com/kjannette/oracle-backend/internal/pricing"
	"github.com/kjannette/oracle-backend/internal/queue"
	"github.com/kjannette/oracle-backend/internal/repository"
	"github.com/kjannette/oracle-backend/internal/scheduler"
	"github.com/kjannette/oracle-backend/internal/worker"
)

const banner = `
╔══════════════════════════════════════╗
║      Token Price Oracle v0.1         ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Redis backs both the cache and the job queue; without it there is no
	// service to run.
	fmt.Printf("\n[REDIS] Connecting to %s ...\n", cfg.RedisAddr())
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 5*time.Second)
	rdb, err := cache.Connect(connectCtx, cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	cancelConnect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[REDIS] Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		rdb.Close()
		fmt.Println("[REDIS] Connection closed")
	}()
	priceCache := cache.New(rdb)

	// Postgres is a degraded-mode dependency: without it the resolver serves
	// live prices only and the history endpoint answers 503.
	var pool *pgxpool.Pool
	var priceRepo *repository.PriceRepo
	fmt.Printf("[DB] Connecting to %s:%d/%s ...\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err = db.Connect(cfg.DSN())
	if err != nil {
		fmt.Printf("[DB] Connection failed, continuing without historical store: %v\n", err)
		pool = nil
	} else {
		defer func() {
			pool.Close()
			fmt.Println("[DB] Connection pool closed")
		}()
		if err := db.Migrate(pool); err != nil {
			fmt.Fprintf(os.Stderr, "[DB] Migration failed: %v\n", err)
			os.Exit(1)
		}
		priceRepo = repository.NewPriceRepo(pool)
	}

	// External collaborators
	provider := external.NewCoinGeckoClient(cfg.CoinGeckoAPIKey)

	chain, err := ethereum.NewClient(map[models.Network]string{
		models.NetworkEthereum: cfg.EthereumRPC,
		models.NetworkPolygon:  cfg.PolygonRPC,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[CHAIN] RPC setup failed: %v\n", err)
		os.Exit(1)
	}
	defer chain.Close()

	// Core pipeline
	var store pricing.Store
	var workerStore worker.Store
	var history api.HistoryStore
	if priceRepo != nil {
		store = priceRepo
		workerStore = priceRepo
		history = priceRepo
	}

	resolver := pricing.NewResolver(store, priceCache, provider, cfg.CacheTTL(), cfg.BackoffBase())

	jobQueue := queue.New(rdb, cfg.QueueName)
	backfillSched := scheduler.NewBackfillScheduler(chain, jobQueue, cfg.BackoffBase())

	notify := notifications.NewSender(cfg.WebhookURL, cfg.ServiceName)

	backfill := worker.NewBackfill(provider, workerStore, cfg.BackfillBatchSize,
		cfg.BackfillBatchDelay(), cfg.BackoffBase())

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Queue runner
	runner := queue.NewRunner(jobQueue, func(ctx context.Context, job models.BackfillJob, progress func(int)) error {
		if workerStore == nil {
			return fmt.Errorf("historical store not available")
		}
		return backfill.Run(ctx, job, progress)
	}, queue.RunnerConfig{
		LockTTL:         time.Duration(cfg.JobLockSeconds) * time.Second,
		StalledInterval: time.Duration(cfg.StalledSeconds) * time.Second,
		MaxStalledCount: cfg.MaxStalledCount,
		OnCompleted:     notify.JobCompleted,
		OnFailed:        notify.JobFailed,
	})
	runner.Start(ctx)

	// 2. API server
	srv := api.NewServer(resolver, backfillSched, history, pool, rdb,
		cfg.Port, cfg.APIKey, cfg.CORSAllowOrigin)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "[API] Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	fmt.Println("\nAll services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[API] Shutdown error: %v\n", err)
	}
	fmt.Println("[API] Server closed")
	fmt.Println("Shutdown complete")
}
