package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/fleet-analytics/internal/api"
	"github.com/smukkama/fleet-analytics/internal/cache"
	"github.com/smukkama/fleet-analytics/internal/database"
	"github.com/smukkama/fleet-analytics/internal/logging"
	"github.com/smukkama/fleet-analytics/internal/metrics"
	"github.com/smukkama/fleet-analytics/internal/queue"
	"github.com/smukkama/fleet-analytics/internal/report"
	"github.com/smukkama/fleet-analytics/internal/workerpool"
	"github.com/smukkama/fleet-analytics/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info("server: starting fleet analytics API")

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Rollup.MigrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Result cache
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	resultCache := cache.NewResultCache(rdb, cfg.Redis.CacheTTL)
	var apiCache api.Cache = resultCache
	if err := resultCache.Ping(context.Background()); err != nil {
		logger.Warn("server: redis unavailable, caching disabled", "addr", cfg.Redis.Addr, "err", err)
		apiCache = nil
	}

	// Anomaly topic
	if err := queue.CreateTopic(cfg.Kafka.Brokers, cfg.Kafka.TopicAnomalies, cfg.Kafka.NumPartitions, 1); err != nil {
		logger.Warn("server: topic creation failed (may already exist)", "topic", cfg.Kafka.TopicAnomalies, "err", err)
	}
	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAnomalies)
	defer producer.Close()

	// Worker pool shared by report assembly
	pool := workerpool.New(cfg.Workers.Count, cfg.Workers.QueueSize, logger)
	pool.SetObserver(metrics.ObservePoolTask)
	pool.Start()
	defer pool.Stop()

	opts, err := report.OptionsFromConfig(cfg.Engine)
	if err != nil {
		log.Fatalf("Invalid engine options: %v", err)
	}
	holder := report.NewOptionsHolder(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.EnginePath != "" {
		go func() {
			err := config.WatchEngine(ctx, cfg.EnginePath, func(engine config.EngineConfig) {
				if err := holder.Reload(engine); err != nil {
					logger.Error("server: rejected engine options", "err", err)
				}
			})
			if err != nil {
				logger.Error("server: engine watcher stopped", "err", err)
			}
		}()
	}

	srv := api.NewServer(api.Deps{
		Store:     db,
		Cache:     apiCache,
		Publisher: producer,
		Pool:      pool,
		Options:   holder,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("server: listening", "port", cfg.HTTP.Port, "workers", pool.Size())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("server: shutting down gracefully")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server: forced shutdown", "err", err)
	}
}
