package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/fleet-analytics/internal/database"
	"github.com/smukkama/fleet-analytics/internal/logging"
	"github.com/smukkama/fleet-analytics/internal/metrics"
	"github.com/smukkama/fleet-analytics/internal/queue"
	"github.com/smukkama/fleet-analytics/internal/report"
	"github.com/smukkama/fleet-analytics/internal/rollup"
	"github.com/smukkama/fleet-analytics/internal/scheduler"
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
	logger.Info("rollup: starting scheduled rollup service")

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAnomalies)
	defer producer.Close()

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
					logger.Error("rollup: rejected engine options", "err", err)
				}
			})
			if err != nil {
				logger.Error("rollup: engine watcher stopped", "err", err)
			}
		}()
	}

	job := rollup.NewJob(db, producer, pool, func() float64 {
		return holder.Load().AnomalyThreshold
	}, logger)

	sched := scheduler.New(2)
	sched.Start()
	defer sched.Stop()

	if err := job.Register(ctx, sched, cfg.Rollup.HourlyDelay, cfg.Rollup.DailyTime, 10*time.Minute); err != nil {
		log.Fatalf("Failed to schedule rollups: %v", err)
	}

	for _, id := range []string{"hourly-rollup", "daily-rollup"} {
		if next, ok := sched.NextRun(id); ok {
			logger.Info("rollup: scheduled", "task", id, "next_run", next)
		}
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("rollup: shutting down gracefully")
	cancel()
}
