package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/fleet-analytics/internal/logging"
	"github.com/smukkama/fleet-analytics/internal/notification"
	"github.com/smukkama/fleet-analytics/internal/queue"
	"github.com/smukkama/fleet-analytics/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info("notifier: starting notification service")

	notifier := notification.NewEmailNotifier(&cfg.SMTP, logger)

	// Test SMTP connection (optional, will skip if not configured)
	if err := notifier.TestConnection(); err != nil {
		logger.Warn("notifier: notifications will be logged only", "err", err)
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAnomalies, cfg.Kafka.GroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, err := consumer.Consume(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("notifier: failed to consume message", "err", err)
				time.Sleep(time.Second)
				continue
			}

			if err := notifier.HandleMessage(msg.Value); err != nil {
				if !errors.Is(err, notification.ErrMalformed) {
					// Don't commit on delivery failure - retry
					logger.Error("notifier: failed to send notification", "offset", msg.Offset, "err", err)
					continue
				}
				logger.Warn("notifier: dropping malformed message", "offset", msg.Offset, "err", err)
			}

			if err := consumer.Commit(ctx, msg); err != nil {
				logger.Error("notifier: failed to commit offset", "offset", msg.Offset, "err", err)
			}
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("notifier: shutting down gracefully")
	cancel()
	<-done

	stats := consumer.Stats()
	logger.Info("notifier: consumer stopped", "messages", stats.Messages, "errors", stats.Errors)
}
