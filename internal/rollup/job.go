// Package rollup runs the scheduled fleet aggregations: it fetches the
// previous period's metric samples, aggregates and stores them, then
// publishes any anomalies it finds.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/fleet-analytics/internal/aggregation"
	"github.com/smukkama/fleet-analytics/internal/anomaly"
	"github.com/smukkama/fleet-analytics/internal/database"
	"github.com/smukkama/fleet-analytics/internal/metrics"
	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/protocol"
	"github.com/smukkama/fleet-analytics/internal/scheduler"
	"github.com/smukkama/fleet-analytics/internal/workerpool"
)

// Store is the persistence a rollup needs
type Store interface {
	MetricSamples(ctx context.Context, q database.SampleQuery) ([]model.MetricSample, error)
	SaveAggregation(ctx context.Context, res model.AggregationResult) error
}

// Publisher announces rollup results
type Publisher interface {
	PublishAnomalies(ctx context.Context, notes []*protocol.AnomalyNotification) error
	PublishRollup(ctx context.Context, msg *protocol.RollupCompleted) error
}

// Job runs rollups for any period
type Job struct {
	store     Store
	publisher Publisher
	pool      *workerpool.Pool
	threshold func() float64
	logger    *slog.Logger
	now       func() time.Time
}

// NewJob creates a rollup job. threshold is consulted on every run so
// reloaded engine options take effect without a restart.
func NewJob(store Store, publisher Publisher, pool *workerpool.Pool, threshold func() float64, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		store:     store,
		publisher: publisher,
		pool:      pool,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Run rolls up the last complete bucket of period. It returns nil, nil when
// the window holds no samples.
func (j *Job) Run(ctx context.Context, period model.Period) (summary *protocol.RollupCompleted, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		switch {
		case err != nil:
			status = "error"
		case summary == nil:
			status = "empty"
		}
		metrics.RollupRuns.WithLabelValues(string(period), status).Inc()
		metrics.ObserveComputation("rollup", start, err)
	}()

	window := PreviousWindow(period, j.now())
	log := j.logger.With("period", period, "window_start", window.Start, "window_end", window.End)

	samples, err := j.store.MetricSamples(ctx, database.SampleQuery{Range: window})
	if err != nil {
		return nil, fmt.Errorf("rollup: fetch samples: %w", err)
	}
	if len(samples) == 0 {
		log.Info("rollup: no samples in window")
		return nil, nil
	}

	metricTypes := presentTypes(samples)
	results := make([]model.AggregationResult, len(metricTypes))
	tasks := make([]workerpool.Task, len(metricTypes))
	for i, mt := range metricTypes {
		i, mt := i, mt
		tasks[i] = func(ctx context.Context) error {
			res, err := aggregation.Aggregate(samples, mt, period)
			results[i] = res
			return err
		}
	}
	if err := j.pool.Run(ctx, tasks...); err != nil {
		return nil, fmt.Errorf("rollup: aggregate: %w", err)
	}

	buckets := 0
	for _, res := range results {
		if err := j.store.SaveAggregation(ctx, res); err != nil {
			return nil, fmt.Errorf("rollup: store %s: %w", res.MetricType, err)
		}
		buckets += len(res.Statistics)
	}

	notes, err := j.detect(samples, log)
	if err != nil {
		return nil, err
	}
	if len(notes) > 0 {
		if err := j.publisher.PublishAnomalies(ctx, notes); err != nil {
			return nil, fmt.Errorf("rollup: publish anomalies: %w", err)
		}
		metrics.AnomaliesDetected.WithLabelValues(protocol.SourceRollup).Add(float64(len(notes)))
	}

	names := make([]string, len(metricTypes))
	for i, mt := range metricTypes {
		names[i] = string(mt)
	}
	summary = &protocol.RollupCompleted{
		Type:        protocol.MsgTypeRollupCompleted,
		ID:          uuid.New().String(),
		Period:      string(period),
		WindowStart: window.Start,
		WindowEnd:   window.End,
		MetricTypes: names,
		Buckets:     buckets,
		Anomalies:   len(notes),
		CompletedAt: j.now().UTC(),
	}
	if err := j.publisher.PublishRollup(ctx, summary); err != nil {
		return nil, fmt.Errorf("rollup: publish summary: %w", err)
	}

	log.Info("rollup: completed", "metric_types", len(names), "buckets", buckets, "anomalies", len(notes))
	return summary, nil
}

// detect pivots the window into a metric table and scans it. A window the
// table cannot be built from is logged and yields no anomalies.
func (j *Job) detect(samples []model.MetricSample, log *slog.Logger) ([]*protocol.AnomalyNotification, error) {
	table, err := anomaly.FromMetricSamples(samples, nil)
	if err == nil {
		threshold := j.threshold()
		var records []model.AnomalyRecord
		records, err = anomaly.Detect(table, threshold)
		if err == nil {
			now := j.now()
			notes := make([]*protocol.AnomalyNotification, len(records))
			for i, rec := range records {
				notes[i] = protocol.NewAnomalyNotification(rec, table.Columns, threshold, protocol.SourceRollup, now)
			}
			return notes, nil
		}
	}
	if errors.Is(err, model.ErrDataProcessing) {
		log.Warn("rollup: skipping anomaly detection", "err", err)
		return nil, nil
	}
	return nil, fmt.Errorf("rollup: detect anomalies: %w", err)
}

func presentTypes(samples []model.MetricSample) []model.MetricType {
	present := make(map[model.MetricType]bool)
	for _, s := range samples {
		present[s.MetricType] = true
	}
	var out []model.MetricType
	for _, mt := range model.MetricTypes {
		if present[mt] {
			out = append(out, mt)
		}
	}
	return out
}

// Register schedules the hourly and daily rollups on s. Each run gets its
// own timeout derived from ctx.
func (j *Job) Register(ctx context.Context, s *scheduler.Scheduler, hourlyDelay time.Duration, dailyTime string, timeout time.Duration) error {
	if _, err := NextDailyRun(time.Now(), dailyTime); err != nil {
		return err
	}

	run := func(period model.Period) func() {
		return func() {
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if _, err := j.Run(runCtx, period); err != nil {
				j.logger.Error("rollup: run failed", "period", period, "err", err)
			}
		}
	}

	if err := s.ScheduleRecurring("hourly-rollup", func(now time.Time) time.Time {
		return NextHourlyRun(now, hourlyDelay)
	}, run(model.PeriodHourly)); err != nil {
		return err
	}

	return s.ScheduleRecurring("daily-rollup", func(now time.Time) time.Time {
		next, _ := NextDailyRun(now, dailyTime)
		return next
	}, run(model.PeriodDaily))
}
