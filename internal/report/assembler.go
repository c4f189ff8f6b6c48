package report

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/fleet-analytics/internal/aggregation"
	"github.com/smukkama/fleet-analytics/internal/anomaly"
	"github.com/smukkama/fleet-analytics/internal/efficiency"
	"github.com/smukkama/fleet-analytics/internal/kinematics"
	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/workerpool"
)

// Options carries the engine settings applied to one report
type Options struct {
	Kinematics       kinematics.Options
	Period           model.Period
	AnomalyThreshold float64
	Efficiency       efficiency.Parameters
}

// DefaultOptions returns the stock engine settings
func DefaultOptions() Options {
	return Options{
		Kinematics:       kinematics.DefaultOptions(),
		Period:           model.PeriodDaily,
		AnomalyThreshold: anomaly.DefaultThreshold,
		Efficiency:       efficiency.DefaultParameters(),
	}
}

// Request is the input batch for one report. Sections whose input is empty
// are left out of the report.
type Request struct {
	TimeRange   model.TimeRange
	Locations   []model.LocationSample
	Metrics     []model.MetricSample
	MetricTypes []model.MetricType
	Deliveries  []model.DeliveryRecord
	Options     Options
}

// Report bundles every engine result computed for a request
type Report struct {
	ID           string                                       `json:"id"`
	GeneratedAt  time.Time                                    `json:"generated_at"`
	TimeRange    model.TimeRange                              `json:"time_range"`
	Derived      []model.DerivedSample                        `json:"derived,omitempty"`
	Aggregations map[model.MetricType]model.AggregationResult `json:"aggregations,omitempty"`
	Anomalies    []model.AnomalyRecord                        `json:"anomalies,omitempty"`
	Efficiency   *model.EfficiencyScore                       `json:"efficiency,omitempty"`
	Patterns     *efficiency.DeliveryPatterns                 `json:"delivery_patterns,omitempty"`
}

// Assembler runs the independent computations of a report on a worker pool
type Assembler struct {
	pool *workerpool.Pool
	now  func() time.Time
}

// NewAssembler creates an assembler that dispatches onto pool
func NewAssembler(pool *workerpool.Pool) *Assembler {
	return &Assembler{pool: pool, now: time.Now}
}

// Assemble computes every section the request has input for. Any failing
// computation fails the whole report.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Report, error) {
	if err := req.TimeRange.Validate(); err != nil {
		return nil, err
	}
	if len(req.Locations) == 0 && len(req.Metrics) == 0 && len(req.Deliveries) == 0 {
		return nil, &model.ValidationError{Field: "request", Reason: "no samples to report on"}
	}
	if req.Options.Period == "" {
		req.Options.Period = model.PeriodDaily
	}
	if req.Options.AnomalyThreshold == 0 {
		req.Options.AnomalyThreshold = anomaly.DefaultThreshold
	}

	metricTypes, err := resolveMetricTypes(req.Metrics, req.MetricTypes)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		ID:          uuid.New().String(),
		GeneratedAt: a.now().UTC(),
		TimeRange:   req.TimeRange,
	}
	aggregations := make([]model.AggregationResult, len(metricTypes))
	var tasks []workerpool.Task

	if len(req.Locations) > 0 {
		tasks = append(tasks, func(ctx context.Context) error {
			derived, err := kinematics.Derive(req.Locations, req.Options.Kinematics)
			rep.Derived = derived
			return err
		})
	}
	if len(req.Metrics) > 0 {
		for i, mt := range metricTypes {
			i, mt := i, mt
			tasks = append(tasks, func(ctx context.Context) error {
				res, err := aggregation.Aggregate(req.Metrics, mt, req.Options.Period)
				aggregations[i] = res
				return err
			})
		}
		tasks = append(tasks, func(ctx context.Context) error {
			return detectAnomalies(rep, req.Metrics, metricTypes, req.Options.AnomalyThreshold)
		})
	}
	if len(req.Deliveries) > 0 {
		tasks = append(tasks, func(ctx context.Context) error {
			score, err := efficiency.Score(req.Deliveries, req.Options.Efficiency)
			if err != nil {
				return err
			}
			rep.Efficiency = &score
			return nil
		}, func(ctx context.Context) error {
			patterns, err := efficiency.Patterns(req.Deliveries)
			if err != nil {
				return err
			}
			rep.Patterns = &patterns
			return nil
		})
	}

	if err := a.pool.Run(ctx, tasks...); err != nil {
		return nil, err
	}

	if len(req.Metrics) > 0 {
		rep.Aggregations = make(map[model.MetricType]model.AggregationResult, len(metricTypes))
		for i, mt := range metricTypes {
			rep.Aggregations[mt] = aggregations[i]
		}
	}
	return rep, nil
}

// resolveMetricTypes validates the requested types, defaulting to every
// type present in samples.
func resolveMetricTypes(samples []model.MetricSample, requested []model.MetricType) ([]model.MetricType, error) {
	if len(requested) > 0 {
		for _, m := range requested {
			if _, err := model.ParseMetricType(string(m)); err != nil {
				return nil, err
			}
		}
		return requested, nil
	}
	present := make(map[model.MetricType]bool)
	for _, s := range samples {
		present[s.MetricType] = true
	}
	var out []model.MetricType
	for _, m := range model.MetricTypes {
		if present[m] {
			out = append(out, m)
		}
	}
	return out, nil
}

// detectAnomalies leaves rep.Anomalies empty when the metrics cannot be
// joined into one table, for example when metric types were sampled at
// different instants. Threshold errors still fail the report.
func detectAnomalies(rep *Report, metrics []model.MetricSample, metricTypes []model.MetricType, threshold float64) error {
	table, err := anomaly.FromMetricSamples(metrics, metricTypes)
	if err == nil {
		rep.Anomalies, err = anomaly.Detect(table, threshold)
	}
	if errors.Is(err, model.ErrDataProcessing) {
		slog.Warn("report: skipping anomaly detection", "report_id", rep.ID, "err", err)
		rep.Anomalies = nil
		return nil
	}
	return err
}
