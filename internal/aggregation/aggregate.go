// Package aggregation summarises metric samples over vehicles and time
// buckets.
package aggregation

import (
	"errors"
	"sort"
	"time"

	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/stats"
)

var errNonFinite = errors.New("statistics overflowed the float range")

// Aggregate groups samples of metricType by (bucket, vehicle) and rolls the
// per-vehicle summaries up to one BucketStatistics per bucket.
//
// Within a bucket each vehicle first gets its own mean, median, population
// std, min and max. The bucket then reports the mean of the vehicle means,
// medians and stds, the smallest vehicle min, the largest vehicle max and
// the number of contributing vehicles. A vehicle with many samples
// therefore weighs the same as one with few.
//
// Samples of other metric types are ignored. Buckets are keyed by their UTC
// start and buckets without samples are absent. A bucket whose statistics
// leave the float range fails the call with a DataProcessingError.
func Aggregate(samples []model.MetricSample, metricType model.MetricType, period model.Period) (model.AggregationResult, error) {
	mt, err := model.ParseMetricType(string(metricType))
	if err != nil {
		return model.AggregationResult{}, err
	}
	p, err := model.ParsePeriod(string(period))
	if err != nil {
		return model.AggregationResult{}, err
	}
	if len(samples) == 0 {
		return model.AggregationResult{}, &model.ValidationError{Field: "samples", Reason: "batch is empty"}
	}

	grouped := make(map[time.Time]map[string][]float64)
	for _, s := range samples {
		if s.MetricType != mt {
			continue
		}
		if err := validateSample(s); err != nil {
			return model.AggregationResult{}, err
		}
		bucket := p.Floor(s.Timestamp)
		vehicles, ok := grouped[bucket]
		if !ok {
			vehicles = make(map[string][]float64)
			grouped[bucket] = vehicles
		}
		vehicles[s.VehicleID] = append(vehicles[s.VehicleID], s.Value)
	}

	result := model.AggregationResult{
		AggregationPeriod: p,
		MetricType:        mt,
		Statistics:        make(map[time.Time]model.BucketStatistics, len(grouped)),
	}
	for bucket, vehicles := range grouped {
		st := rollUp(vehicles)
		if !stats.AllFinite(st.Mean, st.Median, st.Std, st.Min, st.Max) {
			return model.AggregationResult{}, &model.DataProcessingError{
				Op:     "aggregate " + bucket.Format(time.RFC3339),
				Column: string(mt),
				Err:    errNonFinite,
			}
		}
		result.Statistics[bucket] = st
	}
	return result, nil
}

// rollUp visits vehicles in sorted order so repeated runs sum in the same
// order and produce identical floats.
func rollUp(vehicles map[string][]float64) model.BucketStatistics {
	ids := make([]string, 0, len(vehicles))
	for id := range vehicles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	means := make([]float64, 0, len(ids))
	medians := make([]float64, 0, len(ids))
	stds := make([]float64, 0, len(ids))
	var out model.BucketStatistics
	for i, id := range ids {
		s := stats.Summarize(vehicles[id])
		means = append(means, s.Mean)
		medians = append(medians, s.Median)
		stds = append(stds, s.Std)
		if i == 0 || s.Min < out.Min {
			out.Min = s.Min
		}
		if i == 0 || s.Max > out.Max {
			out.Max = s.Max
		}
	}
	out.Mean = stats.Mean(means)
	out.Median = stats.Mean(medians)
	out.Std = stats.Mean(stds)
	out.VehicleCount = len(ids)
	return out
}

func validateSample(s model.MetricSample) error {
	if s.VehicleID == "" {
		return &model.ValidationError{Field: "vehicle_id", Reason: "sample has no vehicle"}
	}
	if s.Timestamp.IsZero() {
		return &model.ValidationError{Field: "timestamp", Value: s.VehicleID, Reason: "sample has no timestamp"}
	}
	if !stats.AllFinite(s.Value) {
		return &model.ValidationError{Field: "value", Value: s.VehicleID, Reason: "sample value is not finite"}
	}
	return nil
}
