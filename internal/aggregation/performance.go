package aggregation

import (
	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/stats"
)

// PerformanceSummary is the fleet-wide view of one metric over a window
type PerformanceSummary struct {
	Average           float64 `json:"average"`
	Maximum           float64 `json:"maximum"`
	Minimum           float64 `json:"minimum"`
	StandardDeviation float64 `json:"standard_deviation"`
	SampleSize        int     `json:"sample_size"`
}

// FleetPerformance summarises every sample of each requested metric type,
// ignoring vehicles and buckets. Average and standard deviation (population)
// are rounded to two decimals. Metric types without samples are omitted.
func FleetPerformance(samples []model.MetricSample, metricTypes []model.MetricType) (map[model.MetricType]PerformanceSummary, error) {
	if len(metricTypes) == 0 {
		metricTypes = model.MetricTypes
	}
	wanted := make(map[model.MetricType]bool, len(metricTypes))
	for _, m := range metricTypes {
		mt, err := model.ParseMetricType(string(m))
		if err != nil {
			return nil, err
		}
		wanted[mt] = true
	}

	values := make(map[model.MetricType][]float64)
	for _, s := range samples {
		if !wanted[s.MetricType] {
			continue
		}
		if err := validateSample(s); err != nil {
			return nil, err
		}
		values[s.MetricType] = append(values[s.MetricType], s.Value)
	}

	out := make(map[model.MetricType]PerformanceSummary, len(values))
	for mt, v := range values {
		s := stats.Summarize(v)
		if !stats.AllFinite(s.Mean, s.Std) {
			return nil, &model.DataProcessingError{Op: "fleet performance", Column: string(mt), Err: errNonFinite}
		}
		out[mt] = PerformanceSummary{
			Average:           stats.Round2(s.Mean),
			Maximum:           s.Max,
			Minimum:           s.Min,
			StandardDeviation: stats.Round2(s.Std),
			SampleSize:        s.Count,
		}
	}
	return out, nil
}
