// Package efficiency scores delivery batches against on-time and route
// utilization targets.
package efficiency

import (
	"math"

	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/stats"
)

const (
	// RecommendOnTime is emitted when the on-time share misses its target
	RecommendOnTime = "Improve on-time delivery performance through better route optimization"
	// RecommendUtilization is emitted when distance utilization misses its target
	RecommendUtilization = "Optimize route planning to reduce excess distance traveled"
)

// Parameters are the targets a batch is scored against, in percent
type Parameters struct {
	TargetOnTime      float64 `json:"target_on_time" yaml:"target_on_time"`
	TargetUtilization float64 `json:"target_utilization" yaml:"target_utilization"`
}

// DefaultParameters returns the stock targets
func DefaultParameters() Parameters {
	return Parameters{TargetOnTime: 95, TargetUtilization: 90}
}

// Validate rejects negative or non-finite targets
func (p Parameters) Validate() error {
	if p.TargetOnTime < 0 || !stats.AllFinite(p.TargetOnTime) {
		return &model.ValidationError{Field: "target_on_time", Reason: "must be a non-negative finite percentage"}
	}
	if p.TargetUtilization < 0 || !stats.AllFinite(p.TargetUtilization) {
		return &model.ValidationError{Field: "target_utilization", Reason: "must be a non-negative finite percentage"}
	}
	return nil
}

// Score computes delivery statistics, route efficiency and an overall score
// in [0, 100] for a batch of deliveries.
//
// The overall score is the mean of the on-time share, the distance
// utilization share and one minus the mean absolute z-score of the
// delivery_time, distance and fuel_consumption columns.
func Score(deliveries []model.DeliveryRecord, params Parameters) (model.EfficiencyScore, error) {
	if err := params.Validate(); err != nil {
		return model.EfficiencyScore{}, err
	}
	if len(deliveries) == 0 {
		return model.EfficiencyScore{}, &model.ValidationError{Field: "deliveries", Reason: "batch is empty"}
	}

	n := len(deliveries)
	deliveryTime := make([]float64, n)
	distance := make([]float64, n)
	fuel := make([]float64, n)
	utilization := make([]float64, n)
	onTime := 0
	stops := make(map[string][]float64)

	for i, d := range deliveries {
		if err := validateDelivery(d); err != nil {
			return model.EfficiencyScore{}, err
		}
		deliveryTime[i] = d.DeliveryTime
		distance[i] = d.Distance
		fuel[i] = d.FuelConsumption
		utilization[i] = d.ActualDistance / d.PlannedDistance
		if d.ActualTime <= d.PlannedTime {
			onTime++
		}
		stops[d.RouteID] = append(stops[d.RouteID], float64(d.StopCount))
	}

	avgTime, stdTime := stats.PopMeanStd(deliveryTime)
	onTimePct := float64(onTime) / float64(n) * 100
	utilPct := stats.Mean(utilization) * 100

	avgStops := make(map[string]float64, len(stops))
	for route, s := range stops {
		avgStops[route] = stats.Mean(s)
	}

	var absZ []float64
	for _, col := range [][]float64{deliveryTime, distance, fuel} {
		for _, z := range stats.ZScores(col) {
			absZ = append(absZ, math.Abs(z))
		}
	}
	raw := 100 * stats.Mean([]float64{onTimePct / 100, utilPct / 100, 1 - stats.Mean(absZ)})

	recommendations := []string{}
	if onTimePct < params.TargetOnTime {
		recommendations = append(recommendations, RecommendOnTime)
	}
	if utilPct < params.TargetUtilization {
		recommendations = append(recommendations, RecommendUtilization)
	}

	return model.EfficiencyScore{
		DeliveryStatistics: model.DeliveryStatistics{
			AvgDeliveryTime:  avgTime,
			StdDeliveryTime:  stdTime,
			OnTimePercentage: onTimePct,
		},
		RouteEfficiency: model.RouteEfficiency{
			AvgDistancePerDelivery: stats.Mean(distance),
			AvgStopsPerRoute:       avgStops,
			DistanceUtilizationPct: utilPct,
		},
		OverallEfficiencyScore: stats.Round2(stats.Clamp(raw, 0, 100)),
		Recommendations:        recommendations,
	}, nil
}

func validateDelivery(d model.DeliveryRecord) error {
	if !stats.AllFinite(d.DeliveryTime, d.ActualTime, d.PlannedTime, d.Distance, d.ActualDistance, d.PlannedDistance, d.FuelConsumption) {
		return &model.ValidationError{Field: "delivery", Value: d.VehicleID, Reason: "numeric fields must be finite"}
	}
	if d.PlannedDistance <= 0 {
		return &model.ValidationError{Field: "planned_distance", Value: d.VehicleID, Reason: "must be positive"}
	}
	if d.StopCount < 0 {
		return &model.ValidationError{Field: "stop_count", Value: d.VehicleID, Reason: "must not be negative"}
	}
	return nil
}
