package model

import (
	"time"
)

// LocationSample is one raw position fix for a vehicle
type LocationSample struct {
	VehicleID string    `json:"vehicle_id"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// DerivedSample holds the kinematics computed between a location sample and
// its predecessor on the same vehicle. Acceleration is nil for the first
// retained sample of each vehicle.
type DerivedSample struct {
	VehicleID    string    `json:"vehicle_id"`
	Timestamp    time.Time `json:"timestamp"`
	Speed        float64   `json:"speed"`    // km/h
	Distance     float64   `json:"distance"` // km
	Acceleration *float64  `json:"acceleration,omitempty"`
}

// MetricSample is a single measurement of one metric type for one vehicle
type MetricSample struct {
	MetricType MetricType `json:"metric_type"`
	Timestamp  time.Time  `json:"timestamp"`
	VehicleID  string     `json:"vehicle_id"`
	Value      float64    `json:"value"`
}

// BucketStatistics summarises one aggregation bucket across vehicles
type BucketStatistics struct {
	Mean         float64 `json:"mean"`
	Median       float64 `json:"median"`
	Std          float64 `json:"std"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	VehicleCount int     `json:"vehicle_count"`
}

// AggregationResult maps bucket start (UTC) to its statistics.
// Buckets without samples are absent.
type AggregationResult struct {
	AggregationPeriod Period                         `json:"aggregation_period"`
	MetricType        MetricType                     `json:"metric_type"`
	Statistics        map[time.Time]BucketStatistics `json:"statistics"`
}

// Buckets returns the bucket keys in ascending order
func (r AggregationResult) Buckets() []time.Time {
	keys := make([]time.Time, 0, len(r.Statistics))
	for k := range r.Statistics {
		keys = append(keys, k)
	}
	sortTimes(keys)
	return keys
}

// DeliveryRecord is one completed delivery
type DeliveryRecord struct {
	VehicleID       string    `json:"vehicle_id"`
	Timestamp       time.Time `json:"timestamp"`
	DeliveryTime    float64   `json:"delivery_time"`
	ActualTime      float64   `json:"actual_time"`
	PlannedTime     float64   `json:"planned_time"`
	Distance        float64   `json:"distance"`
	ActualDistance  float64   `json:"actual_distance"`
	PlannedDistance float64   `json:"planned_distance"`
	FuelConsumption float64   `json:"fuel_consumption"`
	RouteID         string    `json:"route_id"`
	StopCount       int       `json:"stop_count"`
}

// DeliveryStatistics summarises delivery timing
type DeliveryStatistics struct {
	AvgDeliveryTime  float64 `json:"avg_delivery_time"`
	StdDeliveryTime  float64 `json:"std_delivery_time"`
	OnTimePercentage float64 `json:"on_time_percentage"`
}

// RouteEfficiency summarises route usage
type RouteEfficiency struct {
	AvgDistancePerDelivery float64            `json:"avg_distance_per_delivery"`
	AvgStopsPerRoute       map[string]float64 `json:"avg_stops_per_route"`
	DistanceUtilizationPct float64            `json:"distance_utilization_pct"`
}

// EfficiencyScore is the result of scoring a delivery batch
type EfficiencyScore struct {
	DeliveryStatistics     DeliveryStatistics `json:"delivery_statistics"`
	RouteEfficiency        RouteEfficiency    `json:"route_efficiency"`
	OverallEfficiencyScore float64            `json:"overall_efficiency_score"`
	Recommendations        []string           `json:"recommendations"`
}

// AnomalyRecord flags one row of a metric table
type AnomalyRecord struct {
	OriginalSample  Row     `json:"original_sample"`
	ConfidenceScore float64 `json:"confidence_score"`
	AnomalyType     string  `json:"anomaly_type"`
}

// Row is one observation in a Table. Values are positional and line up with
// Table.Columns.
type Row struct {
	VehicleID string    `json:"vehicle_id"`
	Timestamp time.Time `json:"timestamp"`
	Values    []float64 `json:"values"`
}

// Table is a batch of rows sharing the same numeric columns
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Column returns a copy of the named column, or false when it is absent
func (t Table) Column(name string) ([]float64, bool) {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Values[idx]
	}
	return out, true
}

// TimeRange is a half-open [Start, End) window
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks that the range is non-empty
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return &ValidationError{Field: "time_range", Reason: "start and end are required"}
	}
	if !r.Start.Before(r.End) {
		return &ValidationError{Field: "time_range", Value: r.Start.Format(time.RFC3339), Reason: "start must precede end"}
	}
	return nil
}

// Contains reports whether t falls inside the range
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// DailyPerformance is one day of operational KPIs for a vehicle. Rates are
// fractions in [0, 1].
type DailyPerformance struct {
	Date                time.Time `json:"date"`
	VehicleID           string    `json:"vehicle_id"`
	Deliveries          int       `json:"deliveries"`
	Distance            float64   `json:"distance"`
	FuelConsumption     float64   `json:"fuel_consumption"`
	OnTimeDeliveryRate  float64   `json:"on_time_delivery_rate"`
	DeliveryDelay       float64   `json:"delivery_delay"`
	DeliverySuccessRate float64   `json:"delivery_success_rate"`
	VehicleUtilization  float64   `json:"vehicle_utilization"`
	DriverProductivity  float64   `json:"driver_productivity"`
	FuelEfficiency      float64   `json:"fuel_efficiency"`
}
