package report

import (
	"sort"
	"time"

	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/stats"
)

const (
	// RecommendOperational is emitted when operational efficiency is below 0.85
	RecommendOperational = "Focus on improving overall operational efficiency through better resource allocation"
	// RecommendOnTime is emitted when the on-time rate is below 0.95
	RecommendOnTime = "Enhance delivery planning and route optimization to improve on-time performance"

	operationalTarget = 0.85
	onTimeTarget      = 0.95
)

// DeliveryPerformance groups the delivery KPIs
type DeliveryPerformance struct {
	OnTimeRate          float64 `json:"on_time_rate"`
	AvgDelay            float64 `json:"avg_delay"`
	DeliverySuccessRate float64 `json:"delivery_success_rate"`
}

// ResourceUtilization groups the resource KPIs
type ResourceUtilization struct {
	VehicleUtilization float64 `json:"vehicle_utilization"`
	DriverProductivity float64 `json:"driver_productivity"`
	FuelEfficiency     float64 `json:"fuel_efficiency"`
}

// KPIs are the headline indicators of a performance report
type KPIs struct {
	OperationalEfficiency float64             `json:"operational_efficiency"`
	DeliveryPerformance   DeliveryPerformance `json:"delivery_performance"`
	ResourceUtilization   ResourceUtilization `json:"resource_utilization"`
}

// DailyMetrics are the per-date totals of a performance report
type DailyMetrics struct {
	Deliveries         int     `json:"deliveries"`
	Distance           float64 `json:"distance"`
	FuelConsumption    float64 `json:"fuel_consumption"`
	OnTimeDeliveryRate float64 `json:"on_time_delivery_rate"`
}

// Trends are regressions of report rows against their position in time order
type Trends struct {
	Delivery   stats.Trend `json:"delivery_trend"`
	Efficiency stats.Trend `json:"efficiency_trend"`
}

// Summary is the body of a performance report
type Summary struct {
	DailyMetrics          map[time.Time]DailyMetrics `json:"daily_metrics"`
	TrendAnalysis         Trends                     `json:"trend_analysis"`
	PerformanceIndicators KPIs                       `json:"performance_indicators"`
}

// PerformanceReport is the output of GeneratePerformanceReport
type PerformanceReport struct {
	ReportType      model.ReportType `json:"report_type"`
	GeneratedAt     time.Time        `json:"generated_at"`
	DataPoints      int              `json:"data_points_processed"`
	Summary         Summary          `json:"summary"`
	Recommendations []string         `json:"recommendations"`
}

// GeneratePerformanceReport computes KPIs, daily totals and trends from
// daily performance rows. At least two rows are needed for the trends.
func GeneratePerformanceReport(rows []model.DailyPerformance, reportType model.ReportType, now time.Time) (PerformanceReport, error) {
	if _, err := model.ParseReportType(string(reportType)); err != nil {
		return PerformanceReport{}, err
	}
	if len(rows) < 2 {
		return PerformanceReport{}, &model.ValidationError{Field: "rows", Reason: "at least two daily performance rows are required"}
	}
	for _, r := range rows {
		if err := validateRow(r); err != nil {
			return PerformanceReport{}, err
		}
	}

	ordered := append([]model.DailyPerformance(nil), rows...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	n := len(ordered)
	var (
		index      = make([]float64, n)
		deliveries = make([]float64, n)
		onTime     = make([]float64, n)
		delay      = make([]float64, n)
		success    = make([]float64, n)
		util       = make([]float64, n)
		driver     = make([]float64, n)
		fuelEff    = make([]float64, n)
	)
	type dayAcc struct {
		metrics DailyMetrics
		onTime  []float64
	}
	days := make(map[time.Time]*dayAcc)

	for i, r := range ordered {
		index[i] = float64(i)
		deliveries[i] = float64(r.Deliveries)
		onTime[i] = r.OnTimeDeliveryRate
		delay[i] = r.DeliveryDelay
		success[i] = r.DeliverySuccessRate
		util[i] = r.VehicleUtilization
		driver[i] = r.DriverProductivity
		fuelEff[i] = r.FuelEfficiency

		day := model.PeriodDaily.Floor(r.Date)
		acc, ok := days[day]
		if !ok {
			acc = &dayAcc{}
			days[day] = acc
		}
		acc.metrics.Deliveries += r.Deliveries
		acc.metrics.Distance += r.Distance
		acc.metrics.FuelConsumption += r.FuelConsumption
		acc.onTime = append(acc.onTime, r.OnTimeDeliveryRate)
	}

	kpis := KPIs{
		DeliveryPerformance: DeliveryPerformance{
			OnTimeRate:          stats.Mean(onTime),
			AvgDelay:            stats.Mean(delay),
			DeliverySuccessRate: stats.Mean(success),
		},
		ResourceUtilization: ResourceUtilization{
			VehicleUtilization: stats.Mean(util),
			DriverProductivity: stats.Mean(driver),
			FuelEfficiency:     stats.Mean(fuelEff),
		},
	}
	kpis.OperationalEfficiency = stats.Mean([]float64{
		kpis.DeliveryPerformance.OnTimeRate,
		kpis.ResourceUtilization.FuelEfficiency,
		kpis.ResourceUtilization.VehicleUtilization,
	})

	deliveryTrend, err := stats.LinearTrend(index, deliveries)
	if err != nil {
		return PerformanceReport{}, &model.DataProcessingError{Op: "delivery trend", Err: err}
	}
	efficiencyTrend, err := stats.LinearTrend(index, fuelEff)
	if err != nil {
		return PerformanceReport{}, &model.DataProcessingError{Op: "efficiency trend", Err: err}
	}

	daily := make(map[time.Time]DailyMetrics, len(days))
	for day, acc := range days {
		acc.metrics.OnTimeDeliveryRate = stats.Mean(acc.onTime)
		daily[day] = acc.metrics
	}

	return PerformanceReport{
		ReportType:  reportType,
		GeneratedAt: now.UTC(),
		DataPoints:  n,
		Summary: Summary{
			DailyMetrics:          daily,
			TrendAnalysis:         Trends{Delivery: deliveryTrend, Efficiency: efficiencyTrend},
			PerformanceIndicators: kpis,
		},
		Recommendations: performanceRecommendations(kpis),
	}, nil
}

func performanceRecommendations(k KPIs) []string {
	out := []string{}
	if k.OperationalEfficiency < operationalTarget {
		out = append(out, RecommendOperational)
	}
	if k.DeliveryPerformance.OnTimeRate < onTimeTarget {
		out = append(out, RecommendOnTime)
	}
	return out
}

func validateRow(r model.DailyPerformance) error {
	if r.Date.IsZero() {
		return &model.ValidationError{Field: "date", Value: r.VehicleID, Reason: "is required"}
	}
	if r.Deliveries < 0 {
		return &model.ValidationError{Field: "deliveries", Value: r.VehicleID, Reason: "must not be negative"}
	}
	if !stats.AllFinite(r.Distance, r.FuelConsumption, r.OnTimeDeliveryRate, r.DeliveryDelay,
		r.DeliverySuccessRate, r.VehicleUtilization, r.DriverProductivity, r.FuelEfficiency) {
		return &model.ValidationError{Field: "daily_performance", Value: r.VehicleID, Reason: "numeric fields must be finite"}
	}
	return nil
}
