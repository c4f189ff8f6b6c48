package model

import (
	"sort"
	"strings"
	"time"
)

// MetricType identifies a fleet metric
type MetricType string

const (
	MetricSpeed        MetricType = "vehicle_speed"
	MetricDistance     MetricType = "distance_covered"
	MetricFuel         MetricType = "fuel_consumption"
	MetricIdleTime     MetricType = "idle_time"
	MetricDeliveryTime MetricType = "delivery_time"
)

// MetricTypes lists every recognised metric type in a stable order
var MetricTypes = []MetricType{MetricSpeed, MetricDistance, MetricFuel, MetricIdleTime, MetricDeliveryTime}

// ParseMetricType validates s against the closed set of metric types
func ParseMetricType(s string) (MetricType, error) {
	for _, m := range MetricTypes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", &ValidationError{Field: "metric_type", Value: s, Reason: "must be one of " + joinMetricTypes()}
}

func joinMetricTypes() string {
	names := make([]string, len(MetricTypes))
	for i, m := range MetricTypes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// Period is an aggregation bucket width
type Period string

const (
	PeriodHourly  Period = "HOURLY"
	PeriodDaily   Period = "DAILY"
	PeriodWeekly  Period = "WEEKLY"
	PeriodMonthly Period = "MONTHLY"
)

// Periods lists every recognised aggregation period
var Periods = []Period{PeriodHourly, PeriodDaily, PeriodWeekly, PeriodMonthly}

// ParsePeriod validates s against the closed set of periods. Matching is
// case-insensitive.
func ParsePeriod(s string) (Period, error) {
	for _, p := range Periods {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", &ValidationError{Field: "aggregation_period", Value: s, Reason: "must be one of HOURLY, DAILY, WEEKLY, MONTHLY"}
}

// Floor returns the start of the bucket containing t, in UTC.
// Weeks start on Monday.
func (p Period) Floor(t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case PeriodHourly:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case PeriodDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodWeekly:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// Next returns the start of the bucket following the one starting at start
func (p Period) Next(start time.Time) time.Time {
	switch p {
	case PeriodHourly:
		return start.Add(time.Hour)
	case PeriodDaily:
		return start.AddDate(0, 0, 1)
	case PeriodWeekly:
		return start.AddDate(0, 0, 7)
	case PeriodMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

// ReportType selects the flavour of performance report
type ReportType string

const (
	ReportFleetPerformance    ReportType = "fleet_performance"
	ReportDeliveryEfficiency  ReportType = "delivery_efficiency"
	ReportResourceUtilization ReportType = "resource_utilization"
)

// ParseReportType validates s against the closed set of report types
func ParseReportType(s string) (ReportType, error) {
	switch ReportType(s) {
	case ReportFleetPerformance, ReportDeliveryEfficiency, ReportResourceUtilization:
		return ReportType(s), nil
	}
	return "", &ValidationError{Field: "report_type", Value: s, Reason: "must be one of fleet_performance, delivery_efficiency, resource_utilization"}
}

func sortTimes(ts []time.Time) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
}
