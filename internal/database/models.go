package database

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/smukkama/fleet-analytics/internal/model"
)

// SampleQuery selects samples by time window and, optionally, by vehicle
// and metric type. An empty list means no filter on that column.
type SampleQuery struct {
	Range       model.TimeRange
	VehicleIDs  []string
	MetricTypes []model.MetricType
}

// Validate checks the window
func (q SampleQuery) Validate() error {
	return q.Range.Validate()
}

// where renders the WHERE clause for q against the given time column and
// returns its positional arguments. Metric filtering is applied only when
// withMetric is set.
func (q SampleQuery) where(timeColumn string, withMetric bool) (string, []interface{}) {
	clauses := []string{
		fmt.Sprintf("%s >= $1", timeColumn),
		fmt.Sprintf("%s < $2", timeColumn),
	}
	args := []interface{}{q.Range.Start.UTC(), q.Range.End.UTC()}

	if len(q.VehicleIDs) > 0 {
		args = append(args, pq.Array(q.VehicleIDs))
		clauses = append(clauses, fmt.Sprintf("vehicle_id = ANY($%d)", len(args)))
	}
	if withMetric && len(q.MetricTypes) > 0 {
		types := make([]string, len(q.MetricTypes))
		for i, m := range q.MetricTypes {
			types[i] = string(m)
		}
		args = append(args, pq.Array(types))
		clauses = append(clauses, fmt.Sprintf("metric_type = ANY($%d)", len(args)))
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
