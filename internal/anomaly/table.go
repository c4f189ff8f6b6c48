package anomaly

import (
	"sort"
	"time"

	"github.com/smukkama/fleet-analytics/internal/model"
)

type rowKey struct {
	vehicle string
	at      time.Time
}

// FromMetricSamples pivots samples into one row per (vehicle, timestamp)
// with one column per metric type. When metricTypes is empty every metric
// type present in samples is used, in model.MetricTypes order.
//
// Rows missing any of the columns are skipped. A requested metric type with
// no samples at all is an error.
func FromMetricSamples(samples []model.MetricSample, metricTypes []model.MetricType) (model.Table, error) {
	if len(samples) == 0 {
		return model.Table{}, &model.ValidationError{Field: "samples", Reason: "batch is empty"}
	}

	present := make(map[model.MetricType]bool)
	for _, s := range samples {
		present[s.MetricType] = true
	}
	if len(metricTypes) == 0 {
		for _, m := range model.MetricTypes {
			if present[m] {
				metricTypes = append(metricTypes, m)
			}
		}
	}

	columns := make([]string, len(metricTypes))
	colIdx := make(map[model.MetricType]int, len(metricTypes))
	for i, m := range metricTypes {
		if _, err := model.ParseMetricType(string(m)); err != nil {
			return model.Table{}, err
		}
		if !present[m] {
			return model.Table{}, &model.DataProcessingError{Op: opDetect, Column: string(m), Err: errNoMetrics}
		}
		columns[i] = string(m)
		colIdx[m] = i
	}

	cells := make(map[rowKey][]*float64)
	var keys []rowKey
	for _, s := range samples {
		c, ok := colIdx[s.MetricType]
		if !ok {
			continue
		}
		k := rowKey{vehicle: s.VehicleID, at: s.Timestamp.UTC()}
		row, ok := cells[k]
		if !ok {
			row = make([]*float64, len(columns))
			cells[k] = row
			keys = append(keys, k)
		}
		v := s.Value
		row[c] = &v
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if !keys[i].at.Equal(keys[j].at) {
			return keys[i].at.Before(keys[j].at)
		}
		return keys[i].vehicle < keys[j].vehicle
	})

	table := model.Table{Columns: columns}
	for _, k := range keys {
		values := make([]float64, len(columns))
		complete := true
		for i, v := range cells[k] {
			if v == nil {
				complete = false
				break
			}
			values[i] = *v
		}
		if complete {
			table.Rows = append(table.Rows, model.Row{VehicleID: k.vehicle, Timestamp: k.at, Values: values})
		}
	}
	if len(table.Rows) == 0 {
		return model.Table{}, &model.DataProcessingError{Op: opDetect, Err: errNoComplete}
	}
	return table, nil
}

// FromDerived builds a speed/distance table from kinematics output
func FromDerived(derived []model.DerivedSample) model.Table {
	table := model.Table{Columns: []string{"speed", "distance"}, Rows: make([]model.Row, len(derived))}
	for i, d := range derived {
		table.Rows[i] = model.Row{
			VehicleID: d.VehicleID,
			Timestamp: d.Timestamp,
			Values:    []float64{d.Speed, d.Distance},
		}
	}
	return table
}
