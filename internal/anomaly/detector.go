// Package anomaly flags table rows whose values sit far from their column's
// distribution.
package anomaly

import (
	"errors"
	"math"
	"strings"

	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/stats"
)

// DefaultThreshold is the z-score at which a value is flagged
const DefaultThreshold = 3.0

const opDetect = "detect anomalies"

var (
	errRaggedRow  = errors.New("row has no value for column")
	errNotFinite  = errors.New("value is not finite")
	errNoColumn   = errors.New("column not present in table")
	errNoColumns  = errors.New("table has no columns")
	errNoMetrics  = errors.New("no samples for metric")
	errNoComplete = errors.New("no row has a value for every column")
)

// Detect scores every column of table independently against the whole
// column and returns one record per row where at least one column reaches
// threshold in absolute z-score.
//
// ConfidenceScore is the largest absolute z-score in the row. AnomalyType
// lists the flagged columns in column order, comma separated. Rows with no
// flagged column are left out. A constant column contributes z-score 0 for
// every row.
func Detect(table model.Table, threshold float64) ([]model.AnomalyRecord, error) {
	if threshold <= 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, &model.ValidationError{Field: "anomaly_threshold", Reason: "must be a positive finite number"}
	}
	if len(table.Rows) == 0 {
		return nil, &model.ValidationError{Field: "table", Reason: "no rows to scan"}
	}
	if len(table.Columns) == 0 {
		return nil, &model.DataProcessingError{Op: opDetect, Err: errNoColumns}
	}
	for _, r := range table.Rows {
		if len(r.Values) < len(table.Columns) {
			return nil, &model.DataProcessingError{Op: opDetect, VehicleID: r.VehicleID, Column: table.Columns[len(r.Values)], Err: errRaggedRow}
		}
	}

	scores := make([][]float64, len(table.Columns))
	for c, name := range table.Columns {
		col, _ := table.Column(name)
		if !stats.AllFinite(col...) {
			return nil, &model.DataProcessingError{Op: opDetect, Column: name, Err: errNotFinite}
		}
		scores[c] = stats.ZScores(col)
	}

	var out []model.AnomalyRecord
	var flagged []string
	for i, r := range table.Rows {
		flagged = flagged[:0]
		confidence := 0.0
		for c, name := range table.Columns {
			z := math.Abs(scores[c][i])
			if z > confidence {
				confidence = z
			}
			if stats.AtLeast(z, threshold) {
				flagged = append(flagged, name)
			}
		}
		if len(flagged) == 0 {
			continue
		}
		out = append(out, model.AnomalyRecord{
			OriginalSample:  copyRow(r),
			ConfidenceScore: confidence,
			AnomalyType:     strings.Join(flagged, ","),
		})
	}
	return out, nil
}

// Select narrows table to the named columns, in the order given
func Select(table model.Table, columns ...string) (model.Table, error) {
	idx := make([]int, len(columns))
	for i, name := range columns {
		idx[i] = -1
		for j, c := range table.Columns {
			if c == name {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return model.Table{}, &model.DataProcessingError{Op: opDetect, Column: name, Err: errNoColumn}
		}
	}

	out := model.Table{Columns: append([]string(nil), columns...), Rows: make([]model.Row, len(table.Rows))}
	for i, r := range table.Rows {
		values := make([]float64, len(idx))
		for k, j := range idx {
			if j >= len(r.Values) {
				return model.Table{}, &model.DataProcessingError{Op: opDetect, VehicleID: r.VehicleID, Column: columns[k], Err: errRaggedRow}
			}
			values[k] = r.Values[j]
		}
		out.Rows[i] = model.Row{VehicleID: r.VehicleID, Timestamp: r.Timestamp, Values: values}
	}
	return out, nil
}

func copyRow(r model.Row) model.Row {
	r.Values = append([]float64(nil), r.Values...)
	return r
}
