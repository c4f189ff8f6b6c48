package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/smukkama/fleet-analytics/internal/model"
)

// parseWindow reads the required start and end query parameters
func parseWindow(r *http.Request) (model.TimeRange, error) {
	q := r.URL.Query()
	start, err := parseTime("start", q.Get("start"))
	if err != nil {
		return model.TimeRange{}, err
	}
	end, err := parseTime("end", q.Get("end"))
	if err != nil {
		return model.TimeRange{}, err
	}
	window := model.TimeRange{Start: start, End: end}
	if err := window.Validate(); err != nil {
		return model.TimeRange{}, err
	}
	return window, nil
}

func parseTime(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, &model.ValidationError{Field: field, Reason: "required RFC 3339 timestamp"}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &model.ValidationError{Field: field, Value: raw, Reason: "must be an RFC 3339 timestamp"}
	}
	return t.UTC(), nil
}

// parseFloat returns def when the parameter is absent
func parseFloat(r *http.Request, field string, def float64) (float64, error) {
	raw := r.URL.Query().Get(field)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &model.ValidationError{Field: field, Value: raw, Reason: "must be a finite number"}
	}
	return v, nil
}

// parseBool returns def when the parameter is absent
func parseBool(r *http.Request, field string, def bool) (bool, error) {
	raw := r.URL.Query().Get(field)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &model.ValidationError{Field: field, Value: raw, Reason: "must be true or false"}
	}
	return v, nil
}

func parseMetricTypes(r *http.Request) ([]model.MetricType, error) {
	var out []model.MetricType
	for _, raw := range r.URL.Query()["metric_type"] {
		mt, err := model.ParseMetricType(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, nil
}
