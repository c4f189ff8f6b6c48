package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/smukkama/fleet-analytics/internal/aggregation"
	"github.com/smukkama/fleet-analytics/internal/anomaly"
	"github.com/smukkama/fleet-analytics/internal/cache"
	"github.com/smukkama/fleet-analytics/internal/database"
	"github.com/smukkama/fleet-analytics/internal/efficiency"
	"github.com/smukkama/fleet-analytics/internal/kinematics"
	"github.com/smukkama/fleet-analytics/internal/metrics"
	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/protocol"
	"github.com/smukkama/fleet-analytics/internal/report"
)

// FleetResponse is the body of GET /fleet
type FleetResponse struct {
	Aggregation model.AggregationResult        `json:"aggregation"`
	Performance aggregation.PerformanceSummary `json:"performance"`
}

// VehicleResponse is the body of GET /vehicle/{vehicle_id}
type VehicleResponse struct {
	Derived []model.DerivedSample `json:"derived"`
	Profile report.VehicleProfile `json:"profile"`
}

// DeliveryResponse is the body of GET /delivery
type DeliveryResponse struct {
	Efficiency model.EfficiencyScore       `json:"efficiency"`
	Patterns   efficiency.DeliveryPatterns `json:"patterns"`
}

// AnomalyResponse is the body of GET /anomalies
type AnomalyResponse struct {
	Columns   []string              `json:"columns"`
	Threshold float64               `json:"threshold"`
	Anomalies []model.AnomalyRecord `json:"anomalies"`
}

// ReportRequest is the body of POST /report
type ReportRequest struct {
	ReportType string    `json:"report_type"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	VehicleIDs []string  `json:"vehicle_ids,omitempty"`
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window, err := parseWindow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	mt, err := model.ParseMetricType(r.URL.Query().Get("metric_type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	period := s.options.Load().Period
	if raw := r.URL.Query().Get("period"); raw != "" {
		if period, err = model.ParsePeriod(raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	key, err := cache.Key("fleet", struct {
		Window model.TimeRange
		Metric model.MetricType
		Period model.Period
	}{window, mt, period})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var resp FleetResponse
	if s.cached(ctx, key, &resp) {
		s.writeJSON(w, r, http.StatusOK, resp)
		return
	}

	samples, err := s.store.MetricSamples(ctx, database.SampleQuery{Range: window, MetricTypes: []model.MetricType{mt}})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	resp.Aggregation, err = aggregation.Aggregate(samples, mt, period)
	metrics.ObserveComputation("aggregate", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	perf, err := aggregation.FleetPerformance(samples, []model.MetricType{mt})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp.Performance = perf[mt]

	s.remember(ctx, key, resp)
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID := mux.Vars(r)["vehicle_id"]

	window, err := parseWindow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts := s.options.Load().Kinematics
	if opts.RemoveOutliers, err = parseBool(r, "remove_outliers", opts.RemoveOutliers); err != nil {
		s.writeError(w, r, err)
		return
	}

	key, err := cache.Key("vehicle", struct {
		Window         model.TimeRange
		VehicleID      string
		RemoveOutliers bool
		Threshold      float64
	}{window, vehicleID, opts.RemoveOutliers, opts.OutlierZThreshold})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var resp VehicleResponse
	if s.cached(ctx, key, &resp) {
		s.writeJSON(w, r, http.StatusOK, resp)
		return
	}

	samples, err := s.store.LocationSamples(ctx, database.SampleQuery{Range: window, VehicleIDs: []string{vehicleID}})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	resp.Derived, err = kinematics.Derive(samples, opts)
	metrics.ObserveComputation("derive", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(resp.Derived) == 0 {
		resp.Derived = []model.DerivedSample{}
		resp.Profile = report.EmptyVehicleProfile(vehicleID)
	} else if resp.Profile, err = report.BuildVehicleProfile(vehicleID, resp.Derived); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.remember(ctx, key, resp)
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window, err := parseWindow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	params := s.options.Load().Efficiency
	if params.TargetOnTime, err = parseFloat(r, "target_on_time", params.TargetOnTime); err != nil {
		s.writeError(w, r, err)
		return
	}
	if params.TargetUtilization, err = parseFloat(r, "target_utilization", params.TargetUtilization); err != nil {
		s.writeError(w, r, err)
		return
	}

	key, err := cache.Key("delivery", struct {
		Window model.TimeRange
		Params efficiency.Parameters
	}{window, params})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var resp DeliveryResponse
	if s.cached(ctx, key, &resp) {
		s.writeJSON(w, r, http.StatusOK, resp)
		return
	}

	deliveries, err := s.store.Deliveries(ctx, database.SampleQuery{Range: window})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	resp.Efficiency, err = efficiency.Score(deliveries, params)
	metrics.ObserveComputation("score", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if resp.Patterns, err = efficiency.Patterns(deliveries); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.remember(ctx, key, resp)
	s.writeJSON(w, r, http.StatusOK, resp)
}

// handleAnomalies scans the window and publishes what it finds. Responses
// are never cached since each scan is announced.
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window, err := parseWindow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	threshold, err := parseFloat(r, "threshold", s.options.Load().AnomalyThreshold)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metricTypes, err := parseMetricTypes(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	samples, err := s.store.MetricSamples(ctx, database.SampleQuery{Range: window, MetricTypes: metricTypes})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	table, err := anomaly.FromMetricSamples(samples, metricTypes)
	if err != nil {
		metrics.ObserveComputation("detect", start, err)
		s.writeError(w, r, err)
		return
	}
	records, err := anomaly.Detect(table, threshold)
	metrics.ObserveComputation("detect", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if len(records) > 0 {
		metrics.AnomaliesDetected.WithLabelValues(protocol.SourceAPI).Add(float64(len(records)))
		s.publish(r, records, table.Columns, threshold)
	}

	if records == nil {
		records = []model.AnomalyRecord{}
	}
	s.writeJSON(w, r, http.StatusOK, AnomalyResponse{Columns: table.Columns, Threshold: threshold, Anomalies: records})
}

// publish is best effort: a broker outage must not fail the scan
func (s *Server) publish(r *http.Request, records []model.AnomalyRecord, columns []string, threshold float64) {
	if s.publisher == nil {
		return
	}
	now := s.now()
	notes := make([]*protocol.AnomalyNotification, len(records))
	for i, rec := range records {
		notes[i] = protocol.NewAnomalyNotification(rec, columns, threshold, protocol.SourceAPI, now)
	}
	if err := s.publisher.PublishAnomalies(r.Context(), notes); err != nil {
		s.logger.Warn("api: failed to publish anomalies", "count", len(notes), "err", err)
	}
}

// handleSummary assembles every engine section for the window in one report
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window, err := parseWindow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metricTypes, err := parseMetricTypes(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := database.SampleQuery{Range: window, VehicleIDs: r.URL.Query()["vehicle_id"], MetricTypes: metricTypes}
	req := report.Request{TimeRange: window, MetricTypes: metricTypes, Options: s.options.Load()}
	if req.Locations, err = s.store.LocationSamples(ctx, q); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Metrics, err = s.store.MetricSamples(ctx, q); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Deliveries, err = s.store.Deliveries(ctx, q); err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	rep, err := s.assembler.Assemble(ctx, req)
	metrics.ObserveComputation("assemble", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, rep)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, &model.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()})
		return
	}
	reportType, err := model.ParseReportType(body.ReportType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	window := model.TimeRange{Start: body.Start.UTC(), End: body.End.UTC()}
	if err := window.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	key, err := cache.Key("report", body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var resp report.PerformanceReport
	if s.cached(ctx, key, &resp) {
		s.writeJSON(w, r, http.StatusOK, resp)
		return
	}

	rows, err := s.store.DailyPerformance(ctx, database.SampleQuery{Range: window, VehicleIDs: body.VehicleIDs})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	start := time.Now()
	resp, err = report.GeneratePerformanceReport(rows, reportType, s.now())
	metrics.ObserveComputation("performance_report", start, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.remember(ctx, key, resp)
	s.writeJSON(w, r, http.StatusOK, resp)
}
