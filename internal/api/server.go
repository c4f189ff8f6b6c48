// Package api serves the analytics engine over HTTP under /api/v1/analytics.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smukkama/fleet-analytics/internal/database"
	"github.com/smukkama/fleet-analytics/internal/metrics"
	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/protocol"
	"github.com/smukkama/fleet-analytics/internal/report"
	"github.com/smukkama/fleet-analytics/internal/workerpool"
)

// Store is the read side of the persistence layer
type Store interface {
	LocationSamples(ctx context.Context, q database.SampleQuery) ([]model.LocationSample, error)
	MetricSamples(ctx context.Context, q database.SampleQuery) ([]model.MetricSample, error)
	Deliveries(ctx context.Context, q database.SampleQuery) ([]model.DeliveryRecord, error)
	DailyPerformance(ctx context.Context, q database.SampleQuery) ([]model.DailyPerformance, error)
}

// Cache stores JSON-encodable responses
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// Publisher announces anomalies found by API requests
type Publisher interface {
	PublishAnomalies(ctx context.Context, notes []*protocol.AnomalyNotification) error
}

// Deps are the collaborators of a Server. Cache and Publisher are optional.
type Deps struct {
	Store     Store
	Cache     Cache
	Publisher Publisher
	Pool      *workerpool.Pool
	Options   *report.OptionsHolder
	Logger    *slog.Logger

	// AccessLog receives one Apache-style line per request. Defaults to stdout.
	AccessLog io.Writer
}

// Server routes analytics requests
type Server struct {
	store     Store
	cache     Cache
	publisher Publisher
	pool      *workerpool.Pool
	assembler *report.Assembler
	options   *report.OptionsHolder
	logger    *slog.Logger
	accessLog io.Writer
	router    *mux.Router
	now       func() time.Time
}

// NewServer creates a server and registers its routes
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.AccessLog == nil {
		deps.AccessLog = os.Stdout
	}
	if deps.Options == nil {
		deps.Options = report.NewOptionsHolder(report.DefaultOptions())
	}

	s := &Server{
		store:     deps.Store,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		pool:      deps.Pool,
		assembler: report.NewAssembler(deps.Pool),
		options:   deps.Options,
		logger:    deps.Logger,
		accessLog: deps.AccessLog,
		router:    mux.NewRouter(),
		now:       time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.instrument)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1/analytics").Subrouter()
	api.HandleFunc("/fleet", s.handleFleet).Methods("GET")
	api.HandleFunc("/vehicle/{vehicle_id}", s.handleVehicle).Methods("GET")
	api.HandleFunc("/delivery", s.handleDelivery).Methods("GET")
	api.HandleFunc("/anomalies", s.handleAnomalies).Methods("GET")
	api.HandleFunc("/summary", s.handleSummary).Methods("GET")
	api.HandleFunc("/report", s.handleReport).Methods("POST")
}

// Handler returns the router wrapped in panic recovery and access logging
func (s *Server) Handler() http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError)),
	)
	return recovery(handlers.LoggingHandler(s.accessLog, s.router))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latencies per route template
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"workers": s.pool.Size(),
		"time":    s.now().UTC(),
	})
}

// cached loads key into dst, reporting whether it was found. Cache
// failures are logged and treated as misses.
func (s *Server) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("api: cache read failed", "key", key, "err", err)
		return false
	case ok:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return true
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return false
	}
}

func (s *Server) remember(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, v); err != nil {
		s.logger.Warn("api: cache write failed", "key", key, "err", err)
	}
}
