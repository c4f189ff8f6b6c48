package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/smukkama/fleet-analytics/internal/aggregation"
	"github.com/smukkama/fleet-analytics/internal/model"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		slog.Info("database: running migration", "file", filename)

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	slog.Info("database: migrations completed", "count", len(sqlFiles))
	return nil
}

// LocationSamples returns the position fixes matching q, ordered by time
func (db *DB) LocationSamples(ctx context.Context, q SampleQuery) ([]model.LocationSample, error) {
	where, args := q.where("timestamp", false)
	query := `
		SELECT vehicle_id, timestamp, latitude, longitude
		FROM location_samples
		` + where + `
		ORDER BY timestamp, id
	`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query location samples: %w", err)
	}
	defer rows.Close()

	var out []model.LocationSample
	for rows.Next() {
		var s model.LocationSample
		if err := rows.Scan(&s.VehicleID, &s.Timestamp, &s.Latitude, &s.Longitude); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MetricSamples returns the metric samples matching q, ordered by time
func (db *DB) MetricSamples(ctx context.Context, q SampleQuery) ([]model.MetricSample, error) {
	where, args := q.where("timestamp", true)
	query := `
		SELECT metric_type, timestamp, vehicle_id, value
		FROM metric_samples
		` + where + `
		ORDER BY timestamp, id
	`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric samples: %w", err)
	}
	defer rows.Close()

	var out []model.MetricSample
	for rows.Next() {
		var s model.MetricSample
		var metric string
		if err := rows.Scan(&metric, &s.Timestamp, &s.VehicleID, &s.Value); err != nil {
			return nil, err
		}
		s.MetricType = model.MetricType(metric)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Deliveries returns the delivery records matching q, ordered by time
func (db *DB) Deliveries(ctx context.Context, q SampleQuery) ([]model.DeliveryRecord, error) {
	where, args := q.where("timestamp", false)
	query := `
		SELECT vehicle_id, route_id, timestamp, delivery_time, actual_time,
		       planned_time, distance, actual_distance, planned_distance,
		       fuel_consumption, stop_count
		FROM deliveries
		` + where + `
		ORDER BY timestamp, id
	`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var out []model.DeliveryRecord
	for rows.Next() {
		var d model.DeliveryRecord
		if err := rows.Scan(
			&d.VehicleID,
			&d.RouteID,
			&d.Timestamp,
			&d.DeliveryTime,
			&d.ActualTime,
			&d.PlannedTime,
			&d.Distance,
			&d.ActualDistance,
			&d.PlannedDistance,
			&d.FuelConsumption,
			&d.StopCount,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DailyPerformance returns the daily KPI rows matching q, ordered by date
func (db *DB) DailyPerformance(ctx context.Context, q SampleQuery) ([]model.DailyPerformance, error) {
	where, args := q.where("date", false)
	query := `
		SELECT date, vehicle_id, deliveries, distance, fuel_consumption,
		       on_time_delivery_rate, delivery_delay, delivery_success_rate,
		       vehicle_utilization, driver_productivity, fuel_efficiency
		FROM daily_performance
		` + where + `
		ORDER BY date, vehicle_id
	`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily performance: %w", err)
	}
	defer rows.Close()

	var out []model.DailyPerformance
	for rows.Next() {
		var p model.DailyPerformance
		if err := rows.Scan(
			&p.Date,
			&p.VehicleID,
			&p.Deliveries,
			&p.Distance,
			&p.FuelConsumption,
			&p.OnTimeDeliveryRate,
			&p.DeliveryDelay,
			&p.DeliverySuccessRate,
			&p.VehicleUtilization,
			&p.DriverProductivity,
			&p.FuelEfficiency,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FleetPerformance computes the fleet-wide summary per metric type in SQL.
// It matches aggregation.FleetPerformance: population standard deviation,
// average and deviation rounded to two decimals.
func (db *DB) FleetPerformance(ctx context.Context, q SampleQuery) (map[model.MetricType]aggregation.PerformanceSummary, error) {
	where, args := q.where("timestamp", true)
	query := `
		SELECT metric_type,
		       ROUND(AVG(value)::numeric, 2)::float8,
		       MAX(value),
		       MIN(value),
		       ROUND(COALESCE(STDDEV_POP(value), 0)::numeric, 2)::float8,
		       COUNT(*)
		FROM metric_samples
		` + where + `
		GROUP BY metric_type
	`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate fleet performance: %w", err)
	}
	defer rows.Close()

	out := make(map[model.MetricType]aggregation.PerformanceSummary)
	for rows.Next() {
		var metric string
		var s aggregation.PerformanceSummary
		if err := rows.Scan(&metric, &s.Average, &s.Maximum, &s.Minimum, &s.StandardDeviation, &s.SampleSize); err != nil {
			return nil, err
		}
		out[model.MetricType(metric)] = s
	}
	return out, rows.Err()
}

// SaveAggregation upserts one row per bucket of res
func (db *DB) SaveAggregation(ctx context.Context, res model.AggregationResult) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fleet_aggregations (
			aggregation_period, metric_type, bucket_start,
			mean, median, std, min, max, vehicle_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (aggregation_period, metric_type, bucket_start) DO UPDATE
		SET mean = EXCLUDED.mean,
		    median = EXCLUDED.median,
		    std = EXCLUDED.std,
		    min = EXCLUDED.min,
		    max = EXCLUDED.max,
		    vehicle_count = EXCLUDED.vehicle_count,
		    updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare aggregation upsert: %w", err)
	}
	defer stmt.Close()

	for _, bucket := range res.Buckets() {
		st := res.Statistics[bucket]
		if _, err = stmt.ExecContext(ctx,
			string(res.AggregationPeriod),
			string(res.MetricType),
			bucket,
			st.Mean,
			st.Median,
			st.Std,
			st.Min,
			st.Max,
			st.VehicleCount,
		); err != nil {
			return fmt.Errorf("failed to store bucket %s: %w", bucket.Format("2006-01-02T15:04Z"), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit aggregation: %w", err)
	}
	return nil
}
