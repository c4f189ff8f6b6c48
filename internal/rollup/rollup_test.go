package rollup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/fleet-analytics/internal/database"
	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/protocol"
	"github.com/smukkama/fleet-analytics/internal/workerpool"
)

type fakeStore struct {
	mu       sync.Mutex
	samples  []model.MetricSample
	fetchErr error
	queries  []database.SampleQuery
	saved    []model.AggregationResult
}

func (s *fakeStore) MetricSamples(ctx context.Context, q database.SampleQuery) ([]model.MetricSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	return s.samples, s.fetchErr
}

func (s *fakeStore) SaveAggregation(ctx context.Context, res model.AggregationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, res)
	return nil
}

type fakePublisher struct {
	anomalies  []*protocol.AnomalyNotification
	rollups    []*protocol.RollupCompleted
	anomalyErr error
}

func (p *fakePublisher) PublishAnomalies(ctx context.Context, notes []*protocol.AnomalyNotification) error {
	if p.anomalyErr != nil {
		return p.anomalyErr
	}
	p.anomalies = append(p.anomalies, notes...)
	return nil
}

func (p *fakePublisher) PublishRollup(ctx context.Context, msg *protocol.RollupCompleted) error {
	p.rollups = append(p.rollups, msg)
	return nil
}

var runAt = time.Date(2024, 6, 4, 0, 30, 0, 0, time.UTC)

func newJob(t *testing.T, store Store, pub Publisher) *Job {
	t.Helper()
	pool := workerpool.New(2, 8, nil)
	pool.Start()
	t.Cleanup(pool.Stop)

	j := NewJob(store, pub, pool, func() float64 { return 3.0 }, nil)
	j.now = func() time.Time { return runAt }
	return j
}

// fleetDay has ten vehicles reporting speed and fuel at noon on 3 June,
// with veh-9 driving far faster than the rest.
func fleetDay() []model.MetricSample {
	noon := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	var out []model.MetricSample
	for v := 0; v < 10; v++ {
		id := fmt.Sprintf("veh-%d", v)
		speed := 50.0
		if v == 9 {
			speed = 1000
		}
		out = append(out,
			model.MetricSample{MetricType: model.MetricSpeed, VehicleID: id, Timestamp: noon, Value: speed},
			model.MetricSample{MetricType: model.MetricFuel, VehicleID: id, Timestamp: noon, Value: 5},
		)
	}
	return out
}

func TestJob_RunDaily(t *testing.T) {
	store := &fakeStore{samples: fleetDay()}
	pub := &fakePublisher{}
	j := newJob(t, store, pub)

	summary, err := j.Run(context.Background(), model.PeriodDaily)
	require.NoError(t, err)
	require.NotNil(t, summary)

	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	require.Len(t, store.queries, 1)
	assert.Equal(t, day, store.queries[0].Range.Start)
	assert.Equal(t, day.AddDate(0, 0, 1), store.queries[0].Range.End)

	require.Len(t, store.saved, 2)
	assert.Equal(t, model.MetricSpeed, store.saved[0].MetricType)
	assert.Equal(t, model.MetricFuel, store.saved[1].MetricType)
	assert.Equal(t, 10, store.saved[0].Statistics[day].VehicleCount)

	require.Len(t, pub.anomalies, 1)
	note := pub.anomalies[0]
	assert.Equal(t, "veh-9", note.VehicleID)
	assert.Equal(t, "vehicle_speed", note.AnomalyType)
	assert.Equal(t, protocol.SourceRollup, note.Source)
	assert.InDelta(t, 3.0, float64(note.ConfidenceScore), 1e-9)
	assert.Equal(t, protocol.Float(1000), note.Values["vehicle_speed"])

	require.Len(t, pub.rollups, 1)
	assert.Same(t, summary, pub.rollups[0])
	assert.Equal(t, "DAILY", summary.Period)
	assert.Equal(t, []string{"vehicle_speed", "fuel_consumption"}, summary.MetricTypes)
	assert.Equal(t, 2, summary.Buckets)
	assert.Equal(t, 1, summary.Anomalies)
}

func TestJob_RunEmptyWindow(t *testing.T) {
	pub := &fakePublisher{}
	j := newJob(t, &fakeStore{}, pub)

	summary, err := j.Run(context.Background(), model.PeriodHourly)
	require.NoError(t, err)
	assert.Nil(t, summary)
	assert.Empty(t, pub.rollups)
}

func TestJob_RunSkipsUnpivotableDetection(t *testing.T) {
	at := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{samples: []model.MetricSample{
		{MetricType: model.MetricSpeed, VehicleID: "a", Timestamp: at, Value: 40},
		{MetricType: model.MetricFuel, VehicleID: "a", Timestamp: at.Add(time.Minute), Value: 4},
	}}
	pub := &fakePublisher{}
	j := newJob(t, store, pub)

	summary, err := j.Run(context.Background(), model.PeriodDaily)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Anomalies)
	assert.Len(t, store.saved, 2)
	assert.Len(t, pub.rollups, 1)
}

func TestJob_RunErrors(t *testing.T) {
	boom := errors.New("connection refused")

	j := newJob(t, &fakeStore{fetchErr: boom}, &fakePublisher{})
	_, err := j.Run(context.Background(), model.PeriodDaily)
	assert.ErrorIs(t, err, boom)

	pub := &fakePublisher{anomalyErr: boom}
	j = newJob(t, &fakeStore{samples: fleetDay()}, pub)
	_, err = j.Run(context.Background(), model.PeriodDaily)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, pub.rollups)

	bad := fleetDay()
	bad[0].VehicleID = ""
	j = newJob(t, &fakeStore{samples: bad}, &fakePublisher{})
	_, err = j.Run(context.Background(), model.PeriodDaily)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestNextHourlyRun(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2024, 6, 3, h, m, 0, 0, time.UTC) }
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{at(10, 3), at(10, 5)},
		{at(10, 5), at(11, 5)},
		{at(10, 7), at(11, 5)},
		{at(23, 59), time.Date(2024, 6, 4, 0, 5, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextHourlyRun(tt.now, 5*time.Minute), "now=%s", tt.now)
	}
}

func TestNextDailyRun(t *testing.T) {
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	next, err := NextDailyRun(now, "00:05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 4, 0, 5, 0, 0, time.UTC), next)

	next, err = NextDailyRun(now, "23:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC), next)

	next, err = NextDailyRun(now, "10:00")
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 1), next)

	_, err = NextDailyRun(now, "noon")
	assert.Error(t, err)
}

func TestPreviousWindow(t *testing.T) {
	wed := time.Date(2024, 3, 6, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		period     model.Period
		start, end time.Time
	}{
		{model.PeriodHourly, time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC), time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)},
		{model.PeriodDaily, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)},
		{model.PeriodWeekly, time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		{model.PeriodMonthly, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			w := PreviousWindow(tt.period, wed)
			assert.Equal(t, tt.start, w.Start)
			assert.Equal(t, tt.end, w.End)
		})
	}
}
