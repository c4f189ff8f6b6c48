package kinematics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/fleet-analytics/internal/model"
)

var base = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func fix(vehicle string, offset time.Duration, lat, lon float64) model.LocationSample {
	return model.LocationSample{VehicleID: vehicle, Timestamp: base.Add(offset), Latitude: lat, Longitude: lon}
}

func noOutliers() Options {
	return Options{RemoveOutliers: false}
}

func TestDerive_EmptyBatch(t *testing.T) {
	_, err := Derive(nil, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDataProcessing))
}

func TestDerive_SingleSampleVehicle(t *testing.T) {
	out, err := Derive([]model.LocationSample{fix("v1", 0, 10, 10)}, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDerive_ZeroTimeDelta(t *testing.T) {
	out, err := Derive([]model.LocationSample{
		fix("v1", 0, 10, 10),
		fix("v1", 0, 10.01, 10),
	}, noOutliers())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].Speed)
	assert.InDelta(t, 0.01*KmPerDegree, out[0].Distance, 1e-9)
	assert.Nil(t, out[0].Acceleration)
}

func TestDerive_SpeedDistanceAcceleration(t *testing.T) {
	// Moves 0.01 degrees of latitude per minute, then 0.02 in the next minute.
	out, err := Derive([]model.LocationSample{
		fix("v1", 2*time.Minute, 10.03, 20),
		fix("v1", 0, 10.00, 20),
		fix("v1", time.Minute, 10.01, 20),
	}, noOutliers())
	require.NoError(t, err)
	require.Len(t, out, 2)

	d1 := 0.01 * KmPerDegree
	d2 := 0.02 * KmPerDegree
	assert.Equal(t, base.Add(time.Minute), out[0].Timestamp)
	assert.InDelta(t, d1, out[0].Distance, 1e-9)
	assert.InDelta(t, d1*60, out[0].Speed, 1e-6)
	assert.Nil(t, out[0].Acceleration)

	assert.InDelta(t, d2*60, out[1].Speed, 1e-6)
	require.NotNil(t, out[1].Acceleration)
	assert.InDelta(t, (d2*60-d1*60)/60, *out[1].Acceleration, 1e-6)
}

func TestDerive_VehiclesDoNotMix(t *testing.T) {
	out, err := Derive([]model.LocationSample{
		fix("a", 0, 0, 0),
		fix("b", 0, 50, 50),
		fix("a", time.Minute, 0, 0.01),
		fix("b", time.Minute, 50, 50.01),
	}, noOutliers())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].VehicleID)
	assert.Equal(t, "b", out[1].VehicleID)
	assert.InDelta(t, out[0].Distance, out[1].Distance, 1e-9)
}

func TestDerive_StableSortOnTies(t *testing.T) {
	out, err := Derive([]model.LocationSample{
		fix("v1", 0, 0, 0),
		fix("v1", time.Minute, 1, 0),
		fix("v1", time.Minute, 2, 0),
	}, noOutliers())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, KmPerDegree, out[0].Distance, 1e-9)
	assert.InDelta(t, KmPerDegree, out[1].Distance, 1e-9)
	assert.Equal(t, 0.0, out[1].Speed)
}

func TestDerive_RemovesSpeedOutliers(t *testing.T) {
	var samples []model.LocationSample
	for i := 0; i < 12; i++ {
		samples = append(samples, fix("v1", time.Duration(i)*time.Minute, float64(i)*0.01, 0))
	}
	// A teleport on a second vehicle produces a single extreme speed.
	samples = append(samples,
		fix("v2", 0, 0, 0),
		fix("v2", time.Minute, 0.01, 0),
		fix("v2", 2*time.Minute, 5, 0),
		fix("v2", 3*time.Minute, 5.01, 0),
	)

	all, err := Derive(samples, noOutliers())
	require.NoError(t, err)
	require.Len(t, all, 14)

	filtered, err := Derive(samples, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, filtered, 13)
	for _, s := range filtered {
		assert.Less(t, s.Speed, 100.0)
	}

	// The sample after the gap takes its acceleration from the last survivor.
	var after model.DerivedSample
	for _, s := range filtered {
		if s.VehicleID == "v2" && s.Timestamp.Equal(base.Add(3*time.Minute)) {
			after = s
		}
	}
	require.NotNil(t, after.Acceleration)
	assert.InDelta(t, 0.0, *after.Acceleration, 1e-9)
}

func TestDerive_OutlierPopulationIsDerivedSpeedsOnly(t *testing.T) {
	// Ten vehicles cover 1/1024 degree per minute; "double" then covers
	// twice that. Among the eleven derived speeds that is z = sqrt(10).
	// Counting each vehicle's anchoring fix as a zero speed would pull it
	// below 3.
	var samples []model.LocationSample
	for i := 0; i < 9; i++ {
		id := fmt.Sprintf("steady%d", i)
		samples = append(samples, fix(id, 0, 0, 0), fix(id, time.Minute, 1.0/1024, 0))
	}
	samples = append(samples,
		fix("double", 0, 0, 0),
		fix("double", time.Minute, 1.0/1024, 0),
		fix("double", 2*time.Minute, 3.0/1024, 0),
	)

	filtered, err := Derive(samples, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, filtered, 10)
	for _, s := range filtered {
		assert.False(t, s.VehicleID == "double" && s.Timestamp.Equal(base.Add(2*time.Minute)))
	}
}

func TestDerive_AllSamplesRejectedForVehicle(t *testing.T) {
	var samples []model.LocationSample
	for i := 0; i < 15; i++ {
		samples = append(samples, fix(fmt.Sprintf("slow%d", i), 0, 0, 0), fix(fmt.Sprintf("slow%d", i), time.Minute, 0.01, 0))
	}
	samples = append(samples, fix("fast", 0, 0, 0), fix("fast", time.Minute, 10, 0))

	_, err := Derive(samples, DefaultOptions())
	require.Error(t, err)
	var dpe *model.DataProcessingError
	require.True(t, errors.As(err, &dpe))
	assert.Equal(t, "fast", dpe.VehicleID)
}

func TestDerive_MissingVehicleID(t *testing.T) {
	_, err := Derive([]model.LocationSample{{Timestamp: base, Latitude: 1, Longitude: 1}}, DefaultOptions())
	var dpe *model.DataProcessingError
	require.True(t, errors.As(err, &dpe))
	assert.Equal(t, "vehicle_id", dpe.Column)
}

func TestDerive_CoordinateRange(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		column   string
	}{
		{"huge latitude", 1e308, 0, "latitude"},
		{"latitude above pole", 90.5, 0, "latitude"},
		{"latitude below pole", -91, 0, "latitude"},
		{"huge longitude", 0, -1e308, "longitude"},
		{"longitude past antimeridian", 0, 180.01, "longitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Derive([]model.LocationSample{
				fix("v1", 0, 0, 0),
				fix("v1", time.Minute, tt.lat, tt.lon),
			}, noOutliers())
			require.ErrorIs(t, err, model.ErrDataProcessing)
			var dpe *model.DataProcessingError
			require.True(t, errors.As(err, &dpe))
			assert.Equal(t, tt.column, dpe.Column)
			assert.Equal(t, "v1", dpe.VehicleID)
		})
	}

	t.Run("bounds are inclusive", func(t *testing.T) {
		_, err := Derive([]model.LocationSample{
			fix("v1", 0, -90, -180),
			fix("v1", time.Minute, 90, 180),
		}, noOutliers())
		assert.NoError(t, err)
	})
}

func TestDerive_InvalidThreshold(t *testing.T) {
	_, err := Derive([]model.LocationSample{fix("v1", 0, 0, 0)}, Options{RemoveOutliers: true, OutlierZThreshold: -1})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestDerive_Deterministic(t *testing.T) {
	samples := []model.LocationSample{
		fix("b", time.Minute, 1, 1),
		fix("a", 0, 0, 0),
		fix("b", 0, 1, 1.02),
		fix("a", time.Minute, 0.02, 0),
		fix("a", 2*time.Minute, 0.05, 0),
	}
	first, err := Derive(samples, DefaultOptions())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Derive(samples, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestHaversineDistance(t *testing.T) {
	a := model.LocationSample{Latitude: 0, Longitude: 0}
	b := model.LocationSample{Latitude: 0, Longitude: 1}
	assert.InDelta(t, 111.19, HaversineDistance(a, b), 0.01)

	out, err := Derive([]model.LocationSample{fix("v", 0, 60, 0), fix("v", time.Hour, 60, 1)}, Options{Distance: HaversineDistance})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 55.6, out[0].Speed, 0.1)
}
