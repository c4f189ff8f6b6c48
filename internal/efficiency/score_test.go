package efficiency

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/fleet-analytics/internal/model"
)

var monday = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

func delivery(route string, deliveryTime, actual, planned, actualDist, plannedDist float64) model.DeliveryRecord {
	return model.DeliveryRecord{
		VehicleID:       "veh-1",
		Timestamp:       monday,
		DeliveryTime:    deliveryTime,
		ActualTime:      actual,
		PlannedTime:     planned,
		Distance:        actualDist,
		ActualDistance:  actualDist,
		PlannedDistance: plannedDist,
		FuelConsumption: actualDist / 10,
		RouteID:         route,
		StopCount:       4,
	}
}

func TestScore_AllOnTimeFullUtilization(t *testing.T) {
	batch := []model.DeliveryRecord{
		delivery("r1", 30, 30, 30, 12, 12),
		delivery("r1", 45, 45, 45, 20, 20),
		delivery("r2", 25, 25, 25, 8, 8),
	}

	s, err := Score(batch, DefaultParameters())
	require.NoError(t, err)

	assert.Equal(t, 100.0, s.DeliveryStatistics.OnTimePercentage)
	assert.InDelta(t, 100.0, s.RouteEfficiency.DistanceUtilizationPct, 1e-9)
	assert.Empty(t, s.Recommendations)
	assert.NotNil(t, s.Recommendations)
	assert.InDelta(t, 100.0/3, s.DeliveryStatistics.AvgDeliveryTime, 1e-9)
	assert.Equal(t, map[string]float64{"r1": 4, "r2": 4}, s.RouteEfficiency.AvgStopsPerRoute)
	assert.InDelta(t, 40.0/3, s.RouteEfficiency.AvgDistancePerDelivery, 1e-9)
}

func TestScore_SingleRecord(t *testing.T) {
	s, err := Score([]model.DeliveryRecord{delivery("r1", 30, 30, 30, 10, 10)}, DefaultParameters())
	require.NoError(t, err)

	// Every feature column is constant so the z-score term contributes 1.
	assert.Equal(t, 100.0, s.OverallEfficiencyScore)
	assert.Equal(t, 0.0, s.DeliveryStatistics.StdDeliveryTime)
}

func TestScore_DeliveryTimeStdIsPopulation(t *testing.T) {
	s, err := Score([]model.DeliveryRecord{
		delivery("r1", 30, 30, 30, 10, 10),
		delivery("r1", 50, 50, 50, 10, 10),
	}, DefaultParameters())
	require.NoError(t, err)

	// sqrt(((30-40)^2 + (50-40)^2) / 2); the N-1 form would give 10*sqrt(2)
	assert.InDelta(t, 10.0, s.DeliveryStatistics.StdDeliveryTime, 1e-9)
	assert.InDelta(t, 40.0, s.DeliveryStatistics.AvgDeliveryTime, 1e-9)
}

func TestScore_Recommendations(t *testing.T) {
	batch := []model.DeliveryRecord{
		delivery("r1", 30, 40, 30, 12, 20),
		delivery("r1", 30, 30, 30, 10, 20),
	}
	s, err := Score(batch, DefaultParameters())
	require.NoError(t, err)

	assert.Equal(t, 50.0, s.DeliveryStatistics.OnTimePercentage)
	assert.InDelta(t, 55.0, s.RouteEfficiency.DistanceUtilizationPct, 1e-9)
	assert.Equal(t, []string{RecommendOnTime, RecommendUtilization}, s.Recommendations)

	s, err = Score(batch, Parameters{TargetOnTime: 50, TargetUtilization: 50})
	require.NoError(t, err)
	assert.Empty(t, s.Recommendations)
}

func TestScore_ClampLaw(t *testing.T) {
	batch := []model.DeliveryRecord{
		delivery("r1", 30, 30, 30, 1e6, 1),
		delivery("r1", 31, 30, 30, 2e6, 1),
	}
	s, err := Score(batch, DefaultParameters())
	require.NoError(t, err)
	assert.Equal(t, 100.0, s.OverallEfficiencyScore)

	batch = []model.DeliveryRecord{
		delivery("r1", 30, 90, 30, -50, 1),
		delivery("r1", 90, 90, 30, -70, 1),
	}
	s, err = Score(batch, DefaultParameters())
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.OverallEfficiencyScore)
}

func TestScore_Validation(t *testing.T) {
	good := delivery("r1", 30, 30, 30, 10, 10)

	tests := []struct {
		name   string
		batch  []model.DeliveryRecord
		params Parameters
	}{
		{"empty batch", nil, DefaultParameters()},
		{"zero planned distance", []model.DeliveryRecord{delivery("r1", 30, 30, 30, 10, 0)}, DefaultParameters()},
		{"non-finite time", []model.DeliveryRecord{delivery("r1", math.NaN(), 30, 30, 10, 10)}, DefaultParameters()},
		{"negative target", []model.DeliveryRecord{good}, Parameters{TargetOnTime: -1, TargetUtilization: 90}},
		{"infinite target", []model.DeliveryRecord{good}, Parameters{TargetOnTime: 95, TargetUtilization: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Score(tt.batch, tt.params)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestPatterns(t *testing.T) {
	a := delivery("r1", 20, 0, 0, 1, 1)
	b := delivery("r1", 40, 0, 0, 1, 1)
	c := delivery("r1", 90, 0, 0, 1, 1)
	c.Timestamp = time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC) // Sunday

	p, err := Patterns([]model.DeliveryRecord{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{9: 30, 23: 90}, p.ByHour)
	assert.Equal(t, map[int]float64{0: 30, 6: 90}, p.ByWeekday)

	_, err = Patterns(nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}
