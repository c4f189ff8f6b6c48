// Package report assembles engine results into vehicle profiles,
// performance reports and multi-part analytics reports.
package report

import (
	"time"

	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/stats"
)

// IdleSpeed is the speed (km/h) below which a sample counts as idle
const IdleSpeed = 1.0

// AccelerationProfile summarises the defined accelerations of a vehicle
type AccelerationProfile struct {
	Average float64 `json:"average"`
	StdDev  float64 `json:"std_dev"`
}

// HourlyStatistics are per-hour means of the derived series. Acceleration
// is nil when no sample in the hour has one.
type HourlyStatistics struct {
	Samples      int      `json:"samples"`
	Speed        float64  `json:"speed"`
	Distance     float64  `json:"distance"`
	Acceleration *float64 `json:"acceleration"`
}

// VehicleProfile is the performance view of one vehicle over a window
type VehicleProfile struct {
	VehicleID           string                         `json:"vehicle_id"`
	TotalDistance       float64                        `json:"total_distance"`
	AverageSpeed        float64                        `json:"average_speed"`
	MaxSpeed            float64                        `json:"max_speed"`
	IdleTimePercentage  float64                        `json:"idle_time_percentage"`
	AccelerationProfile AccelerationProfile            `json:"acceleration_profile"`
	HourlyStatistics    map[time.Time]HourlyStatistics `json:"hourly_statistics"`
}

type hourAcc struct {
	speed, distance, accel []float64
}

// EmptyVehicleProfile is the profile of a vehicle that has fixes in the
// window but no consecutive pair to derive kinematics from.
func EmptyVehicleProfile(vehicleID string) VehicleProfile {
	return VehicleProfile{
		VehicleID:        vehicleID,
		HourlyStatistics: map[time.Time]HourlyStatistics{},
	}
}

// BuildVehicleProfile summarises the derived samples belonging to vehicleID.
// Samples of other vehicles are ignored.
func BuildVehicleProfile(vehicleID string, derived []model.DerivedSample) (VehicleProfile, error) {
	var speeds, accels []float64
	total, idle := 0.0, 0
	hours := make(map[time.Time]*hourAcc)

	for _, d := range derived {
		if d.VehicleID != vehicleID {
			continue
		}
		speeds = append(speeds, d.Speed)
		total += d.Distance
		if d.Speed < IdleSpeed {
			idle++
		}

		h := model.PeriodHourly.Floor(d.Timestamp)
		acc, ok := hours[h]
		if !ok {
			acc = &hourAcc{}
			hours[h] = acc
		}
		acc.speed = append(acc.speed, d.Speed)
		acc.distance = append(acc.distance, d.Distance)
		if d.Acceleration != nil {
			accels = append(accels, *d.Acceleration)
			acc.accel = append(acc.accel, *d.Acceleration)
		}
	}
	if len(speeds) == 0 {
		return VehicleProfile{}, &model.ValidationError{Field: "vehicle_id", Value: vehicleID, Reason: "no derived samples for vehicle"}
	}

	sp := stats.Summarize(speeds)
	accMean, accStd := stats.PopMeanStd(accels)

	profile := VehicleProfile{
		VehicleID:           vehicleID,
		TotalDistance:       total,
		AverageSpeed:        sp.Mean,
		MaxSpeed:            sp.Max,
		IdleTimePercentage:  float64(idle) / float64(len(speeds)) * 100,
		AccelerationProfile: AccelerationProfile{Average: accMean, StdDev: accStd},
		HourlyStatistics:    make(map[time.Time]HourlyStatistics, len(hours)),
	}
	for h, acc := range hours {
		hs := HourlyStatistics{
			Samples:  len(acc.speed),
			Speed:    stats.Mean(acc.speed),
			Distance: stats.Mean(acc.distance),
		}
		if len(acc.accel) > 0 {
			m := stats.Mean(acc.accel)
			hs.Acceleration = &m
		}
		profile.HourlyStatistics[h] = hs
	}
	return profile, nil
}
