// Package kinematics turns raw position traces into speed, distance and
// acceleration.
package kinematics

import (
	"errors"
	"math"
	"sort"

	"github.com/smukkama/fleet-analytics/internal/model"
	"github.com/smukkama/fleet-analytics/internal/stats"
)

// DefaultOutlierThreshold is the speed z-score at which a sample is dropped
const DefaultOutlierThreshold = 3.0

const opDerive = "derive kinematics"

var (
	errEmptyBatch   = errors.New("no location samples supplied")
	errAllOutliers  = errors.New("every sample was rejected as an outlier")
	errMissingField = errors.New("required field missing or not finite")
	errOutOfRange   = errors.New("coordinate out of range")
)

// Options controls Derive
type Options struct {
	RemoveOutliers bool

	// OutlierZThreshold applies when RemoveOutliers is set. Zero means
	// DefaultOutlierThreshold.
	OutlierZThreshold float64

	// Distance defaults to PlanarDistance
	Distance DistanceFunc
}

// DefaultOptions enables outlier removal at 3 standard deviations
func DefaultOptions() Options {
	return Options{RemoveOutliers: true, OutlierZThreshold: DefaultOutlierThreshold}
}

func (o Options) threshold() (float64, error) {
	thr := o.OutlierZThreshold
	if thr == 0 {
		return DefaultOutlierThreshold, nil
	}
	if thr < 0 || math.IsNaN(thr) || math.IsInf(thr, 0) {
		return 0, &model.ValidationError{Field: "outlier_z_threshold", Reason: "must be a positive finite number"}
	}
	return thr, nil
}

// Derive computes kinematics for every consecutive pair of same-vehicle
// samples.
//
// Samples are partitioned by vehicle and stably sorted by timestamp. The
// first sample of a vehicle only anchors the next one, so a single-sample
// vehicle contributes nothing. A zero or negative time delta gives speed 0.
//
// With outlier removal the speed z-score is taken across the whole batch
// and samples at or beyond the threshold are dropped. Acceleration is then
// computed over the surviving samples of each vehicle as if the dropped
// ones were never observed; the first surviving sample has none.
//
// Vehicles appear in the output in order of first appearance in the input.
func Derive(samples []model.LocationSample, opts Options) ([]model.DerivedSample, error) {
	if len(samples) == 0 {
		return nil, &model.DataProcessingError{Op: opDerive, Err: errEmptyBatch}
	}
	thr, err := opts.threshold()
	if err != nil {
		return nil, err
	}
	dist := opts.Distance
	if dist == nil {
		dist = PlanarDistance
	}

	order, byVehicle, err := partition(samples)
	if err != nil {
		return nil, err
	}

	var candidates []model.DerivedSample
	for _, id := range order {
		trace := byVehicle[id]
		for i := 1; i < len(trace); i++ {
			prev, cur := trace[i-1], trace[i]
			d := dist(prev, cur)
			dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
			speed := 0.0
			if dt > 0 {
				speed = d / dt * 3600
			}
			candidates = append(candidates, model.DerivedSample{
				VehicleID: id,
				Timestamp: cur.Timestamp,
				Speed:     speed,
				Distance:  d,
			})
		}
	}

	retained := candidates
	if opts.RemoveOutliers && len(candidates) > 0 {
		retained, err = dropSpeedOutliers(candidates, thr)
		if err != nil {
			return nil, err
		}
	}

	fillAcceleration(retained)
	return retained, nil
}

func partition(samples []model.LocationSample) ([]string, map[string][]model.LocationSample, error) {
	var order []string
	byVehicle := make(map[string][]model.LocationSample)
	for _, s := range samples {
		switch {
		case s.VehicleID == "":
			return nil, nil, &model.DataProcessingError{Op: opDerive, Column: "vehicle_id", Err: errMissingField}
		case s.Timestamp.IsZero():
			return nil, nil, &model.DataProcessingError{Op: opDerive, VehicleID: s.VehicleID, Column: "timestamp", Err: errMissingField}
		case !stats.AllFinite(s.Latitude):
			return nil, nil, &model.DataProcessingError{Op: opDerive, VehicleID: s.VehicleID, Column: "latitude", Err: errMissingField}
		case !stats.AllFinite(s.Longitude):
			return nil, nil, &model.DataProcessingError{Op: opDerive, VehicleID: s.VehicleID, Column: "longitude", Err: errMissingField}
		case s.Latitude < -90 || s.Latitude > 90:
			return nil, nil, &model.DataProcessingError{Op: opDerive, VehicleID: s.VehicleID, Column: "latitude", Err: errOutOfRange}
		case s.Longitude < -180 || s.Longitude > 180:
			return nil, nil, &model.DataProcessingError{Op: opDerive, VehicleID: s.VehicleID, Column: "longitude", Err: errOutOfRange}
		}
		if _, ok := byVehicle[s.VehicleID]; !ok {
			order = append(order, s.VehicleID)
		}
		byVehicle[s.VehicleID] = append(byVehicle[s.VehicleID], s)
	}
	for _, trace := range byVehicle {
		sort.SliceStable(trace, func(i, j int) bool {
			return trace[i].Timestamp.Before(trace[j].Timestamp)
		})
	}
	return order, byVehicle, nil
}

func dropSpeedOutliers(candidates []model.DerivedSample, thr float64) ([]model.DerivedSample, error) {
	speeds := make([]float64, len(candidates))
	for i, c := range candidates {
		speeds[i] = c.Speed
	}
	z := stats.ZScores(speeds)

	kept := make([]model.DerivedSample, 0, len(candidates))
	survivors := make(map[string]int)
	var vehicles []string
	for i, c := range candidates {
		if _, seen := survivors[c.VehicleID]; !seen {
			survivors[c.VehicleID] = 0
			vehicles = append(vehicles, c.VehicleID)
		}
		if stats.AtLeast(z[i], thr) {
			continue
		}
		survivors[c.VehicleID]++
		kept = append(kept, c)
	}
	for _, id := range vehicles {
		if survivors[id] == 0 {
			return nil, &model.DataProcessingError{Op: opDerive, VehicleID: id, Err: errAllOutliers}
		}
	}
	return kept, nil
}

// fillAcceleration expects samples grouped by vehicle and time ordered
// within each group.
func fillAcceleration(samples []model.DerivedSample) {
	for i := range samples {
		if i == 0 || samples[i-1].VehicleID != samples[i].VehicleID {
			continue
		}
		prev := samples[i-1]
		gap := samples[i].Timestamp.Sub(prev.Timestamp).Seconds()
		accel := 0.0
		if gap > 0 {
			accel = (samples[i].Speed - prev.Speed) / gap
		}
		samples[i].Acceleration = &accel
	}
}
