package kinematics

import (
	"math"

	"github.com/smukkama/fleet-analytics/internal/model"
)

const (
	// KmPerDegree converts a degree of arc on a meridian to kilometres
	KmPerDegree = 111.32

	earthRadiusKm = 6371.0088
)

// DistanceFunc returns the distance in kilometres between two fixes
type DistanceFunc func(a, b model.LocationSample) float64

// PlanarDistance treats latitude and longitude degrees as a flat grid.
// Longitude is not scaled by cos(latitude), so east-west legs are
// overestimated away from the equator.
func PlanarDistance(a, b model.LocationSample) float64 {
	dLat := b.Latitude - a.Latitude
	dLon := b.Longitude - a.Longitude
	return math.Sqrt(dLat*dLat+dLon*dLon) * KmPerDegree
}

// HaversineDistance is the great-circle distance on a spherical earth
func HaversineDistance(a, b model.LocationSample) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
