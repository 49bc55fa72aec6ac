package domain

import (
	"errors"
	"math"
)

const earthRadiusMeters = 6371000.0

var ErrNoSamples = errors.New("no position samples")

// Immutable geographic coordinate (latitude, longitude) in degrees.
// Range is not validated here; callers supply sane fixes.
type Coordinate struct {
	Lat float64
	Lon float64
}

// DistanceMeters returns the great-circle (haversine) distance to o.
func (c Coordinate) DistanceMeters(o Coordinate) float64 {
	lat1 := c.Lat * math.Pi / 180
	lat2 := o.Lat * math.Pi / 180
	dLat := (o.Lat - c.Lat) * math.Pi / 180
	dLon := (o.Lon - c.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
