// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package location holds the fix data model and the contracts between a location source and
// its consumers.
package location

import (
	"math"
	"time"
)

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371000.0

// Fix is a single point-in-time location reading. A Fix is passed by value and never mutated
// after it has been received.
type Fix struct {
	Provider  string
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Time      time.Time
}

// IsZero reports whether f is the zero Fix.
func (f Fix) IsZero() bool {
	return f == Fix{}
}

// Valid checks if the coordinates are within the EPSG:4326 bounds.
func (f Fix) Valid() bool {
	return f.Latitude >= -90 && f.Latitude <= 90 && f.Longitude >= -180 && f.Longitude <= 180
}

// DistanceTo returns the great-circle distance in meters between f and other, using the
// Haversine formula.
func (f Fix) DistanceTo(other Fix) float64 {
	dLat := (f.Latitude - other.Latitude) * math.Pi / 180
	dLon := (f.Longitude - other.Longitude) * math.Pi / 180
	lat1 := f.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}
