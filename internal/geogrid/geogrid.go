// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package geogrid generates evenly spaced coordinates inside a circular
// search area and measures great-circle distances.
package geogrid

import (
	"math"

	"github.com/pdiddy/geolocate/pkg/types"
)

const (
	// EarthRadius is the mean Earth radius in meters used by Haversine.
	EarthRadius = 6_371_000.0

	// MetersPerDegree is the local-flat length of one degree of latitude.
	MetersPerDegree = 111_000.0

	// minCosLat keeps longitude steps finite near the poles (about 89.4 degrees).
	minCosLat = 0.01
)

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b types.Coordinate) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// Generate returns the lattice points at spacing meters apart that lie within
// radius meters of center. The lattice is anchored on center, so center is
// always included when radius >= 0. A non-positive spacing or negative radius
// yields nil.
func Generate(center types.Coordinate, radius, spacing float64) []types.Coordinate {
	if !(spacing > 0) || radius < 0 || math.IsNaN(radius) {
		return nil
	}

	latStep := spacing / MetersPerDegree
	lonStep := spacing / (MetersPerDegree * math.Max(math.Cos(radians(center.Lat)), minCosLat))

	latSpan := radius / MetersPerDegree
	lonSpan := radius / (MetersPerDegree * math.Max(math.Cos(radians(center.Lat)), minCosLat))

	nLat := int(math.Floor(latSpan / latStep))
	nLon := int(math.Floor(lonSpan / lonStep))

	points := make([]types.Coordinate, 0, (2*nLat+1)*(2*nLon+1))
	for i := -nLat; i <= nLat; i++ {
		lat := center.Lat + float64(i)*latStep
		if lat < -90 || lat > 90 {
			continue
		}
		for j := -nLon; j <= nLon; j++ {
			p := types.Coordinate{Lat: lat, Lon: wrapLon(center.Lon + float64(j)*lonStep)}
			if Haversine(center, p) <= radius {
				points = append(points, p)
			}
		}
	}
	return points
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// wrapLon folds a longitude into [-180, 180].
func wrapLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
