// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pdiddy/geolocate/pkg/types"
)

// Marker colours by final confidence.
const (
	ColorHigh   = "red"
	ColorMedium = "orange"
	ColorLow    = "blue"
)

// Color buckets a final confidence: >= 0.85 high, >= 0.70 medium.
func Color(confidence float64) string {
	switch {
	case confidence >= 0.85:
		return ColorHigh
	case confidence >= 0.70:
		return ColorMedium
	default:
		return ColorLow
	}
}

// StreetViewLink opens the panorama at c looking toward heading.
func StreetViewLink(c types.Coordinate, heading float64) string {
	return fmt.Sprintf("https://www.google.com/maps/@?api=1&map_action=pano&viewpoint=%s,%s&heading=%s&source=maps_sv",
		strconv.FormatFloat(c.Lat, 'f', 6, 64), strconv.FormatFloat(c.Lon, 'f', 6, 64),
		strconv.FormatFloat(heading, 'f', -1, 64))
}

// FeatureCollection is a GeoJSON feature collection of points.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON point with display properties.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Point          `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Point holds [lon, lat] as GeoJSON requires.
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Features converts ranked candidates into a feature collection.
func Features(ranked []types.ValidatedCandidate) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(ranked))}
	for i, vc := range ranked {
		loc := vc.Candidate.Location()
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: Point{Type: "Point", Coordinates: [2]float64{loc.Lon, loc.Lat}},
			Properties: map[string]any{
				"rank":             i + 1,
				"name":             vc.Candidate.Name,
				"source":           string(vc.Candidate.Source),
				"heading":          vc.Heading,
				"semantic":         vc.SemanticScore,
				"geometric":        vc.GeometricScore,
				"contextual_match": vc.ContextualIsMatch,
				"final_confidence": vc.FinalConfidence,
				"marker-color":     Color(vc.FinalConfidence),
				"street_view":      StreetViewLink(loc, vc.Heading),
			},
		})
	}
	return fc
}

// GeoJSON writes ranked candidates as a feature collection.
func GeoJSON(w io.Writer, ranked []types.ValidatedCandidate) error {
	return JSON(w, Features(ranked))
}
