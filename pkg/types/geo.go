// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data structures passed between the
// geolocation stages: coordinates, candidates at each scoring stage, provider
// payloads, decisions, and configuration.
package types

import (
	"fmt"
	"math"
	"strconv"
)

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat" mapstructure:"lat"`
	Lon float64 `json:"lon" yaml:"lon" mapstructure:"lon"`
}

// Validate reports whether the coordinate lies on the globe.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return fmt.Errorf("%w: coordinate contains NaN", ErrInvalidConfig)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidConfig, c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidConfig, c.Lon)
	}
	return nil
}

// IsZero reports whether c is the zero value (0, 0).
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// String renders the coordinate as "lat,lon" with six decimals, the format
// the imagery endpoints accept.
func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 6, 64)
}

// Source tags where a candidate came from.
type Source string

const (
	SourcePlaceSearch Source = "place-search"
	SourceGrid        Source = "grid"
	SourceRefinement  Source = "refinement"
)

// Place is one result from a text place search.
type Place struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Address    string     `json:"address,omitempty" yaml:"address,omitempty"`
	Coordinate Coordinate `json:"coordinate" yaml:"coordinate"`
}

// ImageryMeta is the street-level imagery availability for one coordinate.
// CaptureDate is the provider's date string, normally "YYYY-MM".
type ImageryMeta struct {
	Available   bool       `json:"available" yaml:"available"`
	Status      string     `json:"status" yaml:"status"`
	CaptureDate string     `json:"capture_date,omitempty" yaml:"capture_date,omitempty"`
	ImageryID   string     `json:"imagery_id,omitempty" yaml:"imagery_id,omitempty"`
	Snapped     Coordinate `json:"snapped" yaml:"snapped"`
}

// Imagery is the reference attached to a candidate once availability is
// confirmed.
type Imagery struct {
	ID          string     `json:"id" yaml:"id"`
	CaptureDate string     `json:"capture_date" yaml:"capture_date"`
	CaptureYear int        `json:"capture_year" yaml:"capture_year"`
	Location    Coordinate `json:"location" yaml:"location"`
}

// Candidate is a location that may show the photographed building. Funnel
// stages return new values rather than mutating candidates in place.
type Candidate struct {
	Coordinate Coordinate `json:"coordinate" yaml:"coordinate"`
	Source     Source     `json:"source" yaml:"source"`
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	Address    string     `json:"address,omitempty" yaml:"address,omitempty"`
	Imagery    *Imagery   `json:"imagery,omitempty" yaml:"imagery,omitempty"`
}

// WithImagery returns a copy of c carrying the given imagery reference.
func (c Candidate) WithImagery(im Imagery) Candidate {
	c.Imagery = &im
	return c
}

// Location returns the imagery capture location when known, else the
// candidate coordinate.
func (c Candidate) Location() Coordinate {
	if c.Imagery != nil {
		return c.Imagery.Location
	}
	return c.Coordinate
}

// ScoredCandidate is a candidate view (one heading) with its visual scores.
type ScoredCandidate struct {
	Candidate      Candidate `json:"candidate" yaml:"candidate"`
	Heading        float64   `json:"heading" yaml:"heading"`
	ImageID        string    `json:"image_id" yaml:"image_id"`
	SemanticScore  float64   `json:"semantic_score" yaml:"semantic_score"`
	GeometricScore float64   `json:"geometric_score" yaml:"geometric_score"`
	Inliers        int       `json:"inliers" yaml:"inliers"`
	CombinedScore  float64   `json:"combined_score" yaml:"combined_score"`
}

// ValidatedCandidate is a scored candidate merged with the contextual verdict.
type ValidatedCandidate struct {
	ScoredCandidate      `yaml:",inline"`
	ContextualIsMatch    bool     `json:"contextual_is_match" yaml:"contextual_is_match"`
	ContextualConfidence float64  `json:"contextual_confidence" yaml:"contextual_confidence"`
	Reasoning            string   `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	MatchingElements     []string `json:"matching_elements,omitempty" yaml:"matching_elements,omitempty"`
	Discrepancies        []string `json:"discrepancies,omitempty" yaml:"discrepancies,omitempty"`
	FinalConfidence      float64  `json:"final_confidence" yaml:"final_confidence"`
}
