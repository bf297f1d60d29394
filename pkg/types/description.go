// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Text is a string that also accepts JSON numbers and booleans. Vision model
// replies are loose about scalar types ("floors_visible": 4 vs "4").
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*t = Text(n.String())
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = Text(strconv.FormatBool(v))
	return nil
}

// Architecture describes the facade of the photographed building.
type Architecture struct {
	BuildingType  Text   `json:"building_type" yaml:"building_type"`
	FloorsVisible Text   `json:"floors_visible" yaml:"floors_visible"`
	Style         Text   `json:"style" yaml:"style"`
	FacadeColors  []Text `json:"facade_colors" yaml:"facade_colors"`
	Materials     []Text `json:"materials" yaml:"materials"`
	RoofType      Text   `json:"roof_type" yaml:"roof_type"`
}

// DistinctiveFeatures lists elements that discriminate between neighbours.
type DistinctiveFeatures struct {
	Balconies      Text   `json:"balconies" yaml:"balconies"`
	Windows        Text   `json:"windows" yaml:"windows"`
	Gate           Text   `json:"gate" yaml:"gate"`
	Walls          Text   `json:"walls" yaml:"walls"`
	UniqueElements []Text `json:"unique_elements" yaml:"unique_elements"`
}

// UrbanContext describes the surroundings.
type UrbanContext struct {
	StreetType    Text   `json:"street_type" yaml:"street_type"`
	Sidewalk      Text   `json:"sidewalk" yaml:"sidewalk"`
	Vegetation    Text   `json:"vegetation" yaml:"vegetation"`
	Neighbors     Text   `json:"neighbors" yaml:"neighbors"`
	UrbanElements []Text `json:"urban_elements" yaml:"urban_elements"`
}

// VisibleText holds any legible text in the image. These are the strongest
// place-search hints.
type VisibleText struct {
	CondoName   Text   `json:"condo_name" yaml:"condo_name"`
	StreetSigns []Text `json:"street_signs" yaml:"street_signs"`
	Numbers     []Text `json:"numbers" yaml:"numbers"`
	Businesses  []Text `json:"businesses" yaml:"businesses"`
}

// Photography describes how the photo was taken.
type Photography struct {
	Angle     Text `json:"angle" yaml:"angle"`
	Distance  Text `json:"distance" yaml:"distance"`
	TimeOfDay Text `json:"time_of_day" yaml:"time_of_day"`
	Weather   Text `json:"weather" yaml:"weather"`
}

// Description is the structured analysis of one image.
type Description struct {
	Architecture        Architecture        `json:"architecture" yaml:"architecture"`
	DistinctiveFeatures DistinctiveFeatures `json:"distinctive_features" yaml:"distinctive_features"`
	UrbanContext        UrbanContext        `json:"urban_context" yaml:"urban_context"`
	VisibleText         VisibleText         `json:"visible_text" yaml:"visible_text"`
	Photography         Photography         `json:"photography" yaml:"photography"`
}

// TextHints returns the non-empty visible-text entries usable as place-search
// queries: the condominium name first, then street signs and businesses.
func (d Description) TextHints() []string {
	var hints []string
	add := func(t Text) {
		s := strings.TrimSpace(string(t))
		if s == "" || strings.EqualFold(s, "none") || strings.EqualFold(s, "null") {
			return
		}
		hints = append(hints, s)
	}
	add(d.VisibleText.CondoName)
	for _, t := range d.VisibleText.StreetSigns {
		add(t)
	}
	for _, t := range d.VisibleText.Businesses {
		add(t)
	}
	return hints
}

// Verdict is the contextual validation of one candidate against the query.
type Verdict struct {
	IsMatch          bool     `json:"is_match" yaml:"is_match"`
	Confidence       float64  `json:"confidence" yaml:"confidence"`
	Reasoning        string   `json:"reasoning" yaml:"reasoning"`
	MatchingElements []string `json:"matching_elements" yaml:"matching_elements"`
	Discrepancies    []string `json:"discrepancies" yaml:"discrepancies"`
	LikelyChanges    []string `json:"likely_changes,omitempty" yaml:"likely_changes,omitempty"`
}

// Address is a resolved postal address for a decided location.
type Address struct {
	Street       string  `json:"street" yaml:"street"`
	Number       string  `json:"number" yaml:"number"`
	Neighborhood string  `json:"neighborhood" yaml:"neighborhood"`
	City         string  `json:"city" yaml:"city"`
	State        string  `json:"state" yaml:"state"`
	PostalCode   string  `json:"postal_code" yaml:"postal_code"`
	Formatted    string  `json:"formatted" yaml:"formatted"`
	Confidence   float64 `json:"confidence" yaml:"confidence"`
}
