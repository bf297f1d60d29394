// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders decisions for people and for other tools: a
// terminal table, JSON, YAML, a candidate CSV, and a GeoJSON map layer.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/geolocate/pkg/types"
)

// Formats lists the renderers accepted by Write.
var Formats = []string{"table", "json", "yaml", "csv", "geojson"}

// Write renders dec in the named format.
func Write(w io.Writer, dec types.Decision, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return Table(w, dec)
	case "json":
		return JSON(w, dec)
	case "yaml":
		return YAML(w, dec)
	case "csv":
		return CSV(w, dec.Ranked)
	case "geojson":
		return GeoJSON(w, dec.Ranked)
	default:
		return fmt.Errorf("unsupported format %q: use one of %s", format, strings.Join(Formats, ", "))
	}
}

// Table prints the decision and the ranked candidates.
func Table(w io.Writer, dec types.Decision) error {
	fmt.Fprintf(w, "Status:  %s\n", dec.Status)
	if dec.Reason != "" {
		fmt.Fprintf(w, "Reason:  %s\n", dec.Reason)
	}
	if dec.Best != nil {
		loc := dec.Best.Candidate.Location()
		fmt.Fprintf(w, "Best:    %s (confidence %.3f)\n", loc.String(), dec.Best.FinalConfidence)
		fmt.Fprintf(w, "View:    %s\n", StreetViewLink(loc, dec.Best.Heading))
	}
	if dec.Address != nil && dec.Address.Formatted != "" {
		fmt.Fprintf(w, "Address: %s\n", dec.Address.Formatted)
	}
	fmt.Fprintf(w, "Elapsed: %s\n", dec.Elapsed.Round(1e6))

	if len(dec.Ranked) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-4s  %-23s  %-7s  %-8s  %-9s  %-8s  %-5s  %-8s  %s\n",
		"Rank", "Location", "Heading", "Semantic", "Geometric", "Context", "Match", "Final", "Name")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for i, vc := range dec.Ranked {
		name := vc.Candidate.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		fmt.Fprintf(w, "%-4d  %-23s  %-7.0f  %-8.3f  %-9.3f  %-8.3f  %-5t  %-8.3f  %s\n",
			i+1, vc.Candidate.Location().String(), vc.Heading, vc.SemanticScore, vc.GeometricScore,
			vc.ContextualConfidence, vc.ContextualIsMatch, vc.FinalConfidence, name)
	}
	return nil
}

// JSON writes dec as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML writes dec as YAML.
func YAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}

var csvHeader = []string{
	"rank", "lat", "lon", "source", "name", "address", "heading", "imagery_id", "capture_date",
	"semantic", "geometric", "inliers", "combined", "contextual_match", "contextual", "final", "street_view",
}

// CSV writes one row per ranked candidate.
func CSV(w io.Writer, ranked []types.ValidatedCandidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for i, vc := range ranked {
		loc := vc.Candidate.Location()
		var imageryID, captured string
		if im := vc.Candidate.Imagery; im != nil {
			imageryID, captured = im.ID, im.CaptureDate
		}
		row := []string{
			strconv.Itoa(i + 1), f(loc.Lat), f(loc.Lon), string(vc.Candidate.Source), vc.Candidate.Name,
			vc.Candidate.Address, f(vc.Heading), imageryID, captured,
			f(vc.SemanticScore), f(vc.GeometricScore), strconv.Itoa(vc.Inliers), f(vc.CombinedScore),
			strconv.FormatBool(vc.ContextualIsMatch), f(vc.ContextualConfidence), f(vc.FinalConfidence),
			StreetViewLink(loc, vc.Heading),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes decision.json, decision.yaml, candidates.csv and
// candidates.geojson into dir and returns the paths written.
func Save(dir string, dec types.Decision) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	files := []struct {
		name   string
		render func(io.Writer) error
	}{
		{"decision.json", func(w io.Writer) error { return JSON(w, dec) }},
		{"decision.yaml", func(w io.Writer) error { return YAML(w, dec) }},
		{"candidates.csv", func(w io.Writer) error { return CSV(w, dec.Ranked) }},
		{"candidates.geojson", func(w io.Writer) error { return GeoJSON(w, dec.Ranked) }},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeFile(path, f.render); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, render func(io.Writer) error) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := render(out); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return out.Close()
}
