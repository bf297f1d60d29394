// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/geolocate/internal/geogrid"
	"github.com/pdiddy/geolocate/internal/report"
	"github.com/pdiddy/geolocate/pkg/types"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Print the search grid for a center and radius",
	Long: `Grid prints the lattice of points the broad scan would probe around a
center. Use it to estimate imagery lookups before a run: every point costs
one metadata request.`,
	RunE: runGrid,
}

func init() {
	gridCmd.Flags().Float64("lat", 0, "center latitude (default: search.default_center)")
	gridCmd.Flags().Float64("lon", 0, "center longitude (default: search.default_center)")
	gridCmd.Flags().Float64("radius", 0, "radius in meters (default: first of search.radii)")
	gridCmd.Flags().Float64("spacing", 0, "spacing in meters (default: search.grid_spacing)")
	gridCmd.Flags().String("format", "count", "output: count, csv, json, geojson")

	rootCmd.AddCommand(gridCmd)
}

func runGrid(cmd *cobra.Command, args []string) error {
	cfg := appConfig.Search

	center := cfg.DefaultCenter
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
		center.Lat, _ = cmd.Flags().GetFloat64("lat")
		center.Lon, _ = cmd.Flags().GetFloat64("lon")
	}
	if err := center.Validate(); err != nil {
		return err
	}
	radius, _ := cmd.Flags().GetFloat64("radius")
	if radius <= 0 {
		radius = cfg.Radii[0]
	}
	spacing, _ := cmd.Flags().GetFloat64("spacing")
	if spacing <= 0 {
		spacing = cfg.GridSpacing
	}

	points := geogrid.Generate(center, radius, spacing)

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "count", "":
		fmt.Printf("%d points within %.0f m of %s at %.0f m spacing\n", len(points), radius, center.String(), spacing)
		return nil
	case "csv":
		fmt.Println("lat,lon")
		for _, p := range points {
			fmt.Println(p.String())
		}
		return nil
	case "json":
		return report.JSON(os.Stdout, points)
	case "geojson":
		ranked := make([]types.ValidatedCandidate, len(points))
		for i, p := range points {
			ranked[i].Candidate = types.Candidate{Coordinate: p, Source: types.SourceGrid}
		}
		return report.GeoJSON(os.Stdout, ranked)
	default:
		return fmt.Errorf("unsupported format %q: use count, csv, json or geojson", format)
	}
}
