// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package funnel produces imagery-backed location candidates: a broad scan
// merging place search with a coordinate grid, an availability filter against
// street-level imagery metadata, and a dense refinement around one point.
package funnel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pdiddy/geolocate/internal/geogrid"
	"github.com/pdiddy/geolocate/internal/logger"
	"github.com/pdiddy/geolocate/internal/metrics"
	"github.com/pdiddy/geolocate/internal/throttle"
	"github.com/pdiddy/geolocate/pkg/types"
)

// PlaceSearch finds named places near a coordinate. Implementations page
// through results internally.
type PlaceSearch interface {
	TextSearch(ctx context.Context, query string, center types.Coordinate, radius float64) ([]types.Place, error)
}

// ImageryMetadata reports street-level imagery availability at a coordinate.
type ImageryMetadata interface {
	Lookup(ctx context.Context, c types.Coordinate) (types.ImageryMeta, error)
}

// Hints narrow the place search.
type Hints struct {
	City         string
	Neighborhood string

	// Extra are free-form queries such as a condominium name read off the photo.
	Extra []string
}

// Funnel generates and filters candidates. A nil PlaceSearch restricts the
// broad scan to the grid.
type Funnel struct {
	places  PlaceSearch
	imagery ImageryMetadata
	cfg     types.SearchConfig
	workers int
	log     *slog.Logger
}

// New creates a Funnel. workers bounds concurrent provider calls.
func New(places PlaceSearch, imagery ImageryMetadata, cfg types.SearchConfig, workers int, log *slog.Logger) *Funnel {
	if workers < 1 {
		workers = 1
	}
	return &Funnel{
		places:  places,
		imagery: imagery,
		cfg:     cfg,
		workers: workers,
		log:     logger.OrDiscard(log),
	}
}

// Queries returns the place-search queries for the given hints, without
// duplicates, in a stable order.
func (f *Funnel) Queries(h Hints) []string {
	var queries []string
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.Join(strings.Fields(q), " ")
		key := foldKey(q)
		if q == "" || seen[key] {
			return
		}
		seen[key] = true
		queries = append(queries, q)
	}

	for _, q := range f.cfg.PlaceQueries {
		add(q)
	}
	base := "residential condominium"
	if len(f.cfg.PlaceQueries) > 0 {
		base = f.cfg.PlaceQueries[0]
	}
	if h.Neighborhood != "" {
		add(base + " " + h.Neighborhood)
	}
	if h.City != "" {
		add(base + " " + h.City)
	}
	for _, e := range h.Extra {
		add(e)
	}
	return queries
}

// BroadScan merges place-search results within radius of center with the
// grid at the configured spacing. Place results are deduplicated by name and
// coordinate and come first. A failed query is logged and skipped.
func (f *Funnel) BroadScan(ctx context.Context, center types.Coordinate, radius float64, h Hints) ([]types.Candidate, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}

	var candidates []types.Candidate
	if f.places != nil {
		queries := f.Queries(h)
		outcomes := throttle.Map(ctx, f.workers, queries, func(ctx context.Context, q string) ([]types.Place, error) {
			return f.places.TextSearch(ctx, q, center, radius)
		})

		seen := make(map[string]bool)
		for i, o := range outcomes {
			if o.Err != nil {
				f.log.Warn("place search failed", "query", queries[i], "err", o.Err)
				continue
			}
			for _, p := range o.Value {
				if geogrid.Haversine(center, p.Coordinate) > radius {
					continue
				}
				key := placeKey(p)
				if seen[key] {
					continue
				}
				seen[key] = true
				candidates = append(candidates, types.Candidate{
					Coordinate: p.Coordinate,
					Source:     types.SourcePlaceSearch,
					Name:       p.Name,
					Address:    p.Address,
				})
			}
		}
		metrics.FunnelCandidates.WithLabelValues("places").Observe(float64(len(candidates)))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	grid := geogrid.Generate(center, radius, f.cfg.GridSpacing)
	for _, p := range grid {
		candidates = append(candidates, types.Candidate{Coordinate: p, Source: types.SourceGrid})
	}
	metrics.FunnelCandidates.WithLabelValues("broad_scan").Observe(float64(len(candidates)))

	f.log.Info("broad scan", "radius", radius, "places", len(candidates)-len(grid), "grid", len(grid))
	return candidates, nil
}

// FilterByImageryAvailability keeps candidates whose imagery status is OK and
// whose capture year is at least the configured minimum, attaching the
// imagery reference. Candidates snapping to an imagery ID already kept are
// dropped. A failed lookup or an unparseable capture date drops only that
// candidate. If every lookup fails the error wraps ErrProvidersUnavailable.
func (f *Funnel) FilterByImageryAvailability(ctx context.Context, candidates []types.Candidate) ([]types.Candidate, error) {
	outcomes := throttle.Map(ctx, f.workers, candidates, func(ctx context.Context, c types.Candidate) (types.ImageryMeta, error) {
		return f.imagery.Lookup(ctx, c.Coordinate)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if throttle.AllFailed(outcomes) {
		return nil, fmt.Errorf("imagery metadata: %w (%d lookups, first error: %v)",
			types.ErrProvidersUnavailable, len(outcomes), outcomes[0].Err)
	}

	var kept []types.Candidate
	seen := make(map[string]bool)
	var failed, unavailable, stale, undated int
	for i, o := range outcomes {
		c := candidates[i]
		if o.Err != nil {
			failed++
			f.log.Debug("imagery lookup failed", "coordinate", c.Coordinate.String(), "err", o.Err)
			continue
		}
		meta := o.Value
		if !meta.Available || !strings.EqualFold(meta.Status, "OK") {
			unavailable++
			continue
		}
		year, err := CaptureYear(meta.CaptureDate)
		if err != nil {
			undated++
			continue
		}
		if year < f.cfg.MinCaptureYear {
			stale++
			continue
		}
		if meta.ImageryID != "" {
			if seen[meta.ImageryID] {
				continue
			}
			seen[meta.ImageryID] = true
		}

		loc := meta.Snapped
		if loc.IsZero() {
			loc = c.Coordinate
		}
		kept = append(kept, c.WithImagery(types.Imagery{
			ID:          meta.ImageryID,
			CaptureDate: meta.CaptureDate,
			CaptureYear: year,
			Location:    loc,
		}))
	}

	metrics.FunnelCandidates.WithLabelValues("imagery").Observe(float64(len(kept)))
	f.log.Info("imagery filter", "in", len(candidates), "kept", len(kept),
		"failed", failed, "unavailable", unavailable, "undated", undated, "stale", stale)
	return kept, nil
}

// Refine runs a dense grid around c and filters it by imagery availability.
func (f *Funnel) Refine(ctx context.Context, c types.Coordinate) ([]types.Candidate, error) {
	points := geogrid.Generate(c, f.cfg.RefinementRadius, f.cfg.RefinementSpacing)
	candidates := make([]types.Candidate, 0, len(points))
	for _, p := range points {
		candidates = append(candidates, types.Candidate{Coordinate: p, Source: types.SourceRefinement})
	}
	f.log.Info("refinement", "center", c.String(), "points", len(points))
	return f.FilterByImageryAvailability(ctx, candidates)
}

// CaptureYear parses the year out of a "YYYY-MM" or "YYYY" capture date.
func CaptureYear(date string) (int, error) {
	date = strings.TrimSpace(date)
	yearPart, _, _ := strings.Cut(date, "-")
	if len(yearPart) != 4 {
		return 0, fmt.Errorf("malformed capture date %q", date)
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil || year < 1900 {
		return 0, fmt.Errorf("malformed capture date %q", date)
	}
	return year, nil
}
