// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/geolocate/internal/metrics"
	"github.com/pdiddy/geolocate/internal/photo"
	"github.com/pdiddy/geolocate/internal/pipeline"
	"github.com/pdiddy/geolocate/internal/providers/claude"
	"github.com/pdiddy/geolocate/internal/providers/clip"
	"github.com/pdiddy/geolocate/internal/providers/google"
	"github.com/pdiddy/geolocate/internal/providers/ocr"
	"github.com/pdiddy/geolocate/internal/providers/sift"
	"github.com/pdiddy/geolocate/internal/report"
	"github.com/pdiddy/geolocate/internal/scoring"
	"github.com/pdiddy/geolocate/internal/store"
	"github.com/pdiddy/geolocate/internal/vectorstore"
	"github.com/pdiddy/geolocate/pkg/types"
)

var locateCmd = &cobra.Command{
	Use:   "locate <photo>",
	Short: "Locate the building in a photo",
	Long: `Locate searches street-level imagery around a center point for the building
in the photo. The center comes from --lat/--lon, else the photo's EXIF GPS
tags, else search.default_center. The search widens through search.radii and
stops as soon as one candidate reaches decision.min_confidence.

The decision is printed to stdout, written to --out as JSON, YAML, CSV and
GeoJSON, and recorded in the run history.`,
	Args: cobra.ExactArgs(1),
	RunE: runLocate,
}

func init() {
	locateCmd.Flags().Float64("lat", 0, "search center latitude")
	locateCmd.Flags().Float64("lon", 0, "search center longitude")
	locateCmd.Flags().String("city", "", "city name added to place-search queries")
	locateCmd.Flags().String("neighborhood", "", "neighborhood name added to place-search queries")
	locateCmd.Flags().StringSlice("hint", nil, "extra place-search query (repeatable)")
	locateCmd.Flags().String("out", "", "directory for result files (default: output_dir)")
	locateCmd.Flags().String("format", "table", "stdout format: table, json, yaml, csv, geojson")
	locateCmd.Flags().Duration("timeout", 0, "abort the search after this long (0 means no limit)")
	locateCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	locateCmd.Flags().Bool("no-save", false, "do not record the run in the history")

	rootCmd.AddCommand(locateCmd)
}

func runLocate(cmd *cobra.Command, args []string) error {
	cfg := appConfig

	img, err := photo.Load(args[0])
	if err != nil {
		return err
	}
	center, err := searchCenter(cmd, img, cfg.Search.DefaultCenter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		shutdown := serveMetrics(addr)
		defer shutdown()
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	p, closeDeps, err := buildPipeline(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer closeDeps()

	city, _ := cmd.Flags().GetString("city")
	neighborhood, _ := cmd.Flags().GetString("neighborhood")
	hints, _ := cmd.Flags().GetStringSlice("hint")

	fmt.Fprintf(os.Stderr, "Searching around %s (radii %v m)\n", center.String(), cfg.Search.Radii)
	dec, err := p.Run(ctx, pipeline.Request{
		Photo:        img,
		Center:       center,
		City:         city,
		Neighborhood: neighborhood,
		Hints:        hints,
	})
	if err != nil {
		if pipeline.IsProviderOutage(err) {
			return fmt.Errorf("providers unavailable, check API keys and quotas: %w", err)
		}
		return err
	}

	if noSave, _ := cmd.Flags().GetBool("no-save"); !noSave {
		// Use a fresh context so a cancelled search is still recorded.
		id, err := st.SaveDecision(context.Background(), dec)
		if err != nil {
			log.Warn("recording run failed", "err", err)
		} else {
			fmt.Fprintf(os.Stderr, "Recorded run %s\n", id)
		}
	}

	outDir, _ := cmd.Flags().GetString("out")
	if outDir == "" {
		outDir = cfg.OutputDir
	}
	paths, err := report.Save(outDir, dec)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", p)
	}

	format, _ := cmd.Flags().GetString("format")
	return report.Write(os.Stdout, dec, format)
}

// searchCenter picks the flag coordinate, then EXIF GPS, then the default.
func searchCenter(cmd *cobra.Command, img types.Image, fallback types.Coordinate) (types.Coordinate, error) {
	latSet, lonSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
	if latSet != lonSet {
		return types.Coordinate{}, fmt.Errorf("--lat and --lon must be given together")
	}
	if latSet {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		c := types.Coordinate{Lat: lat, Lon: lon}
		return c, c.Validate()
	}
	if c, ok := photo.GPS(img); ok {
		fmt.Fprintf(os.Stderr, "Using EXIF GPS position %s\n", c.String())
		return c, nil
	}
	return fallback, nil
}

// buildPipeline constructs every provider from cfg. The returned func
// releases native resources.
func buildPipeline(ctx context.Context, cfg types.Config, st *store.Store) (*pipeline.Pipeline, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}
	fail := func(err error) (*pipeline.Pipeline, func(), error) {
		closeAll()
		return nil, nil, err
	}
	delay := cfg.Concurrency.ProviderDelay

	maps, err := google.New(cfg.Google, cfg.Search.PlacePages, delay, log)
	if err != nil {
		return fail(err)
	}
	ai, err := claude.New(cfg.AI, delay, log)
	if err != nil {
		return fail(err)
	}
	encoder, err := clip.NewEncoder(cfg.Embedding)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, encoder)
	matcher, err := sift.New(cfg.Matcher)
	if err != nil {
		return fail(err)
	}

	deps := pipeline.Deps{
		Places:    maps,
		Metadata:  store.NewCachedMetadata(maps, st, log),
		Fetch:     maps,
		Embedder:  encoder,
		Matcher:   matcher,
		Vision:    ai,
		Validator: ai,
		Address:   ai,
		Logger:    log,
	}

	if cfg.OCR.Enabled {
		reader, err := ocr.New(cfg.OCR)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, reader)
		deps.TextReader = reader
	}

	vectors, err := vectorstore.Open(ctx, cfg.Redis, encoder.Name())
	if err != nil {
		// The shared tier is an optimisation; run without it.
		log.Warn("embedding store unavailable", "err", err)
	} else if vectors != nil {
		closers = append(closers, vectors)
		deps.Cache = scoring.NewEmbeddingCache(cfg.Scoring.CacheSize, vectors, log)
	}

	p, err := pipeline.New(cfg, deps)
	if err != nil {
		return fail(err)
	}
	return p, closeAll, nil
}

// serveMetrics exposes /metrics on addr until the returned func is called.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", "err", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
