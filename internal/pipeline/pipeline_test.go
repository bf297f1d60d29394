// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/geolocate/internal/geogrid"
	"github.com/pdiddy/geolocate/pkg/types"
)

var center = types.Coordinate{Lat: -23.5505, Lon: -46.6333}

// world stubs every provider. Views whose location satisfies target look
// exactly like the query and pass contextual validation; all others fall
// below the semantic gate.
type world struct {
	mu        sync.Mutex
	radii     []float64
	queries   []string
	lookups   int
	downloads int
	views     map[string]types.Coordinate

	target      func(c types.Coordinate) bool
	places      []types.Place
	available   bool
	contextConf float64
	failQuery   bool
	failAt      func(c types.Coordinate) bool
	onSearch    func()
}

func newWorld(target func(c types.Coordinate) bool) *world {
	return &world{
		views:       make(map[string]types.Coordinate),
		target:      target,
		available:   true,
		contextConf: 0.9,
	}
}

func (w *world) TextSearch(_ context.Context, q string, _ types.Coordinate, radius float64) ([]types.Place, error) {
	w.mu.Lock()
	w.radii = append(w.radii, radius)
	w.queries = append(w.queries, q)
	hook := w.onSearch
	w.mu.Unlock()
	if hook != nil {
		hook()
	}
	return w.places, nil
}

func (w *world) Lookup(_ context.Context, c types.Coordinate) (types.ImageryMeta, error) {
	w.mu.Lock()
	w.lookups++
	w.mu.Unlock()
	return types.ImageryMeta{
		Available:   w.available,
		Status:      "OK",
		CaptureDate: "2024-03",
		ImageryID:   "pano:" + c.String(),
		Snapped:     c,
	}, nil
}

func (w *world) Download(_ context.Context, c types.Coordinate, heading float64) (types.Image, error) {
	img := types.NewImage([]byte(fmt.Sprintf("%s@%.0f", c, heading)), "image/jpeg")
	w.mu.Lock()
	defer w.mu.Unlock()
	w.downloads++
	w.views[img.ID] = c
	return img, nil
}

func (w *world) Embed(_ context.Context, img types.Image) ([]float64, error) {
	if string(img.Data) == "query" {
		return []float64{1, 0}, nil
	}
	w.mu.Lock()
	c, ok := w.views[img.ID]
	w.mu.Unlock()
	if !ok {
		return nil, errors.New("unknown image")
	}
	if w.target(c) {
		return []float64{1, 0}, nil
	}
	return []float64{0.3, math.Sqrt(1 - 0.09)}, nil
}

func (w *world) Match(context.Context, types.Image, types.Image) (int, error) {
	return 60, nil
}

func (w *world) Analyze(_ context.Context, img types.Image) (types.Description, error) {
	if string(img.Data) == "query" && w.failQuery {
		return types.Description{}, errors.New("vision unavailable")
	}
	return types.Description{}, nil
}

func (w *world) Validate(_ context.Context, _, _ types.Description, at types.Coordinate, _ float64) (types.Verdict, error) {
	if w.failAt != nil && w.failAt(at) {
		return types.Verdict{}, fmt.Errorf("%w: truncated reply", types.ErrMalformedResponse)
	}
	if w.target(at) {
		return types.Verdict{IsMatch: true, Confidence: w.contextConf, Reasoning: "same facade"}, nil
	}
	return types.Verdict{IsMatch: false, Confidence: 0.2}, nil
}

func (w *world) searchedRadii() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := slices.Clone(w.radii)
	slices.Sort(out)
	return slices.Compact(out)
}

// testConfig keeps grids small: 1 km spacing, one heading, no refinement.
// With default weights a perfect visual match plus a 0.9 contextual match
// fuses to 0.825, so the threshold is set just below.
func testConfig() types.Config {
	cfg := types.DefaultConfig()
	cfg.Search.Radii = []float64{2000, 3000, 5000}
	cfg.Search.GridSpacing = 1000
	cfg.Search.Headings = []float64{0}
	cfg.Search.Refine = false
	cfg.Decision.MinConfidence = 0.8
	cfg.Concurrency.Workers = 4
	cfg.Concurrency.ProviderDelay = 0
	return cfg
}

func newPipeline(t *testing.T, cfg types.Config, w *world, extra func(d *Deps)) *Pipeline {
	t.Helper()
	deps := Deps{
		Places:    w,
		Metadata:  w,
		Fetch:     w,
		Embedder:  w,
		Matcher:   w,
		Vision:    w,
		Validator: w,
	}
	if extra != nil {
		extra(&deps)
	}
	p, err := New(cfg, deps)
	require.NoError(t, err)
	return p
}

func request() Request {
	return Request{Photo: types.NewImage([]byte("query"), "image/jpeg"), Center: center, City: "São Paulo"}
}

func within(lo, hi float64) func(c types.Coordinate) bool {
	return func(c types.Coordinate) bool {
		d := geogrid.Haversine(center, c)
		return d > lo && d <= hi
	}
}

func TestRunStopsAtFirstConfidentRadius(t *testing.T) {
	w := newWorld(func(c types.Coordinate) bool { return c == center })
	p := newPipeline(t, testConfig(), w, nil)

	dec, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccess, dec.Status)
	require.NotNil(t, dec.Best)
	assert.Equal(t, center, dec.Best.Candidate.Location())
	assert.InDelta(t, 0.825, dec.Best.FinalConfidence, 1e-9)
	assert.True(t, dec.Found())

	assert.Equal(t, []float64{2000}, w.searchedRadii(), "larger radii must not be attempted")
	assert.Equal(t, len(geogrid.Generate(center, 2000, 1000)), w.lookups)
	require.Len(t, dec.Attempts, 1)
	assert.Equal(t, 2000.0, dec.Attempts[0].Radius)
}

func TestRunEscalatesUntilTargetInRange(t *testing.T) {
	w := newWorld(within(2000, 3000))
	p := newPipeline(t, testConfig(), w, nil)

	dec, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccess, dec.Status)
	assert.Equal(t, []float64{2000, 3000}, w.searchedRadii())
	require.Len(t, dec.Attempts, 2)
	assert.Zero(t, dec.Attempts[0].Ranked)
	assert.Positive(t, dec.Attempts[1].Ranked)

	d := geogrid.Haversine(center, dec.Best.Candidate.Location())
	assert.Greater(t, d, 2000.0)
	assert.LessOrEqual(t, d, 3000.0)
}

func TestRunCarriesBestAcrossRadii(t *testing.T) {
	w := newWorld(func(c types.Coordinate) bool { return c == center })
	w.contextConf = 0.5
	p := newPipeline(t, testConfig(), w, nil)

	dec, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, types.StatusInsufficientConfidence, dec.Status)
	assert.False(t, dec.Found())
	require.NotNil(t, dec.Best, "best-seen candidate is returned for inspection")
	assert.Equal(t, center, dec.Best.Candidate.Location())
	assert.InDelta(t, 0.725, dec.Best.FinalConfidence, 1e-9)
	assert.Contains(t, dec.Reason, "below threshold")
	assert.Len(t, dec.Attempts, 3)

	// Imagery already scored at a smaller radius is not downloaded again.
	assert.Equal(t, len(geogrid.Generate(center, 5000, 1000)), w.downloads)
}

func TestRunNoCandidates(t *testing.T) {
	w := newWorld(func(types.Coordinate) bool { return true })
	w.available = false
	p := newPipeline(t, testConfig(), w, nil)

	dec, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, types.StatusNoCandidates, dec.Status)
	assert.Nil(t, dec.Best)
	assert.Contains(t, dec.Reason, "5000 m")
	assert.Len(t, dec.Attempts, 3)
	assert.Zero(t, w.downloads)
}

func TestRunNothingValidated(t *testing.T) {
	w := newWorld(func(types.Coordinate) bool { return false })
	p := newPipeline(t, testConfig(), w, nil)

	dec, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, types.StatusInsufficientConfidence, dec.Status)
	assert.Nil(t, dec.Best)
	assert.Contains(t, dec.Reason, "no candidate passed")
}

func TestRunHonoursCancellation(t *testing.T) {
	w := newWorld(func(c types.Coordinate) bool { return c == center })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.onSearch = cancel
	p := newPipeline(t, testConfig(), w, nil)

	dec, err := p.Run(ctx, request())
	require.NoError(t, err)

	assert.Equal(t, types.StatusInsufficientConfidence, dec.Status)
	assert.Contains(t, dec.Reason, "search cancelled")
	assert.Equal(t, []float64{2000}, w.searchedRadii())
}

func TestRunIsolatesValidationFailures(t *testing.T) {
	w := newWorld(within(-1, 1100))
	w.failAt = func(c types.Coordinate) bool { return c == center }
	p := newPipeline(t, testConfig(), w, nil)

	dec, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccess, dec.Status)
	require.NotNil(t, dec.Best)
	assert.NotEqual(t, center, dec.Best.Candidate.Location())
	assert.Equal(t, 4, dec.Attempts[0].Validated)
}

func TestRunAllValidationsFail(t *testing.T) {
	w := newWorld(func(c types.Coordinate) bool { return c == center })
	w.failAt = func(types.Coordinate) bool { return true }
	p := newPipeline(t, testConfig(), w, nil)

	_, err := p.Run(context.Background(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrProvidersUnavailable)
	assert.True(t, IsProviderOutage(err))
}

func TestRunQueryDescriptionFailure(t *testing.T) {
	w := newWorld(func(types.Coordinate) bool { return true })
	w.failQuery = true
	p := newPipeline(t, testConfig(), w, nil)

	_, err := p.Run(context.Background(), request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "describing query photo")
	assert.Empty(t, w.searchedRadii())
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	w := newWorld(func(types.Coordinate) bool { return true })
	p := newPipeline(t, testConfig(), w, nil)

	req := request()
	req.Center = types.Coordinate{Lat: 120}
	_, err := p.Run(context.Background(), req)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	req = request()
	req.Photo = types.Image{}
	_, err = p.Run(context.Background(), req)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

type stubReader struct{ lines []string }

func (s stubReader) ReadText(context.Context, types.Image) ([]string, error) {
	return s.lines, nil
}

type stubResolver struct {
	addr types.Address
	err  error
}

func (s stubResolver) Resolve(context.Context, types.ValidatedCandidate, types.Description) (types.Address, error) {
	return s.addr, s.err
}

func TestRunPlaceSearchCandidateAndAddress(t *testing.T) {
	condo := types.Coordinate{Lat: -23.5531, Lon: -46.6301}
	w := newWorld(func(c types.Coordinate) bool { return c == condo })
	w.places = []types.Place{{
		ID:         "p1",
		Name:       "Residencial Bela Vista",
		Address:    "Rua Augusta, 100 - São Paulo",
		Coordinate: condo,
	}}

	tests := []struct {
		name     string
		resolver AddressResolver
		want     string
	}{
		{"resolver", stubResolver{addr: types.Address{Formatted: "Rua Augusta, 102", Confidence: 0.9}}, "Rua Augusta, 102"},
		{"fallback to place address", stubResolver{err: errors.New("quota")}, "Rua Augusta, 100 - São Paulo"},
		{"no resolver", nil, "Rua Augusta, 100 - São Paulo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, testConfig(), w, func(d *Deps) {
				d.TextReader = stubReader{lines: []string{"Rua Augusta"}}
				d.Address = tt.resolver
			})

			dec, err := p.Run(context.Background(), request())
			require.NoError(t, err)
			require.Equal(t, types.StatusSuccess, dec.Status)
			assert.Equal(t, types.SourcePlaceSearch, dec.Best.Candidate.Source)
			assert.Equal(t, "Residencial Bela Vista", dec.Best.Candidate.Name)
			require.NotNil(t, dec.Address)
			assert.Equal(t, tt.want, dec.Address.Formatted)
		})
	}

	assert.Contains(t, w.queries, "Rua Augusta", "OCR lines become place queries")
}

func TestNewRequiresCapabilities(t *testing.T) {
	w := newWorld(func(types.Coordinate) bool { return true })

	_, err := New(testConfig(), Deps{Metadata: w, Fetch: w, Embedder: w, Vision: w})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	cfg := testConfig()
	cfg.Scoring.Weights.Contextual = 0.5
	_, err = New(cfg, Deps{Metadata: w, Fetch: w, Embedder: w, Vision: w, Validator: w})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestRunRefinementJoinsRanking(t *testing.T) {
	w := newWorld(func(c types.Coordinate) bool { return geogrid.Haversine(center, c) <= 50 })
	cfg := testConfig()
	cfg.Search.Refine = true
	cfg.Search.RefinementRadius = 40
	cfg.Search.RefinementSpacing = 20
	p := newPipeline(t, cfg, w, nil)

	dec, err := p.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, dec.Status)

	coarse := len(geogrid.Generate(center, 2000, 1000))
	fine := len(geogrid.Generate(center, 40, 20))
	assert.Equal(t, coarse+fine, w.lookups)
	assert.Equal(t, coarse+fine-1, w.downloads, "the center view is not downloaded twice")

	var refined int
	for _, vc := range dec.Ranked {
		if vc.Candidate.Source == types.SourceRefinement {
			refined++
		}
	}
	assert.Positive(t, refined)
	assert.Equal(t, types.SourceGrid, dec.Ranked[0].Candidate.Source, "ties keep the coarse candidate first")
}

func TestRunRetriesCandidatesCutByDownloadBudget(t *testing.T) {
	inner := geogrid.Generate(center, 2000, 1000)
	last := inner[len(inner)-1]
	w := newWorld(func(c types.Coordinate) bool { return c == last })

	cfg := testConfig()
	cfg.Search.Radii = []float64{2000, 2100}
	cfg.Search.MaxImageryDownloads = len(inner) - 1
	p := newPipeline(t, cfg, w, nil)

	dec, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccess, dec.Status)
	require.NotNil(t, dec.Best)
	assert.Equal(t, last, dec.Best.Candidate.Location())
	require.Len(t, dec.Attempts, 2)
	assert.Equal(t, len(inner)-1, dec.Attempts[0].Views)

	outer := geogrid.Generate(center, 2100, 1000)
	require.LessOrEqual(t, len(outer)-len(inner)+1, cfg.Search.MaxImageryDownloads)
	assert.Equal(t, len(outer), w.downloads, "every point is downloaded exactly once")
}
