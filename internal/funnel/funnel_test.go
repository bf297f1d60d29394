// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package funnel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/geolocate/internal/geogrid"
	"github.com/pdiddy/geolocate/pkg/types"
)

var center = types.Coordinate{Lat: -23.5505, Lon: -46.6333}

// mockPlaces returns canned places per query and records every call.
type mockPlaces struct {
	mu      sync.Mutex
	results map[string][]types.Place
	fail    map[string]bool
	queries []string
}

func (m *mockPlaces) TextSearch(_ context.Context, query string, _ types.Coordinate, _ float64) ([]types.Place, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.fail[query] {
		return nil, errors.New("places unavailable")
	}
	return m.results[query], nil
}

// mockImagery answers lookups through a function.
type mockImagery struct {
	mu    sync.Mutex
	calls int
	fn    func(c types.Coordinate) (types.ImageryMeta, error)
}

func (m *mockImagery) Lookup(_ context.Context, c types.Coordinate) (types.ImageryMeta, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.fn(c)
}

func okMeta(c types.Coordinate) (types.ImageryMeta, error) {
	return types.ImageryMeta{Available: true, Status: "OK", CaptureDate: "2024-06", ImageryID: c.String(), Snapped: c}, nil
}

func testConfig() types.SearchConfig {
	cfg := types.DefaultConfig().Search
	cfg.GridSpacing = 100
	cfg.RefinementRadius = 40
	cfg.RefinementSpacing = 20
	return cfg
}

func TestQueries(t *testing.T) {
	f := New(nil, nil, testConfig(), 1, nil)

	got := f.Queries(Hints{City: "São Paulo", Neighborhood: "Moema", Extra: []string{"Residencial Bela Vista", "  gated   condominium "}})
	assert.Equal(t, []string{
		"residential condominium",
		"gated condominium",
		"residential condominium Moema",
		"residential condominium São Paulo",
		"Residencial Bela Vista",
	}, got)

	assert.Equal(t, []string{"residential condominium", "gated condominium"}, f.Queries(Hints{}))
}

func TestBroadScanMergesAndDedupes(t *testing.T) {
	near := types.Coordinate{Lat: center.Lat + 0.001, Lon: center.Lon}
	far := types.Coordinate{Lat: center.Lat + 1, Lon: center.Lon}
	places := &mockPlaces{results: map[string][]types.Place{
		"residential condominium": {
			{Name: "Condomínio Jardim", Coordinate: near, Address: "Rua A, 1"},
			{Name: "Far Away Towers", Coordinate: far},
		},
		"gated condominium": {
			{Name: "condominio  jardim", Coordinate: near},
		},
	}}
	f := New(places, nil, testConfig(), 2, nil)

	got, err := f.BroadScan(context.Background(), center, 300, Hints{})
	require.NoError(t, err)

	grid := geogrid.Generate(center, 300, 100)
	require.Len(t, got, 1+len(grid))

	assert.Equal(t, types.SourcePlaceSearch, got[0].Source)
	assert.Equal(t, "Condomínio Jardim", got[0].Name)
	assert.Equal(t, "Rua A, 1", got[0].Address)
	for _, c := range got[1:] {
		assert.Equal(t, types.SourceGrid, c.Source)
	}
	assert.ElementsMatch(t, []string{"residential condominium", "gated condominium"}, places.queries)
}

func TestBroadScanIsolatesQueryFailures(t *testing.T) {
	near := types.Coordinate{Lat: center.Lat, Lon: center.Lon + 0.001}
	places := &mockPlaces{
		results: map[string][]types.Place{"gated condominium": {{Name: "Vila", Coordinate: near}}},
		fail:    map[string]bool{"residential condominium": true},
	}
	f := New(places, nil, testConfig(), 1, nil)

	got, err := f.BroadScan(context.Background(), center, 200, Hints{})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "Vila", got[0].Name)
}

func TestBroadScanWithoutPlaceSearch(t *testing.T) {
	f := New(nil, nil, testConfig(), 1, nil)
	got, err := f.BroadScan(context.Background(), center, 150, Hints{City: "ignored"})
	require.NoError(t, err)
	assert.Len(t, got, len(geogrid.Generate(center, 150, 100)))
}

func TestBroadScanRejectsInvalidCenter(t *testing.T) {
	f := New(nil, nil, testConfig(), 1, nil)
	_, err := f.BroadScan(context.Background(), types.Coordinate{Lat: 120}, 150, Hints{})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestFilterByImageryAvailability(t *testing.T) {
	coords := []types.Coordinate{
		{Lat: 1, Lon: 1}, // ok
		{Lat: 2, Lon: 2}, // provider error
		{Lat: 3, Lon: 3}, // zero results
		{Lat: 4, Lon: 4}, // too old
		{Lat: 5, Lon: 5}, // malformed date
		{Lat: 6, Lon: 6}, // missing date
		{Lat: 7, Lon: 7}, // same panorama as the first
		{Lat: 8, Lon: 8}, // ok, bare year
	}
	imagery := &mockImagery{fn: func(c types.Coordinate) (types.ImageryMeta, error) {
		switch c.Lat {
		case 1:
			return types.ImageryMeta{Available: true, Status: "OK", CaptureDate: "2024-03", ImageryID: "pano-1", Snapped: types.Coordinate{Lat: 1.0001, Lon: 1}}, nil
		case 2:
			return types.ImageryMeta{}, errors.New("timeout")
		case 3:
			return types.ImageryMeta{Status: "ZERO_RESULTS"}, nil
		case 4:
			return types.ImageryMeta{Available: true, Status: "OK", CaptureDate: "2019-11", ImageryID: "pano-4"}, nil
		case 5:
			return types.ImageryMeta{Available: true, Status: "OK", CaptureDate: "sometime", ImageryID: "pano-5"}, nil
		case 6:
			return types.ImageryMeta{Available: true, Status: "OK", ImageryID: "pano-6"}, nil
		case 7:
			return types.ImageryMeta{Available: true, Status: "OK", CaptureDate: "2025-01", ImageryID: "pano-1"}, nil
		default:
			return types.ImageryMeta{Available: true, Status: "OK", CaptureDate: "2025", ImageryID: "pano-8"}, nil
		}
	}}

	var in []types.Candidate
	for _, c := range coords {
		in = append(in, types.Candidate{Coordinate: c, Source: types.SourceGrid})
	}

	f := New(nil, imagery, testConfig(), 3, nil)
	got, err := f.FilterByImageryAvailability(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "pano-1", got[0].Imagery.ID)
	assert.Equal(t, 2024, got[0].Imagery.CaptureYear)
	assert.Equal(t, types.Coordinate{Lat: 1.0001, Lon: 1}, got[0].Imagery.Location)
	assert.Equal(t, "pano-8", got[1].Imagery.ID)
	assert.Equal(t, types.Coordinate{Lat: 8, Lon: 8}, got[1].Imagery.Location, "missing snap falls back to the candidate")

	for _, c := range in {
		assert.Nil(t, c.Imagery, "input candidates must not be mutated")
	}
	assert.Equal(t, len(coords), imagery.calls)
}

func TestFilterAllLookupsFail(t *testing.T) {
	imagery := &mockImagery{fn: func(types.Coordinate) (types.ImageryMeta, error) {
		return types.ImageryMeta{}, errors.New("quota exceeded")
	}}
	f := New(nil, imagery, testConfig(), 2, nil)

	_, err := f.FilterByImageryAvailability(context.Background(), []types.Candidate{{Coordinate: center}, {Coordinate: center}})
	assert.ErrorIs(t, err, types.ErrProvidersUnavailable)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestFilterEmptyInput(t *testing.T) {
	f := New(nil, &mockImagery{fn: okMeta}, testConfig(), 2, nil)
	got, err := f.FilterByImageryAvailability(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRefine(t *testing.T) {
	imagery := &mockImagery{fn: okMeta}
	f := New(nil, imagery, testConfig(), 2, nil)

	got, err := f.Refine(context.Background(), center)
	require.NoError(t, err)

	want := geogrid.Generate(center, 40, 20)
	require.Len(t, got, len(want))
	for _, c := range got {
		assert.Equal(t, types.SourceRefinement, c.Source)
		assert.LessOrEqual(t, geogrid.Haversine(center, c.Coordinate), 40.0)
		require.NotNil(t, c.Imagery)
	}
}

func TestCaptureYear(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "2024-05", want: 2024},
		{in: "2023", want: 2023},
		{in: " 2025-12 ", want: 2025},
		{in: "", wantErr: true},
		{in: "24-05", wantErr: true},
		{in: "abcd-01", wantErr: true},
		{in: "0999-01", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CaptureYear(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFoldKey(t *testing.T) {
	assert.Equal(t, "condominio jardim", foldKey("  Condomínio   JARDIM "))
	assert.Equal(t, foldKey("São Paulo"), foldKey("Sao Paulo"))
}
