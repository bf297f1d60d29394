// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{
			name:   "weights not summing to one",
			mutate: func(c *Config) { c.Scoring.Weights.Contextual = 0.3 },
			errMsg: "weights sum to",
		},
		{
			name:   "negative weight",
			mutate: func(c *Config) { c.Scoring.Weights = Weights{Semantic: 1.2, Geometric: -0.2} },
			errMsg: "semantic weight",
		},
		{
			name:   "only contextual weight",
			mutate: func(c *Config) { c.Scoring.Weights = Weights{Contextual: 1} },
			errMsg: "visual weights are both zero",
		},
		{
			name:   "gate above one",
			mutate: func(c *Config) { c.Scoring.SemanticGate = 1.5 },
			errMsg: "semantic gate",
		},
		{
			name:   "min confidence NaN",
			mutate: func(c *Config) { c.Decision.MinConfidence = math.NaN() },
			errMsg: "min confidence",
		},
		{
			name:   "no radii",
			mutate: func(c *Config) { c.Search.Radii = nil },
			errMsg: "at least one search radius",
		},
		{
			name:   "descending radii",
			mutate: func(c *Config) { c.Search.Radii = []float64{3000, 2000} },
			errMsg: "strictly ascending",
		},
		{
			name:   "zero spacing",
			mutate: func(c *Config) { c.Search.GridSpacing = 0 },
			errMsg: "grid spacing",
		},
		{
			name:   "refinement without spacing",
			mutate: func(c *Config) { c.Search.RefinementSpacing = 0 },
			errMsg: "refinement radius and spacing",
		},
		{
			name:   "no headings",
			mutate: func(c *Config) { c.Search.Headings = nil },
			errMsg: "heading",
		},
		{
			name:   "zero top-k",
			mutate: func(c *Config) { c.Scoring.TopK = 0 },
			errMsg: "top-k",
		},
		{
			name:   "zero workers",
			mutate: func(c *Config) { c.Concurrency.Workers = 0 },
			errMsg: "workers",
		},
		{
			name:   "negative delay",
			mutate: func(c *Config) { c.Concurrency.ProviderDelay = -time.Second },
			errMsg: "provider delay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestWeightsToleratesRounding(t *testing.T) {
	w := Weights{Semantic: 0.1 + 0.2, Geometric: 0.5, Contextual: 0.2}
	assert.NoError(t, w.Validate())
}

func TestCoordinateValidate(t *testing.T) {
	assert.NoError(t, Coordinate{Lat: -23.55, Lon: -46.63}.Validate())
	assert.ErrorIs(t, Coordinate{Lat: 91}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Coordinate{Lon: -181}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Coordinate{Lat: math.NaN()}.Validate(), ErrInvalidConfig)
}

func TestCoordinateString(t *testing.T) {
	assert.Equal(t, "-23.550500,-46.633300", Coordinate{Lat: -23.5505, Lon: -46.6333}.String())
}

func TestMalformedResponseIsProviderFailure(t *testing.T) {
	assert.ErrorIs(t, ErrMalformedResponse, ErrProviderFailure)
}

func TestCandidateWithImageryDoesNotMutate(t *testing.T) {
	c := Candidate{Coordinate: Coordinate{Lat: 1, Lon: 2}, Source: SourceGrid}
	withImagery := c.WithImagery(Imagery{ID: "pano", Location: Coordinate{Lat: 1.1, Lon: 2.1}})

	assert.Nil(t, c.Imagery)
	require.NotNil(t, withImagery.Imagery)
	assert.Equal(t, Coordinate{Lat: 1.1, Lon: 2.1}, withImagery.Location())
	assert.Equal(t, Coordinate{Lat: 1, Lon: 2}, c.Location())
}

func TestNewImageIdentity(t *testing.T) {
	a := NewImage([]byte("same bytes"), "image/jpeg")
	b := NewImage([]byte("same bytes"), "")
	c := NewImage([]byte("other bytes"), "image/jpeg")

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Len(t, a.ID, 64)
	assert.NotEmpty(t, b.MIMEType)
}
