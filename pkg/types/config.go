// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"math"
	"time"
)

// HTTPConfig holds shared HTTP settings used by providers that make network
// requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "geolocate/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// MaxRetries bounds retries on 429 and 503 responses (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// SearchConfig holds settings for candidate generation.
type SearchConfig struct {
	// DefaultCenter is used when neither flags nor photo EXIF provide one.
	DefaultCenter Coordinate `json:"default_center" yaml:"default_center" mapstructure:"default_center"`

	// Radii is the escalation sequence in meters. The first entry is the
	// initial radius.
	Radii []float64 `json:"radii" yaml:"radii" mapstructure:"radii"`

	// GridSpacing is the lattice spacing of the broad scan in meters.
	GridSpacing float64 `json:"grid_spacing" yaml:"grid_spacing" mapstructure:"grid_spacing"`

	// Refine enables a dense grid around the best visual candidate.
	Refine bool `json:"refine" yaml:"refine" mapstructure:"refine"`

	RefinementRadius  float64 `json:"refinement_radius" yaml:"refinement_radius" mapstructure:"refinement_radius"`
	RefinementSpacing float64 `json:"refinement_spacing" yaml:"refinement_spacing" mapstructure:"refinement_spacing"`

	// MinCaptureYear drops imagery captured before this year.
	MinCaptureYear int `json:"min_capture_year" yaml:"min_capture_year" mapstructure:"min_capture_year"`

	// Headings are the camera headings downloaded per candidate, in degrees.
	Headings []float64 `json:"headings" yaml:"headings" mapstructure:"headings"`

	// MaxImageryDownloads caps downloaded views per radius.
	MaxImageryDownloads int `json:"max_imagery_downloads" yaml:"max_imagery_downloads" mapstructure:"max_imagery_downloads"`

	// PlaceQueries are the base place-search templates. Neighborhood and
	// city hints are appended to the first one.
	PlaceQueries []string `json:"place_queries" yaml:"place_queries" mapstructure:"place_queries"`

	// PlacePages is the number of result pages followed per query (20 results each).
	PlacePages int `json:"place_pages" yaml:"place_pages" mapstructure:"place_pages"`
}

// Weights are the score weights. They must sum to 1.
type Weights struct {
	Semantic   float64 `json:"semantic" yaml:"semantic" mapstructure:"semantic"`
	Geometric  float64 `json:"geometric" yaml:"geometric" mapstructure:"geometric"`
	Contextual float64 `json:"contextual" yaml:"contextual" mapstructure:"contextual"`
}

// Validate checks each weight is in [0,1] and that they sum to 1.
func (w Weights) Validate() error {
	if err := unitInterval("semantic weight", w.Semantic); err != nil {
		return err
	}
	if err := unitInterval("geometric weight", w.Geometric); err != nil {
		return err
	}
	if err := unitInterval("contextual weight", w.Contextual); err != nil {
		return err
	}
	if sum := w.Semantic + w.Geometric + w.Contextual; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: weights sum to %v, want 1", ErrInvalidConfig, sum)
	}
	if w.Semantic+w.Geometric == 0 {
		return fmt.Errorf("%w: visual weights are both zero", ErrInvalidConfig)
	}
	return nil
}

// ScoringConfig holds settings for visual scoring.
type ScoringConfig struct {
	Weights Weights `json:"weights" yaml:"weights" mapstructure:"weights"`

	// SemanticGate is the minimum semantic score for the geometric pass and
	// for inclusion in the ranked output.
	SemanticGate float64 `json:"semantic_gate" yaml:"semantic_gate" mapstructure:"semantic_gate"`

	// InlierNormalization maps an inlier count to [0,1] (default 60).
	InlierNormalization float64 `json:"inlier_normalization" yaml:"inlier_normalization" mapstructure:"inlier_normalization"`

	// MinInliers is the inlier count below which the geometric score is 0.
	MinInliers int `json:"min_inliers" yaml:"min_inliers" mapstructure:"min_inliers"`

	// TopK is the size of the ranked window kept after visual scoring.
	TopK int `json:"top_k" yaml:"top_k" mapstructure:"top_k"`

	// CacheSize bounds the in-memory embedding cache per run.
	CacheSize int `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`
}

// DecisionConfig holds settings for validation and the final decision.
type DecisionConfig struct {
	// MinConfidence is the final confidence that ends the search.
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence" mapstructure:"min_confidence"`

	// ValidateTopK is how many visual leaders go through contextual validation.
	ValidateTopK int `json:"validate_top_k" yaml:"validate_top_k" mapstructure:"validate_top_k"`

	// ResolveAddress asks the reasoning provider for a postal address on success.
	ResolveAddress bool `json:"resolve_address" yaml:"resolve_address" mapstructure:"resolve_address"`
}

// ConcurrencyConfig bounds parallel provider calls.
type ConcurrencyConfig struct {
	// Workers is the number of concurrent calls per stage.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// ProviderDelay is the minimum spacing between calls to one provider.
	ProviderDelay time.Duration `json:"provider_delay" yaml:"provider_delay" mapstructure:"provider_delay"`
}

// GoogleConfig holds settings for the places and street-level imagery APIs.
type GoogleConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// ImageSize is the requested street-level image size (e.g. "640x640").
	ImageSize string `json:"image_size" yaml:"image_size" mapstructure:"image_size"`

	FOV   int `json:"fov" yaml:"fov" mapstructure:"fov"`
	Pitch int `json:"pitch" yaml:"pitch" mapstructure:"pitch"`
}

// AIConfig holds settings for the reasoning and vision provider.
type AIConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Model is the AI model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxTokens bounds each reply.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxImageSide downscales images sent to the model (default 2048).
	MaxImageSide int `json:"max_image_side" yaml:"max_image_side" mapstructure:"max_image_side"`
}

// EmbeddingConfig selects the ONNX image encoder.
type EmbeddingConfig struct {
	// ModelPath is the ONNX file of a CLIP-style image encoder.
	ModelPath string `json:"model_path" yaml:"model_path" mapstructure:"model_path"`

	// RuntimeLibrary is the onnxruntime shared library path. Empty uses the
	// platform default.
	RuntimeLibrary string `json:"runtime_library,omitempty" yaml:"runtime_library,omitempty" mapstructure:"runtime_library"`

	InputName  string `json:"input_name" yaml:"input_name" mapstructure:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name" mapstructure:"output_name"`
	InputSize  int    `json:"input_size" yaml:"input_size" mapstructure:"input_size"`
	Dimension  int    `json:"dimension" yaml:"dimension" mapstructure:"dimension"`
}

// MatcherConfig configures keypoint matching.
type MatcherConfig struct {
	// Features is the keypoint budget per image.
	Features int `json:"features" yaml:"features" mapstructure:"features"`

	// Ratio is the nearest-neighbour ratio-test threshold.
	Ratio float64 `json:"ratio" yaml:"ratio" mapstructure:"ratio"`

	// ReprojectionThreshold is the RANSAC inlier distance in pixels.
	ReprojectionThreshold float64 `json:"reprojection_threshold" yaml:"reprojection_threshold" mapstructure:"reprojection_threshold"`
}

// OCRConfig controls text-hint extraction from the query photo.
type OCRConfig struct {
	Enabled   bool     `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Languages []string `json:"languages" yaml:"languages" mapstructure:"languages"`
}

// StoreConfig selects the run-history database.
type StoreConfig struct {
	// Driver is "sqlite3" (default) or "postgres".
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`

	// DSN is the Postgres connection string, or the SQLite file path.
	// Empty with sqlite3 uses Dir/geolocate.db.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`

	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MetadataTTL is how long cached imagery metadata stays valid.
	MetadataTTL time.Duration `json:"metadata_ttl" yaml:"metadata_ttl" mapstructure:"metadata_ttl"`
}

// RedisConfig enables the shared embedding tier. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `json:"addr,omitempty" yaml:"addr,omitempty" mapstructure:"addr"`
	Password string        `json:"-" yaml:"-" mapstructure:"password"`
	DB       int           `json:"db" yaml:"db" mapstructure:"db"`
	TTL      time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups all settings for one geolocation run. It is treated as
// immutable once validated.
type Config struct {
	Search      SearchConfig      `json:"search" yaml:"search" mapstructure:"search"`
	Scoring     ScoringConfig     `json:"scoring" yaml:"scoring" mapstructure:"scoring"`
	Decision    DecisionConfig    `json:"decision" yaml:"decision" mapstructure:"decision"`
	Concurrency ConcurrencyConfig `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
	Google      GoogleConfig      `json:"google" yaml:"google" mapstructure:"google"`
	AI          AIConfig          `json:"ai" yaml:"ai" mapstructure:"ai"`
	Embedding   EmbeddingConfig   `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Matcher     MatcherConfig     `json:"matcher" yaml:"matcher" mapstructure:"matcher"`
	OCR         OCRConfig         `json:"ocr" yaml:"ocr" mapstructure:"ocr"`
	Store       StoreConfig       `json:"store" yaml:"store" mapstructure:"store"`
	Redis       RedisConfig       `json:"redis" yaml:"redis" mapstructure:"redis"`
	Log         LogConfig         `json:"log" yaml:"log" mapstructure:"log"`
	OutputDir   string            `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
}

// DefaultConfig returns the settings the CLI starts from before applying the
// config file and environment.
func DefaultConfig() Config {
	return Config{
		Search: SearchConfig{
			DefaultCenter:       Coordinate{Lat: -23.5505, Lon: -46.6333},
			Radii:               []float64{2000, 3000, 5000},
			GridSpacing:         50,
			Refine:              true,
			RefinementRadius:    200,
			RefinementSpacing:   20,
			MinCaptureYear:      2024,
			Headings:            []float64{0, 45, 90, 135, 180, 225, 270, 315},
			MaxImageryDownloads: 500,
			PlaceQueries:        []string{"residential condominium", "gated condominium"},
			PlacePages:          3,
		},
		Scoring: ScoringConfig{
			Weights:             Weights{Semantic: 0.5, Geometric: 0.3, Contextual: 0.2},
			SemanticGate:        0.70,
			InlierNormalization: 60,
			MinInliers:          20,
			TopK:                20,
			CacheSize:           4096,
		},
		Decision: DecisionConfig{
			MinConfidence:  0.85,
			ValidateTopK:   5,
			ResolveAddress: true,
		},
		Concurrency: ConcurrencyConfig{
			Workers:       4,
			ProviderDelay: 100 * time.Millisecond,
		},
		Google: GoogleConfig{
			HTTPConfig: HTTPConfig{Timeout: 30 * time.Second, UserAgent: "geolocate/0.1", MaxRetries: 5},
			ImageSize:  "640x640",
			FOV:        90,
		},
		AI: AIConfig{
			HTTPConfig:   HTTPConfig{Timeout: 120 * time.Second, UserAgent: "geolocate/0.1", MaxRetries: 3},
			Model:        "claude-sonnet-4-5-20250929",
			MaxTokens:    2048,
			MaxImageSide: 2048,
		},
		Embedding: EmbeddingConfig{
			ModelPath:  "models/clip-vit-b32-visual.onnx",
			InputName:  "pixel_values",
			OutputName: "image_embeds",
			InputSize:  224,
			Dimension:  512,
		},
		Matcher: MatcherConfig{
			Features:              4000,
			Ratio:                 0.75,
			ReprojectionThreshold: 5.0,
		},
		OCR: OCRConfig{
			Enabled:   false,
			Languages: []string{"eng"},
		},
		Store: StoreConfig{
			Driver:      "sqlite3",
			Dir:         "cache",
			MetadataTTL: 30 * 24 * time.Hour,
		},
		Redis: RedisConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		OutputDir: "output",
	}
}

// Validate rejects configurations that would produce out-of-range scores or
// an empty search. All errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if err := c.Decision.Validate(); err != nil {
		return err
	}
	if c.Concurrency.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Concurrency.Workers)
	}
	if c.Concurrency.ProviderDelay < 0 {
		return fmt.Errorf("%w: provider delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the search geometry.
func (s SearchConfig) Validate() error {
	if len(s.Radii) == 0 {
		return fmt.Errorf("%w: at least one search radius is required", ErrInvalidConfig)
	}
	for i, r := range s.Radii {
		if !(r > 0) {
			return fmt.Errorf("%w: radius %v must be positive", ErrInvalidConfig, r)
		}
		if i > 0 && r <= s.Radii[i-1] {
			return fmt.Errorf("%w: radii must be strictly ascending, got %v after %v", ErrInvalidConfig, r, s.Radii[i-1])
		}
	}
	if !(s.GridSpacing > 0) {
		return fmt.Errorf("%w: grid spacing must be positive", ErrInvalidConfig)
	}
	if s.Refine && (!(s.RefinementRadius > 0) || !(s.RefinementSpacing > 0)) {
		return fmt.Errorf("%w: refinement radius and spacing must be positive", ErrInvalidConfig)
	}
	if len(s.Headings) == 0 {
		return fmt.Errorf("%w: at least one heading is required", ErrInvalidConfig)
	}
	if s.MaxImageryDownloads < 1 {
		return fmt.Errorf("%w: max imagery downloads must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// Validate checks weights, gate, and ranking window.
func (s ScoringConfig) Validate() error {
	if err := s.Weights.Validate(); err != nil {
		return err
	}
	if err := unitInterval("semantic gate", s.SemanticGate); err != nil {
		return err
	}
	if !(s.InlierNormalization > 0) {
		return fmt.Errorf("%w: inlier normalization must be positive", ErrInvalidConfig)
	}
	if s.MinInliers < 0 {
		return fmt.Errorf("%w: min inliers must not be negative", ErrInvalidConfig)
	}
	if s.TopK < 1 {
		return fmt.Errorf("%w: top-k must be at least 1, got %d", ErrInvalidConfig, s.TopK)
	}
	return nil
}

// Validate checks the decision threshold and validation window.
func (d DecisionConfig) Validate() error {
	if err := unitInterval("min confidence", d.MinConfidence); err != nil {
		return err
	}
	if d.ValidateTopK < 1 {
		return fmt.Errorf("%w: validate top-k must be at least 1, got %d", ErrInvalidConfig, d.ValidateTopK)
	}
	return nil
}

func unitInterval(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: %s %v outside [0, 1]", ErrInvalidConfig, name, v)
	}
	return nil
}
