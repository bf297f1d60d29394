// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scoring ranks street-level views by visual similarity to the query
// photo. A cheap semantic pass (cosine of unit embeddings) gates an expensive
// geometric pass (keypoint inliers), and the two are combined by weight.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/pdiddy/geolocate/internal/logger"
	"github.com/pdiddy/geolocate/internal/metrics"
	"github.com/pdiddy/geolocate/internal/throttle"
	"github.com/pdiddy/geolocate/pkg/types"
)

// EmbeddingModel maps an image to a unit-length embedding vector.
type EmbeddingModel interface {
	Embed(ctx context.Context, img types.Image) ([]float64, error)
}

// GeometricMatcher counts geometrically consistent keypoint matches between
// two images. Counts below the matcher's own minimum may be returned as 0.
type GeometricMatcher interface {
	Match(ctx context.Context, a, b types.Image) (int, error)
}

// View is one downloaded street-level image of a candidate.
type View struct {
	Candidate types.Candidate
	Heading   float64
	Image     types.Image
}

// Scorer scores and ranks views. A nil matcher leaves every geometric score
// at 0.
type Scorer struct {
	embed   EmbeddingModel
	match   GeometricMatcher
	cache   *EmbeddingCache
	cfg     types.ScoringConfig
	workers int
	log     *slog.Logger
}

// NewScorer creates a Scorer. A nil cache gets a fresh bounded one sized by
// cfg.CacheSize.
func NewScorer(embed EmbeddingModel, match GeometricMatcher, cache *EmbeddingCache, cfg types.ScoringConfig, workers int, log *slog.Logger) *Scorer {
	log = logger.OrDiscard(log)
	if cache == nil {
		cache = NewEmbeddingCache(cfg.CacheSize, nil, log)
	}
	if workers < 1 {
		workers = 1
	}
	return &Scorer{embed: embed, match: match, cache: cache, cfg: cfg, workers: workers, log: log}
}

// Embedding returns the unit embedding of img, computing it at most once per
// image identity.
func (s *Scorer) Embedding(ctx context.Context, img types.Image) ([]float64, error) {
	return s.cache.GetOrCompute(ctx, img.ID, func(ctx context.Context) ([]float64, error) {
		start := time.Now()
		v, err := s.embed.Embed(ctx, img)
		metrics.ObserveCall("embedding", start, err)
		if err != nil {
			return nil, fmt.Errorf("embedding image %.12s: %w", img.ID, err)
		}
		return Normalize(v)
	})
}

// Score computes the semantic, geometric and combined scores of one view.
// The matcher is only consulted when the semantic score clears the gate.
func (s *Scorer) Score(ctx context.Context, query types.Image, v View) (types.ScoredCandidate, error) {
	qv, err := s.Embedding(ctx, query)
	if err != nil {
		return types.ScoredCandidate{}, err
	}
	cv, err := s.Embedding(ctx, v.Image)
	if err != nil {
		return types.ScoredCandidate{}, err
	}
	semantic, err := Semantic(qv, cv)
	if err != nil {
		return types.ScoredCandidate{}, err
	}

	sc := types.ScoredCandidate{
		Candidate:     v.Candidate,
		Heading:       v.Heading,
		ImageID:       v.Image.ID,
		SemanticScore: semantic,
	}

	if semantic >= s.cfg.SemanticGate && s.match != nil {
		start := time.Now()
		inliers, err := s.match.Match(ctx, query, v.Image)
		metrics.ObserveCall("geometric", start, err)
		if err != nil {
			return types.ScoredCandidate{}, fmt.Errorf("matching image %.12s: %w", v.Image.ID, err)
		}
		sc.Inliers = inliers
		sc.GeometricScore = GeometricScore(inliers, s.cfg.MinInliers, s.cfg.InlierNormalization)
	}

	sc.CombinedScore = s.cfg.Weights.Semantic*sc.SemanticScore + s.cfg.Weights.Geometric*sc.GeometricScore
	return sc, nil
}

// Rank scores views concurrently and returns the gated, sorted top-K. Views
// whose scoring fails are dropped. The query embedding failing, or every view
// failing, is an error.
func (s *Scorer) Rank(ctx context.Context, query types.Image, views []View) ([]types.ScoredCandidate, error) {
	if len(views) == 0 {
		return nil, nil
	}
	if _, err := s.Embedding(ctx, query); err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	outcomes := throttle.Map(ctx, s.workers, views, func(ctx context.Context, v View) (types.ScoredCandidate, error) {
		return s.Score(ctx, query, v)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if throttle.AllFailed(outcomes) {
		return nil, fmt.Errorf("visual scoring: %w (%d views, first error: %v)",
			types.ErrProvidersUnavailable, len(outcomes), outcomes[0].Err)
	}

	scored := make([]types.ScoredCandidate, 0, len(outcomes))
	for i, o := range outcomes {
		if o.Err != nil {
			s.log.Warn("scoring view failed", "coordinate", views[i].Candidate.Coordinate.String(),
				"heading", views[i].Heading, "err", o.Err)
			continue
		}
		scored = append(scored, o.Value)
	}

	ranked := RankScored(scored, s.cfg.SemanticGate, s.cfg.TopK)
	s.log.Info("visual ranking", "views", len(views), "scored", len(scored), "ranked", len(ranked))
	return ranked, nil
}

// RankScored drops candidates below the semantic gate, stable-sorts the rest
// by combined score descending, and truncates to topK (no limit when
// topK <= 0). The input slice is not modified.
func RankScored(scored []types.ScoredCandidate, gate float64, topK int) []types.ScoredCandidate {
	out := make([]types.ScoredCandidate, 0, len(scored))
	for _, sc := range scored {
		if sc.SemanticScore >= gate {
			out = append(out, sc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CombinedScore > out[j].CombinedScore
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// GeometricScore maps an inlier count to [0,1]: 0 below minInliers, then
// inliers/normalization capped at 1.
func GeometricScore(inliers, minInliers int, normalization float64) float64 {
	if inliers <= 0 || inliers < minInliers || !(normalization > 0) {
		return 0
	}
	return math.Min(1, float64(inliers)/normalization)
}

// Semantic returns the cosine similarity of two unit vectors clamped to [0,1].
func Semantic(a, b []float64) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("%w: embedding dimensions %d and %d differ", types.ErrMalformedResponse, len(a), len(b))
	}
	return math.Max(0, math.Min(1, floats.Dot(a, b))), nil
}

// Normalize returns v scaled to unit length.
func Normalize(v []float64) ([]float64, error) {
	n := floats.Norm(v, 2)
	if len(v) == 0 || n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, fmt.Errorf("%w: embedding has no direction", types.ErrMalformedResponse)
	}
	out := make([]float64, len(v))
	floats.ScaleTo(out, 1/n, v)
	return out, nil
}
