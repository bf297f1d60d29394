// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the geolocation decision loop: broad scan, imagery
// download, visual ranking, contextual validation and fusion at escalating
// radii, stopping as soon as a candidate crosses the confidence threshold.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdiddy/geolocate/internal/funnel"
	"github.com/pdiddy/geolocate/internal/fusion"
	"github.com/pdiddy/geolocate/internal/logger"
	"github.com/pdiddy/geolocate/internal/metrics"
	"github.com/pdiddy/geolocate/internal/photo"
	"github.com/pdiddy/geolocate/internal/scoring"
	"github.com/pdiddy/geolocate/internal/throttle"
	"github.com/pdiddy/geolocate/pkg/types"
)

// VisionDescriptor turns an image into a structured description.
type VisionDescriptor interface {
	Analyze(ctx context.Context, img types.Image) (types.Description, error)
}

// ContextValidator judges whether a candidate view shows the query building.
type ContextValidator interface {
	Validate(ctx context.Context, query, candidate types.Description, at types.Coordinate, visual float64) (types.Verdict, error)
}

// ImageryFetch downloads the street-level image at a coordinate and heading.
type ImageryFetch interface {
	Download(ctx context.Context, c types.Coordinate, heading float64) (types.Image, error)
}

// AddressResolver produces a postal address for a decided candidate.
type AddressResolver interface {
	Resolve(ctx context.Context, c types.ValidatedCandidate, query types.Description) (types.Address, error)
}

// TextHintReader reads legible text from the query photo.
type TextHintReader interface {
	ReadText(ctx context.Context, img types.Image) ([]string, error)
}

// State is a stage of the decision loop.
type State string

const (
	StateSearching  State = "SEARCHING"
	StateScoring    State = "SCORING"
	StateValidating State = "VALIDATING"
	StateDecided    State = "DECIDED"
)

// Deps are the capabilities a Pipeline is built from. Places, Matcher,
// Address, TextReader, Cache and Logger are optional.
type Deps struct {
	Places     funnel.PlaceSearch
	Metadata   funnel.ImageryMetadata
	Fetch      ImageryFetch
	Embedder   scoring.EmbeddingModel
	Matcher    scoring.GeometricMatcher
	Vision     VisionDescriptor
	Validator  ContextValidator
	Address    AddressResolver
	TextReader TextHintReader
	Cache      *scoring.EmbeddingCache
	Logger     *slog.Logger
}

// Pipeline is one configured geolocation engine. Run may be called
// repeatedly; each run gets its own embedding cache unless Deps.Cache is set.
type Pipeline struct {
	cfg    types.Config
	deps   Deps
	funnel *funnel.Funnel
	log    *slog.Logger
}

// New validates cfg and the required capabilities.
func New(cfg types.Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Metadata == nil:
		return nil, fmt.Errorf("%w: imagery metadata provider is required", types.ErrInvalidConfig)
	case deps.Fetch == nil:
		return nil, fmt.Errorf("%w: imagery fetch provider is required", types.ErrInvalidConfig)
	case deps.Embedder == nil:
		return nil, fmt.Errorf("%w: embedding model is required", types.ErrInvalidConfig)
	case deps.Vision == nil:
		return nil, fmt.Errorf("%w: vision descriptor is required", types.ErrInvalidConfig)
	case deps.Validator == nil:
		return nil, fmt.Errorf("%w: context validator is required", types.ErrInvalidConfig)
	}
	log := logger.OrDiscard(deps.Logger)
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		funnel: funnel.New(deps.Places, deps.Metadata, cfg.Search, cfg.Concurrency.Workers, log),
		log:    log,
	}, nil
}

// Request is one geolocation query.
type Request struct {
	Photo        types.Image
	Center       types.Coordinate
	City         string
	Neighborhood string

	// Hints are extra place-search queries supplied by the caller.
	Hints []string
}

// run carries the state of one Run across radii.
type run struct {
	req       Request
	query     types.Description
	hints     funnel.Hints
	scorer    *scoring.Scorer
	dedup     *photo.Deduper
	seen      map[string]bool
	validated []types.ValidatedCandidate
}

// Run executes the decision loop. It returns an error only for invalid input
// and for stages in which every provider call failed; every other outcome is
// a Decision.
func (p *Pipeline) Run(ctx context.Context, req Request) (types.Decision, error) {
	started := time.Now()
	if err := req.Center.Validate(); err != nil {
		return types.Decision{}, err
	}
	if len(req.Photo.Data) == 0 {
		return types.Decision{}, fmt.Errorf("%w: query photo is empty", types.ErrInvalidConfig)
	}

	dec := types.Decision{Center: req.Center, Started: started}

	cache := p.deps.Cache
	if cache == nil {
		cache = scoring.NewEmbeddingCache(p.cfg.Scoring.CacheSize, nil, p.log)
	}
	r := &run{
		req:    req,
		scorer: scoring.NewScorer(p.deps.Embedder, p.deps.Matcher, cache, p.cfg.Scoring, p.cfg.Concurrency.Workers, p.log),
		dedup:  photo.NewDeduper(),
		seen:   make(map[string]bool),
	}

	query, err := p.describe(ctx, req.Photo)
	if err != nil {
		return types.Decision{}, fmt.Errorf("describing query photo: %w", err)
	}
	r.query = query
	dec.Query = &query
	r.hints = p.hints(ctx, req, query)

	anyCandidates := false
	for _, radius := range p.cfg.Search.Radii {
		if err := ctx.Err(); err != nil {
			return p.finish(dec, r, types.StatusInsufficientConfidence, "search cancelled: "+err.Error(), started), nil
		}

		att, err := p.attempt(ctx, r, radius)
		dec.Attempts = append(dec.Attempts, att)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return p.finish(dec, r, types.StatusInsufficientConfidence, "search cancelled: "+ctxErr.Error(), started), nil
			}
			return types.Decision{}, fmt.Errorf("radius %.0f m: %w", radius, err)
		}
		if att.Candidates > 0 {
			anyCandidates = true
		}

		if len(r.validated) > 0 && r.validated[0].FinalConfidence >= p.cfg.Decision.MinConfidence {
			dec = p.finish(dec, r, types.StatusSuccess, "", started)
			dec.Address = p.resolveAddress(ctx, *dec.Best, query)
			return dec, nil
		}
		p.log.Info("escalating radius", "radius", radius, "best", att.Best)
	}

	largest := p.cfg.Search.Radii[len(p.cfg.Search.Radii)-1]
	switch {
	case !anyCandidates:
		return p.finish(dec, r, types.StatusNoCandidates,
			fmt.Sprintf("no imagery-available candidates within %.0f m", largest), started), nil
	case len(r.validated) == 0:
		return p.finish(dec, r, types.StatusInsufficientConfidence,
			"no candidate passed visual and contextual validation", started), nil
	default:
		return p.finish(dec, r, types.StatusInsufficientConfidence,
			fmt.Sprintf("best confidence %.3f below threshold %.2f after %d radii",
				r.validated[0].FinalConfidence, p.cfg.Decision.MinConfidence, len(p.cfg.Search.Radii)), started), nil
	}
}

// attempt runs one radius: search, scoring and validation. Validated
// candidates are merged into r.validated, which stays sorted.
func (p *Pipeline) attempt(ctx context.Context, r *run, radius float64) (types.RadiusAttempt, error) {
	att := types.RadiusAttempt{Radius: radius}

	p.log.Info("state", "state", StateSearching, "radius", radius)
	broad, err := p.funnel.BroadScan(ctx, r.req.Center, radius, r.hints)
	if err != nil {
		return att, err
	}
	available, err := p.funnel.FilterByImageryAvailability(ctx, broad)
	if err != nil {
		return att, err
	}
	att.Candidates = len(available)
	if len(available) == 0 {
		return att, nil
	}

	views, err := p.fetchViews(ctx, r, available)
	if err != nil {
		return att, err
	}
	att.Views = len(views)

	p.log.Info("state", "state", StateScoring, "radius", radius, "views", len(views))
	ranked, err := r.scorer.Rank(ctx, r.req.Photo, views)
	if err != nil {
		return att, err
	}
	byID := make(map[string]types.Image, len(views))
	for _, v := range views {
		byID[v.Image.ID] = v.Image
	}

	if p.cfg.Search.Refine && len(ranked) > 0 {
		ranked = p.refine(ctx, r, ranked, byID)
	}
	att.Ranked = len(ranked)
	if len(ranked) == 0 {
		return att, nil
	}

	p.log.Info("state", "state", StateValidating, "radius", radius, "candidates", min(len(ranked), p.cfg.Decision.ValidateTopK))
	validated, err := p.validate(ctx, r, ranked, byID)
	if err != nil {
		return att, err
	}
	att.Validated = len(validated)
	if len(validated) > 0 {
		att.Best = validated[0].FinalConfidence
	}

	r.validated = append(r.validated, validated...)
	fusion.Rank(r.validated)
	return att, nil
}

// fetchViews downloads one image per heading for every candidate whose
// imagery has not been seen in an earlier radius, capped at the configured
// download budget. Only candidates with every heading inside the budget are
// marked seen, so the rest are retried at the next radius. Failed downloads and
// near-duplicate images are dropped.
func (p *Pipeline) fetchViews(ctx context.Context, r *run, candidates []types.Candidate) ([]scoring.View, error) {
	type job struct {
		key       string
		candidate types.Candidate
		heading   float64
	}
	var jobs []job
	queued := make(map[string]bool)
	for _, c := range candidates {
		key := imageryKey(c)
		if r.seen[key] || queued[key] {
			continue
		}
		queued[key] = true
		for _, h := range p.cfg.Search.Headings {
			jobs = append(jobs, job{key: key, candidate: c, heading: h})
		}
	}
	if len(jobs) > p.cfg.Search.MaxImageryDownloads {
		p.log.Warn("imagery download budget reached", "wanted", len(jobs), "budget", p.cfg.Search.MaxImageryDownloads)
		jobs = jobs[:p.cfg.Search.MaxImageryDownloads]
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	kept := make(map[string]int)
	for _, j := range jobs {
		kept[j.key]++
		if kept[j.key] == len(p.cfg.Search.Headings) {
			r.seen[j.key] = true
		}
	}

	outcomes := throttle.Map(ctx, p.cfg.Concurrency.Workers, jobs, func(ctx context.Context, j job) (types.Image, error) {
		return p.deps.Fetch.Download(ctx, j.candidate.Location(), j.heading)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if throttle.AllFailed(outcomes) {
		return nil, fmt.Errorf("imagery download: %w (%d downloads, first error: %v)",
			types.ErrProvidersUnavailable, len(outcomes), outcomes[0].Err)
	}

	views := make([]scoring.View, 0, len(jobs))
	var dupes int
	for i, o := range outcomes {
		if o.Err != nil {
			p.log.Debug("imagery download failed", "coordinate", jobs[i].candidate.Coordinate.String(),
				"heading", jobs[i].heading, "err", o.Err)
			continue
		}
		if r.dedup.Seen(o.Value) {
			dupes++
			continue
		}
		views = append(views, scoring.View{Candidate: jobs[i].candidate, Heading: jobs[i].heading, Image: o.Value})
	}
	metrics.FunnelCandidates.WithLabelValues("views").Observe(float64(len(views)))
	p.log.Info("imagery downloaded", "jobs", len(jobs), "views", len(views), "duplicates", dupes,
		"failed", throttle.Failed(outcomes))
	return views, nil
}

// refine scores a dense grid around the best visual candidate and merges it
// into the ranking. Any refinement failure keeps the original ranking.
func (p *Pipeline) refine(ctx context.Context, r *run, ranked []types.ScoredCandidate, byID map[string]types.Image) []types.ScoredCandidate {
	refined, err := p.funnel.Refine(ctx, ranked[0].Candidate.Location())
	if err != nil {
		p.log.Warn("refinement skipped", "err", err)
		return ranked
	}
	views, err := p.fetchViews(ctx, r, refined)
	if err != nil || len(views) == 0 {
		if err != nil {
			p.log.Warn("refinement download failed", "err", err)
		}
		return ranked
	}
	extra, err := r.scorer.Rank(ctx, r.req.Photo, views)
	if err != nil {
		p.log.Warn("refinement scoring failed", "err", err)
		return ranked
	}
	for _, v := range views {
		byID[v.Image.ID] = v.Image
	}
	merged := append(append([]types.ScoredCandidate{}, ranked...), extra...)
	return scoring.RankScored(merged, p.cfg.Scoring.SemanticGate, p.cfg.Scoring.TopK)
}

// validate runs the top visual candidates through description, contextual
// validation and fusion. A failure drops only that candidate; if every
// candidate fails the error wraps ErrProvidersUnavailable.
func (p *Pipeline) validate(ctx context.Context, r *run, ranked []types.ScoredCandidate, byID map[string]types.Image) ([]types.ValidatedCandidate, error) {
	top := ranked[:min(len(ranked), p.cfg.Decision.ValidateTopK)]

	outcomes := throttle.Map(ctx, p.cfg.Concurrency.Workers, top, func(ctx context.Context, sc types.ScoredCandidate) (types.ValidatedCandidate, error) {
		img, ok := byID[sc.ImageID]
		if !ok {
			return types.ValidatedCandidate{}, fmt.Errorf("image %.12s not downloaded", sc.ImageID)
		}
		desc, err := p.describe(ctx, img)
		if err != nil {
			return types.ValidatedCandidate{}, fmt.Errorf("describing candidate: %w", err)
		}
		start := time.Now()
		verdict, err := p.deps.Validator.Validate(ctx, r.query, desc, sc.Candidate.Location(), sc.CombinedScore)
		metrics.ObserveCall("validator", start, err)
		if err != nil {
			return types.ValidatedCandidate{}, fmt.Errorf("validating candidate: %w", err)
		}
		return fusion.Fuse(sc, verdict, p.cfg.Scoring.Weights), nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if throttle.AllFailed(outcomes) {
		return nil, fmt.Errorf("contextual validation: %w (%d candidates, first error: %v)",
			types.ErrProvidersUnavailable, len(outcomes), outcomes[0].Err)
	}

	var out []types.ValidatedCandidate
	for i, o := range outcomes {
		if o.Err != nil {
			p.log.Warn("validation failed", "coordinate", top[i].Candidate.Coordinate.String(), "err", o.Err)
			continue
		}
		out = append(out, o.Value)
	}
	fusion.Rank(out)
	return out, nil
}

func (p *Pipeline) describe(ctx context.Context, img types.Image) (types.Description, error) {
	start := time.Now()
	d, err := p.deps.Vision.Analyze(ctx, img)
	metrics.ObserveCall("vision", start, err)
	return d, err
}

// hints combines caller hints, text read off the photo by the vision model,
// and OCR output when a reader is configured.
func (p *Pipeline) hints(ctx context.Context, req Request, query types.Description) funnel.Hints {
	h := funnel.Hints{City: req.City, Neighborhood: req.Neighborhood}
	h.Extra = append(h.Extra, req.Hints...)
	h.Extra = append(h.Extra, query.TextHints()...)
	if p.deps.TextReader != nil {
		start := time.Now()
		lines, err := p.deps.TextReader.ReadText(ctx, req.Photo)
		metrics.ObserveCall("ocr", start, err)
		if err != nil {
			p.log.Warn("text hints unavailable", "err", err)
		} else {
			h.Extra = append(h.Extra, lines...)
		}
	}
	return h
}

// resolveAddress asks the resolver for an address, falling back to the
// address the place search attached to the candidate.
func (p *Pipeline) resolveAddress(ctx context.Context, best types.ValidatedCandidate, query types.Description) *types.Address {
	if p.cfg.Decision.ResolveAddress && p.deps.Address != nil {
		start := time.Now()
		addr, err := p.deps.Address.Resolve(ctx, best, query)
		metrics.ObserveCall("address", start, err)
		if err == nil {
			return &addr
		}
		p.log.Warn("address resolution failed", "err", err)
	}
	if best.Candidate.Address != "" {
		return &types.Address{Formatted: best.Candidate.Address}
	}
	return nil
}

func (p *Pipeline) finish(dec types.Decision, r *run, status types.Status, reason string, started time.Time) types.Decision {
	dec.Status = status
	dec.Reason = reason
	dec.Ranked = r.validated
	if len(r.validated) > 0 {
		best := r.validated[0]
		dec.Best = &best
	}
	dec.Elapsed = time.Since(started)
	metrics.DecisionsTotal.WithLabelValues(string(status)).Inc()
	p.log.Info("state", "state", StateDecided, "status", status, "reason", reason, "elapsed", dec.Elapsed)
	return dec
}

// imageryKey identifies a candidate's imagery for cross-radius dedup.
func imageryKey(c types.Candidate) string {
	if c.Imagery != nil && c.Imagery.ID != "" {
		return c.Imagery.ID
	}
	return c.Coordinate.String()
}

// IsProviderOutage reports whether err is a total provider failure rather
// than bad input.
func IsProviderOutage(err error) bool {
	return errors.Is(err, types.ErrProvidersUnavailable)
}
