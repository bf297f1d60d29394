// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fusion merges the visual score with the contextual validation
// verdict into a final confidence. A negative verdict always dominates.
package fusion

import (
	"math"
	"sort"

	"github.com/pdiddy/geolocate/pkg/types"
)

// RejectPenalty scales the final confidence of contextually rejected candidates.
const RejectPenalty = 0.5

// ContextWeight is the contextual weight renormalized against the visual
// weight budget: contextual / (semantic + geometric).
func ContextWeight(w types.Weights) float64 {
	visual := w.Semantic + w.Geometric
	if visual <= 0 {
		return 0
	}
	return w.Contextual / visual
}

// Confidence computes the final confidence of one candidate.
//
// Rejected: min(visual, contextual) * RejectPenalty.
// Accepted: visual*(1-cw) + contextual*cw with cw = ContextWeight(w).
func Confidence(visual float64, v types.Verdict, w types.Weights) float64 {
	var final float64
	if !v.IsMatch {
		final = math.Min(visual, v.Confidence) * RejectPenalty
	} else {
		cw := ContextWeight(w)
		final = visual*(1-cw) + v.Confidence*cw
	}
	return clamp01(final)
}

// Fuse builds a ValidatedCandidate from a scored candidate and its verdict.
func Fuse(sc types.ScoredCandidate, v types.Verdict, w types.Weights) types.ValidatedCandidate {
	return types.ValidatedCandidate{
		ScoredCandidate:      sc,
		ContextualIsMatch:    v.IsMatch,
		ContextualConfidence: clamp01(v.Confidence),
		Reasoning:            v.Reasoning,
		MatchingElements:     v.MatchingElements,
		Discrepancies:        v.Discrepancies,
		FinalConfidence:      Confidence(sc.CombinedScore, v, w),
	}
}

// Rank stable-sorts candidates by final confidence, highest first.
func Rank(vs []types.ValidatedCandidate) {
	sort.SliceStable(vs, func(i, j int) bool {
		return vs[i].FinalConfidence > vs[j].FinalConfidence
	})
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
