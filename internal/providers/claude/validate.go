// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/pdiddy/geolocate/pkg/types"
)

// verdictReply mirrors types.Verdict with optional fields so absent keys can
// be told apart from zero values.
type verdictReply struct {
	IsMatch          *bool    `json:"is_match"`
	Confidence       *float64 `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
	MatchingElements []string `json:"matching_elements"`
	Discrepancies    []string `json:"discrepancies"`
	LikelyChanges    []string `json:"likely_changes"`
}

// Validate asks whether candidate describes the same building as query.
// A reply without is_match counts as a rejection and one without confidence
// as zero confidence; a confidence outside [0,1] is malformed.
func (c *Client) Validate(ctx context.Context, query, candidate types.Description, at types.Coordinate, visual float64) (types.Verdict, error) {
	q, err := json.MarshalIndent(query, "", "  ")
	if err != nil {
		return types.Verdict{}, fmt.Errorf("marshaling query description: %w", err)
	}
	cand, err := json.MarshalIndent(candidate, "", "  ")
	if err != nil {
		return types.Verdict{}, fmt.Errorf("marshaling candidate description: %w", err)
	}
	prompt, err := render(validatePrompt, struct {
		Query, Candidate string
		Lat, Lon, Visual float64
	}{string(q), string(cand), at.Lat, at.Lon, visual})
	if err != nil {
		return types.Verdict{}, fmt.Errorf("rendering prompt: %w", err)
	}

	reply, err := c.complete(ctx, []contentBlock{textBlock(prompt)})
	if err != nil {
		return types.Verdict{}, err
	}
	return parseVerdict(reply)
}

func parseVerdict(reply string) (types.Verdict, error) {
	var vr verdictReply
	if err := decodeReply(reply, &vr); err != nil {
		return types.Verdict{}, fmt.Errorf("validation verdict: %w", err)
	}

	v := types.Verdict{
		Reasoning:        vr.Reasoning,
		MatchingElements: vr.MatchingElements,
		Discrepancies:    vr.Discrepancies,
		LikelyChanges:    vr.LikelyChanges,
	}
	if vr.IsMatch != nil {
		v.IsMatch = *vr.IsMatch
	}
	if vr.Confidence != nil {
		conf := *vr.Confidence
		if math.IsNaN(conf) || conf < 0 || conf > 1 {
			return types.Verdict{}, fmt.Errorf("%w: verdict confidence %v outside [0,1]", types.ErrMalformedResponse, conf)
		}
		v.Confidence = conf
	}
	if v.Reasoning == "" {
		v.Reasoning = "incomplete reply"
	}
	return v, nil
}
