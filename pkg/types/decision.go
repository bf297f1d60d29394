// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Status is the terminal outcome of a geolocation run.
type Status string

const (
	StatusSuccess                Status = "success"
	StatusInsufficientConfidence Status = "insufficient-confidence"
	StatusNoCandidates           Status = "no-candidates"
)

// RadiusAttempt records what one radius of the escalation loop produced.
type RadiusAttempt struct {
	Radius     float64 `json:"radius" yaml:"radius"`
	Candidates int     `json:"candidates" yaml:"candidates"`
	Views      int     `json:"views" yaml:"views"`
	Ranked     int     `json:"ranked" yaml:"ranked"`
	Validated  int     `json:"validated" yaml:"validated"`
	Best       float64 `json:"best" yaml:"best"`
}

// Decision is the structured result of a run. Best is set for success and,
// when anything was validated, for insufficient-confidence.
type Decision struct {
	Status   Status               `json:"status" yaml:"status"`
	Best     *ValidatedCandidate  `json:"best,omitempty" yaml:"best,omitempty"`
	Ranked   []ValidatedCandidate `json:"ranked,omitempty" yaml:"ranked,omitempty"`
	Address  *Address             `json:"address,omitempty" yaml:"address,omitempty"`
	Reason   string               `json:"reason,omitempty" yaml:"reason,omitempty"`
	Attempts []RadiusAttempt      `json:"attempts" yaml:"attempts"`
	Query    *Description         `json:"query,omitempty" yaml:"query,omitempty"`
	Center   Coordinate           `json:"center" yaml:"center"`
	Started  time.Time            `json:"started" yaml:"started"`
	Elapsed  time.Duration        `json:"elapsed" yaml:"elapsed"`
}

// Found reports whether the run produced an answer.
func (d Decision) Found() bool {
	return d.Status == StatusSuccess && d.Best != nil
}
