// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pdiddy/geolocate/pkg/types"
)

// RunSummary is one row of the run history.
type RunSummary struct {
	ID             string            `json:"id" yaml:"id"`
	Started        time.Time         `json:"started" yaml:"started"`
	Status         types.Status      `json:"status" yaml:"status"`
	Reason         string            `json:"reason,omitempty" yaml:"reason,omitempty"`
	Center         types.Coordinate  `json:"center" yaml:"center"`
	Best           *types.Coordinate `json:"best,omitempty" yaml:"best,omitempty"`
	BestConfidence float64           `json:"best_confidence" yaml:"best_confidence"`
	Elapsed        time.Duration     `json:"elapsed" yaml:"elapsed"`
}

// SaveDecision records a finished run and its ranked candidates, returning
// the run ID.
func (s *Store) SaveDecision(ctx context.Context, dec types.Decision) (string, error) {
	id := RunID(dec)
	blob, err := json.Marshal(dec)
	if err != nil {
		return "", fmt.Errorf("marshaling decision: %w", err)
	}

	var bestLat, bestLon, bestConf sql.NullFloat64
	if dec.Best != nil {
		loc := dec.Best.Candidate.Location()
		bestLat = sql.NullFloat64{Float64: loc.Lat, Valid: true}
		bestLon = sql.NullFloat64{Float64: loc.Lon, Valid: true}
		bestConf = sql.NullFloat64{Float64: dec.Best.FinalConfidence, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO runs
		(id, started, status, reason, center_lat, center_lon, best_lat, best_lon, best_confidence, elapsed_ms, decision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, dec.Started.UTC().Format(timeLayout), string(dec.Status), dec.Reason,
		dec.Center.Lat, dec.Center.Lon, bestLat, bestLon, bestConf,
		dec.Elapsed.Milliseconds(), string(blob),
	); err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	insert := s.rebind(`INSERT INTO candidates
		(run_id, rank, lat, lon, source, name, address, heading, semantic, geometric, combined, contextual_match, contextual, final)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for i, vc := range dec.Ranked {
		loc := vc.Candidate.Location()
		match := 0
		if vc.ContextualIsMatch {
			match = 1
		}
		if _, err := tx.ExecContext(ctx, insert,
			id, i+1, loc.Lat, loc.Lon, string(vc.Candidate.Source), vc.Candidate.Name, vc.Candidate.Address,
			vc.Heading, vc.SemanticScore, vc.GeometricScore, vc.CombinedScore, match,
			vc.ContextualConfidence, vc.FinalConfidence,
		); err != nil {
			return "", fmt.Errorf("inserting candidate %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	q := `SELECT id, started, status, reason, center_lat, center_lon, best_lat, best_lon, best_confidence, elapsed_ms
		FROM runs ORDER BY started DESC, id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r                          RunSummary
			started, status            string
			reason                     sql.NullString
			bestLat, bestLon, bestConf sql.NullFloat64
			elapsedMS                  int64
		)
		if err := rows.Scan(&r.ID, &started, &status, &reason, &r.Center.Lat, &r.Center.Lon,
			&bestLat, &bestLon, &bestConf, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Started, _ = time.Parse(timeLayout, started)
		r.Status = types.Status(status)
		r.Reason = reason.String
		if bestLat.Valid && bestLon.Valid {
			r.Best = &types.Coordinate{Lat: bestLat.Float64, Lon: bestLon.Float64}
		}
		r.BestConfidence = bestConf.Float64
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadRun returns the full decision recorded for id.
func (s *Store) LoadRun(ctx context.Context, id string) (types.Decision, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT decision FROM runs WHERE id = ?`), id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Decision{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.Decision{}, fmt.Errorf("querying run: %w", err)
	}
	var dec types.Decision
	if err := json.Unmarshal([]byte(blob), &dec); err != nil {
		return types.Decision{}, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return dec, nil
}

// DeleteRun removes a run and its candidates.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `DELETE FROM candidates WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("deleting candidates: %w", err)
	}
	res, err := s.exec(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
