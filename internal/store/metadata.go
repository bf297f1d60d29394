// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pdiddy/geolocate/internal/logger"
	"github.com/pdiddy/geolocate/pkg/types"
)

// cacheKey rounds a coordinate to 1e-6 degrees.
func cacheKey(c types.Coordinate) (int64, int64) {
	return int64(math.Round(c.Lat * 1e6)), int64(math.Round(c.Lon * 1e6))
}

// GetMetadata returns a cached lookup for c if one is younger than the TTL.
func (s *Store) GetMetadata(ctx context.Context, c types.Coordinate) (types.ImageryMeta, bool, error) {
	lat, lon := cacheKey(c)
	var (
		m                      types.ImageryMeta
		available              int
		status, date, imagery  sql.NullString
		snappedLat, snappedLon sql.NullFloat64
		fetched                string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT available, status, capture_date, imagery_id, snapped_lat, snapped_lon, fetched_at
		FROM imagery_cache WHERE lat_e6 = ? AND lon_e6 = ?`), lat, lon).
		Scan(&available, &status, &date, &imagery, &snappedLat, &snappedLon, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ImageryMeta{}, false, nil
	}
	if err != nil {
		return types.ImageryMeta{}, false, fmt.Errorf("querying imagery cache: %w", err)
	}

	at, err := time.Parse(timeLayout, fetched)
	if err != nil || (s.ttl > 0 && s.now().Sub(at) > s.ttl) {
		return types.ImageryMeta{}, false, nil
	}
	m.Available = available != 0
	m.Status = status.String
	m.CaptureDate = date.String
	m.ImageryID = imagery.String
	m.Snapped = types.Coordinate{Lat: snappedLat.Float64, Lon: snappedLon.Float64}
	return m, true, nil
}

// PutMetadata stores or replaces the cached lookup for c.
func (s *Store) PutMetadata(ctx context.Context, c types.Coordinate, m types.ImageryMeta) error {
	lat, lon := cacheKey(c)
	available := 0
	if m.Available {
		available = 1
	}
	_, err := s.exec(ctx, `INSERT INTO imagery_cache
		(lat_e6, lon_e6, available, status, capture_date, imagery_id, snapped_lat, snapped_lon, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (lat_e6, lon_e6) DO UPDATE SET
			available = excluded.available, status = excluded.status, capture_date = excluded.capture_date,
			imagery_id = excluded.imagery_id, snapped_lat = excluded.snapped_lat, snapped_lon = excluded.snapped_lon,
			fetched_at = excluded.fetched_at`,
		lat, lon, available, m.Status, m.CaptureDate, m.ImageryID, m.Snapped.Lat, m.Snapped.Lon,
		s.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("writing imagery cache: %w", err)
	}
	return nil
}

// MetadataSource is the imagery metadata capability being cached.
type MetadataSource interface {
	Lookup(ctx context.Context, c types.Coordinate) (types.ImageryMeta, error)
}

// CachedMetadata serves imagery metadata from the store, falling through to
// the provider on a miss. Only successful lookups are cached; cache errors
// are logged and bypassed.
type CachedMetadata struct {
	next  MetadataSource
	store *Store
	log   *slog.Logger
}

// NewCachedMetadata wraps next with the store's metadata cache.
func NewCachedMetadata(next MetadataSource, s *Store, log *slog.Logger) *CachedMetadata {
	return &CachedMetadata{next: next, store: s, log: logger.OrDiscard(log)}
}

// Lookup implements the imagery metadata capability.
func (c *CachedMetadata) Lookup(ctx context.Context, at types.Coordinate) (types.ImageryMeta, error) {
	m, ok, err := c.store.GetMetadata(ctx, at)
	if err != nil {
		c.log.Warn("imagery cache read failed", "err", err)
	} else if ok {
		return m, nil
	}

	m, err = c.next.Lookup(ctx, at)
	if err != nil {
		return types.ImageryMeta{}, err
	}
	if err := c.store.PutMetadata(ctx, at, m); err != nil {
		c.log.Warn("imagery cache write failed", "err", err)
	}
	return m, nil
}
