// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists run history and caches imagery metadata. SQLite is
// the default backend; Postgres is used when store.driver is "postgres".
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/geolocate/pkg/types"
)

const dbFile = "geolocate.db"

// timeLayout has fixed-width fractional seconds so stored timestamps sort
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Store wraps the run-history database.
type Store struct {
	db     *sql.DB
	driver string
	ttl    time.Duration
	now    func() time.Time
}

// Open opens or creates the database described by cfg and creates the
// schema if it does not exist.
func Open(cfg types.StoreConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite3"
	}

	var dsn string
	switch driver {
	case "sqlite3":
		path := cfg.DSN
		if path == "" {
			dir := cfg.Dir
			if dir == "" {
				dir = "."
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
			path = filepath.Join(dir, dbFile)
		}
		dsn = path + "?_journal_mode=WAL&_foreign_keys=on"
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: postgres store requires a DSN", types.ErrInvalidConfig)
		}
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", types.ErrInvalidConfig, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if driver == "sqlite3" {
		// One writer at a time avoids SQLITE_BUSY under concurrent lookups.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver, ttl: cfg.MetadataTTL, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	float := "REAL"
	if s.driver == "postgres" {
		float = "DOUBLE PRECISION"
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			center_lat ` + float + `,
			center_lon ` + float + `,
			best_lat ` + float + `,
			best_lon ` + float + `,
			best_confidence ` + float + `,
			elapsed_ms BIGINT,
			decision TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started)`,
		`CREATE TABLE IF NOT EXISTS candidates (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			rank INTEGER NOT NULL,
			lat ` + float + `,
			lon ` + float + `,
			source TEXT,
			name TEXT,
			address TEXT,
			heading ` + float + `,
			semantic ` + float + `,
			geometric ` + float + `,
			combined ` + float + `,
			contextual_match INTEGER,
			contextual ` + float + `,
			final ` + float + `,
			PRIMARY KEY (run_id, rank)
		)`,
		`CREATE TABLE IF NOT EXISTS imagery_cache (
			lat_e6 BIGINT NOT NULL,
			lon_e6 BIGINT NOT NULL,
			available INTEGER NOT NULL,
			status TEXT,
			capture_date TEXT,
			imagery_id TEXT,
			snapped_lat ` + float + `,
			snapped_lon ` + float + `,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (lat_e6, lon_e6)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	return Rebind(query)
}

// Rebind numbers ? placeholders in order.
func Rebind(query string) string {
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(q), args...)
}

// RunID derives a sortable identifier from the decision's start time and
// center.
func RunID(dec types.Decision) string {
	sum := sha256.Sum256([]byte(dec.Started.UTC().Format(timeLayout) + dec.Center.String()))
	return dec.Started.UTC().Format("20060102T150405") + "-" + hex.EncodeToString(sum[:4])
}
