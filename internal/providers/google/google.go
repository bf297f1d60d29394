// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package google implements place search and street-level imagery lookups
// against the Places API (New) and the Street View Static API.
package google

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pdiddy/geolocate/internal/httputil"
	"github.com/pdiddy/geolocate/internal/logger"
	"github.com/pdiddy/geolocate/internal/throttle"
	"github.com/pdiddy/geolocate/pkg/types"
)

// Endpoints. Declared as vars so tests can substitute an httptest server.
var (
	placesSearchURL       = "https://places.googleapis.com/v1/places:searchText"
	streetViewMetadataURL = "https://maps.googleapis.com/maps/api/streetview/metadata"
	streetViewImageURL    = "https://maps.googleapis.com/maps/api/streetview"
)

// Client talks to the Google Maps platform. Place search and Street View
// calls are rate limited independently.
type Client struct {
	http       *http.Client
	cfg        types.GoogleConfig
	pages      int
	places     *throttle.Limiter
	streetView *throttle.Limiter
	log        *slog.Logger
}

// New creates a Client. pages bounds place-search paging; delay is the
// minimum spacing between calls to each API.
func New(cfg types.GoogleConfig, pages int, delay time.Duration, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: google maps API key is required", types.ErrInvalidConfig)
	}
	if pages < 1 {
		pages = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		cfg:        cfg,
		pages:      pages,
		places:     throttle.NewLimiter(delay),
		streetView: throttle.NewLimiter(delay),
		log:        logger.OrDiscard(log),
	}, nil
}

// do waits for the limiter, sends req with retries on 429/503 and returns the
// body of a 200 response.
func (c *Client) do(ctx context.Context, lim *throttle.Limiter, req *http.Request, api string) ([]byte, string, error) {
	if err := lim.Wait(ctx); err != nil {
		return nil, "", err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s request: %v", types.ErrProviderFailure, api, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading %s response: %v", types.ErrProviderFailure, api, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: %s returned HTTP %d: %s", types.ErrProviderFailure, api, resp.StatusCode, truncate(body, 200))
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
