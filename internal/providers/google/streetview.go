// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/geolocate/internal/metrics"
	"github.com/pdiddy/geolocate/pkg/types"
)

type metadataResponse struct {
	Status   string `json:"status"`
	Date     string `json:"date"`
	PanoID   string `json:"pano_id"`
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	ErrorMessage string `json:"error_message"`
}

// metadataFailures are statuses that describe the request, not the place.
var metadataFailures = map[string]bool{
	"OVER_QUERY_LIMIT": true,
	"REQUEST_DENIED":   true,
	"INVALID_REQUEST":  true,
	"UNKNOWN_ERROR":    true,
}

// Lookup reports whether street-level imagery exists near c. ZERO_RESULTS
// and NOT_FOUND are valid answers; quota and key errors are failures.
func (c *Client) Lookup(ctx context.Context, at types.Coordinate) (types.ImageryMeta, error) {
	start := time.Now()
	meta, err := c.lookup(ctx, at)
	metrics.ObserveCall("imagery_metadata", start, err)
	return meta, err
}

func (c *Client) lookup(ctx context.Context, at types.Coordinate) (types.ImageryMeta, error) {
	params := url.Values{
		"location": {formatLocation(at)},
		"key":      {c.cfg.APIKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streetViewMetadataURL+"?"+params.Encode(), nil)
	if err != nil {
		return types.ImageryMeta{}, fmt.Errorf("creating request: %w", err)
	}

	raw, _, err := c.do(ctx, c.streetView, req, "street view metadata")
	if err != nil {
		return types.ImageryMeta{}, err
	}
	var mr metadataResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		return types.ImageryMeta{}, fmt.Errorf("%w: parsing street view metadata: %v", types.ErrMalformedResponse, err)
	}
	if metadataFailures[mr.Status] {
		return types.ImageryMeta{}, fmt.Errorf("%w: street view metadata status %s: %s", types.ErrProviderFailure, mr.Status, mr.ErrorMessage)
	}

	return types.ImageryMeta{
		Available:   mr.Status == "OK",
		Status:      mr.Status,
		CaptureDate: mr.Date,
		ImageryID:   mr.PanoID,
		Snapped:     types.Coordinate{Lat: mr.Location.Lat, Lon: mr.Location.Lng},
	}, nil
}

// Download fetches the street-level image at c looking towards heading.
func (c *Client) Download(ctx context.Context, at types.Coordinate, heading float64) (types.Image, error) {
	start := time.Now()
	img, err := c.download(ctx, at, heading)
	metrics.ObserveCall("imagery_fetch", start, err)
	return img, err
}

func (c *Client) download(ctx context.Context, at types.Coordinate, heading float64) (types.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ImageURL(at, heading), nil)
	if err != nil {
		return types.Image{}, fmt.Errorf("creating request: %w", err)
	}
	raw, contentType, err := c.do(ctx, c.streetView, req, "street view image")
	if err != nil {
		return types.Image{}, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return types.Image{}, fmt.Errorf("%w: street view returned %q instead of an image", types.ErrMalformedResponse, contentType)
	}
	if len(raw) == 0 {
		return types.Image{}, fmt.Errorf("%w: empty street view image", types.ErrMalformedResponse)
	}
	return types.NewImage(raw, contentType), nil
}

// ImageURL builds the Street View Static request for one view.
func (c *Client) ImageURL(at types.Coordinate, heading float64) string {
	size := c.cfg.ImageSize
	if size == "" {
		size = "640x640"
	}
	params := url.Values{
		"size":     {size},
		"location": {formatLocation(at)},
		"heading":  {strconv.FormatFloat(heading, 'f', -1, 64)},
		"fov":      {strconv.Itoa(c.cfg.FOV)},
		"pitch":    {strconv.Itoa(c.cfg.Pitch)},
		"key":      {c.cfg.APIKey},
	}
	return streetViewImageURL + "?" + params.Encode()
}

func formatLocation(c types.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 6, 64)
}
