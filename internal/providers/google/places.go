// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pdiddy/geolocate/internal/metrics"
	"github.com/pdiddy/geolocate/pkg/types"
)

const (
	placesPageSize  = 20
	placesFieldMask = "places.id,places.displayName,places.formattedAddress,places.location,nextPageToken"

	// maxBiasRadius is the largest circle the Places API accepts.
	maxBiasRadius = 50000
)

type placesRequest struct {
	TextQuery    string       `json:"textQuery"`
	LocationBias locationBias `json:"locationBias"`
	PageSize     int          `json:"pageSize"`
	PageToken    string       `json:"pageToken,omitempty"`
}

type locationBias struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type placesResponse struct {
	Places []struct {
		ID          string `json:"id"`
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string `json:"formattedAddress"`
		Location         latLng `json:"location"`
	} `json:"places"`
	NextPageToken string `json:"nextPageToken"`
}

// TextSearch runs a biased text search around center, following page tokens
// up to the configured page count. A failure after the first page returns the
// places collected so far.
func (c *Client) TextSearch(ctx context.Context, query string, center types.Coordinate, radius float64) ([]types.Place, error) {
	start := time.Now()
	places, err := c.textSearch(ctx, query, center, radius)
	metrics.ObserveCall("places", start, err)
	return places, err
}

func (c *Client) textSearch(ctx context.Context, query string, center types.Coordinate, radius float64) ([]types.Place, error) {
	body := placesRequest{
		TextQuery: query,
		LocationBias: locationBias{Circle: circle{
			Center: latLng{Latitude: center.Lat, Longitude: center.Lon},
			Radius: min(radius, maxBiasRadius),
		}},
		PageSize: placesPageSize,
	}

	var places []types.Place
	for page := 0; page < c.pages; page++ {
		pr, err := c.searchPage(ctx, body)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			c.log.Warn("place search paging stopped", "query", query, "page", page, "err", err)
			break
		}
		for _, p := range pr.Places {
			places = append(places, types.Place{
				ID:         p.ID,
				Name:       p.DisplayName.Text,
				Address:    p.FormattedAddress,
				Coordinate: types.Coordinate{Lat: p.Location.Latitude, Lon: p.Location.Longitude},
			})
		}
		if pr.NextPageToken == "" {
			break
		}
		body.PageToken = pr.NextPageToken
	}

	c.log.Debug("place search", "query", query, "radius", radius, "places", len(places))
	return places, nil
}

func (c *Client) searchPage(ctx context.Context, body placesRequest) (placesResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return placesResponse{}, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, placesSearchURL, bytes.NewReader(payload))
	if err != nil {
		return placesResponse{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.cfg.APIKey)
	req.Header.Set("X-Goog-FieldMask", placesFieldMask)

	raw, _, err := c.do(ctx, c.places, req, "places API")
	if err != nil {
		return placesResponse{}, err
	}
	var pr placesResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return placesResponse{}, fmt.Errorf("%w: parsing places response: %v", types.ErrMalformedResponse, err)
	}
	return pr, nil
}
