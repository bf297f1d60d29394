// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package claude

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pdiddy/geolocate/pkg/types"
)

type addressReply struct {
	Street       string  `json:"street"`
	Number       string  `json:"number"`
	Neighborhood string  `json:"neighborhood"`
	City         string  `json:"city"`
	State        string  `json:"state"`
	ZipCode      string  `json:"zip_code"`
	FullAddress  string  `json:"full_address"`
	Confidence   float64 `json:"confidence"`
}

// Resolve asks for the most likely address of the decided candidate.
func (c *Client) Resolve(ctx context.Context, best types.ValidatedCandidate, query types.Description) (types.Address, error) {
	q, err := json.MarshalIndent(query, "", "  ")
	if err != nil {
		return types.Address{}, fmt.Errorf("marshaling query description: %w", err)
	}
	at := best.Candidate.Location()
	prompt, err := render(addressPrompt, struct {
		Query, Name, Address string
		Lat, Lon             float64
	}{string(q), best.Candidate.Name, best.Candidate.Address, at.Lat, at.Lon})
	if err != nil {
		return types.Address{}, fmt.Errorf("rendering prompt: %w", err)
	}

	reply, err := c.complete(ctx, []contentBlock{textBlock(prompt)})
	if err != nil {
		return types.Address{}, err
	}
	var ar addressReply
	if err := decodeReply(reply, &ar); err != nil {
		return types.Address{}, fmt.Errorf("address: %w", err)
	}
	if ar.FullAddress == "" && ar.Street == "" {
		return types.Address{}, fmt.Errorf("%w: address reply has neither street nor full address", types.ErrMalformedResponse)
	}
	return types.Address{
		Street:       ar.Street,
		Number:       ar.Number,
		Neighborhood: ar.Neighborhood,
		City:         ar.City,
		State:        ar.State,
		PostalCode:   ar.ZipCode,
		Formatted:    ar.FullAddress,
		Confidence:   ar.Confidence,
	}, nil
}
