// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package claude

import (
	"context"
	"fmt"

	"github.com/pdiddy/geolocate/pkg/types"
)

// Analyze returns the structured description of img.
func (c *Client) Analyze(ctx context.Context, img types.Image) (types.Description, error) {
	block, err := c.imageBlock(img)
	if err != nil {
		return types.Description{}, err
	}
	prompt, err := render(describePrompt, nil)
	if err != nil {
		return types.Description{}, fmt.Errorf("rendering prompt: %w", err)
	}

	reply, err := c.complete(ctx, []contentBlock{block, textBlock(prompt)})
	if err != nil {
		return types.Description{}, err
	}
	var d types.Description
	if err := decodeReply(reply, &d); err != nil {
		return types.Description{}, fmt.Errorf("image description: %w", err)
	}
	return d, nil
}
