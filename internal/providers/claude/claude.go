// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package claude implements the vision, contextual validation and address
// capabilities on the Claude Messages API.
package claude

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/geolocate/internal/httputil"
	"github.com/pdiddy/geolocate/internal/logger"
	"github.com/pdiddy/geolocate/internal/photo"
	"github.com/pdiddy/geolocate/internal/throttle"
	"github.com/pdiddy/geolocate/pkg/types"
)

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

const anthropicVersion = "2023-06-01"

// supportedMedia are the image types the Messages API accepts.
var supportedMedia = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Client calls the Claude Messages API. One Client serves all three
// capabilities and shares a rate limiter between them.
type Client struct {
	http    *http.Client
	cfg     types.AIConfig
	limiter *throttle.Limiter
	log     *slog.Logger
}

// New creates a Client. delay is the minimum spacing between API calls.
func New(cfg types.AIConfig, delay time.Duration, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key is required", types.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: AI model is required", types.ErrInvalidConfig)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		cfg:     cfg,
		limiter: throttle.NewLimiter(delay),
		log:     logger.OrDiscard(log),
	}, nil
}

// claudeRequest is the request body for the Claude Messages API.
type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

// claudeMessage is a single message in the conversation.
type claudeMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

// contentBlock is a text or image block.
type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// claudeResponse is the response body from the Claude Messages API.
type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func textBlock(s string) contentBlock {
	return contentBlock{Type: "text", Text: s}
}

// imageBlock downscales img to the configured bound and re-encodes formats
// the API does not accept.
func (c *Client) imageBlock(img types.Image) (contentBlock, error) {
	out, err := photo.Downscale(img, c.cfg.MaxImageSide)
	if err != nil {
		return contentBlock{}, fmt.Errorf("preparing image: %w", err)
	}
	if !supportedMedia[out.MIMEType] {
		if out, err = photo.Reencode(out); err != nil {
			return contentBlock{}, fmt.Errorf("preparing image: %w", err)
		}
	}
	return contentBlock{
		Type: "image",
		Source: &imageSource{
			Type:      "base64",
			MediaType: out.MIMEType,
			Data:      base64.StdEncoding.EncodeToString(out.Data),
		},
	}, nil
}

// complete sends one user turn and returns the concatenated text reply.
func (c *Client) complete(ctx context.Context, content []contentBlock) (string, error) {
	maxTokens := c.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	body, err := json.Marshal(claudeRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("%w: calling Claude API: %v", types.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: Claude API returned %d: %s", types.ErrProviderFailure, resp.StatusCode, string(raw))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("%w: decoding Claude response: %v", types.ErrMalformedResponse, err)
	}

	var sb strings.Builder
	for _, block := range cResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text content in Claude API response", types.ErrMalformedResponse)
	}
	if cResp.StopReason == "max_tokens" {
		c.log.Warn("Claude reply truncated at max tokens", "max_tokens", maxTokens)
	}
	return sb.String(), nil
}

// decodeReply unmarshals a JSON reply, tolerating markdown fences and prose
// around the object.
func decodeReply(text string, v any) error {
	s := stripFences(text)
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("%w: reply contains no JSON object", types.ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: parsing reply JSON: %v", types.ErrMalformedResponse, err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
