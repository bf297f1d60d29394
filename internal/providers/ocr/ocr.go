// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ocr reads legible text off the query photo with Tesseract. The
// lines become extra place-search hints.
package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/otiai10/gosseract/v2"

	"github.com/pdiddy/geolocate/pkg/types"
)

// minSignificant is the fewest letters or digits a line needs to be kept.
const minSignificant = 3

// Reader wraps one Tesseract client. Calls are serialized.
type Reader struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates a Reader for the given Tesseract languages (default "eng").
func New(cfg types.OCRConfig) (*Reader, error) {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(langs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting OCR language: %w", err)
	}
	return &Reader{client: client}, nil
}

// Close releases the Tesseract client.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}

// ReadText returns the distinct significant lines of text in img.
func (r *Reader) ReadText(ctx context.Context, img types.Image) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, fmt.Errorf("setting page segmentation: %w", err)
	}
	if err := r.client.SetImageFromBytes(img.Data); err != nil {
		return nil, fmt.Errorf("%w: loading image into OCR: %v", types.ErrProviderFailure, err)
	}
	text, err := r.client.Text()
	if err != nil {
		return nil, fmt.Errorf("%w: OCR failed: %v", types.ErrProviderFailure, err)
	}
	return Lines(text), nil
}

// Lines splits OCR output into trimmed, whitespace-collapsed lines, dropping
// noise with fewer than three letters or digits and repeated lines.
func Lines(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if significant(line) < minSignificant {
			continue
		}
		key := strings.ToLower(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, line)
	}
	return out
}

func significant(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
