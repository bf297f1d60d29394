// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package photo loads query photos and prepares images for providers.
package photo

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/pdiddy/geolocate/pkg/types"
)

// JPEGQuality is used whenever an image is re-encoded.
const JPEGQuality = 85

// Load reads an image file. The content type is sniffed from the bytes.
func Load(path string) (types.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Image{}, fmt.Errorf("reading photo: %w", err)
	}
	if len(data) == 0 {
		return types.Image{}, fmt.Errorf("%w: photo %s is empty", types.ErrInvalidConfig, path)
	}
	return types.NewImage(data, ""), nil
}

// Decode decodes an image in any registered format.
func Decode(img types.Image) (image.Image, error) {
	m, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("decoding image %.12s: %w", img.ID, err)
	}
	return m, nil
}

// Downscale re-encodes img as JPEG with its longest side at most maxSide.
// Images already within bounds, and maxSide <= 0, return img unchanged.
func Downscale(img types.Image, maxSide int) (types.Image, error) {
	if maxSide <= 0 {
		return img, nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return types.Image{}, fmt.Errorf("reading image header: %w", err)
	}
	if cfg.Width <= maxSide && cfg.Height <= maxSide {
		return img, nil
	}

	src, err := Decode(img)
	if err != nil {
		return types.Image{}, err
	}
	w, h := Fit(cfg.Width, cfg.Height, maxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return types.Image{}, fmt.Errorf("encoding image: %w", err)
	}
	return types.NewImage(buf.Bytes(), "image/jpeg"), nil
}

// Reencode decodes img and encodes it again as JPEG at its full size.
func Reencode(img types.Image) (types.Image, error) {
	m, err := Decode(img)
	if err != nil {
		return types.Image{}, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, m, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return types.Image{}, fmt.Errorf("encoding image: %w", err)
	}
	return types.NewImage(buf.Bytes(), "image/jpeg"), nil
}

// Fit scales w×h so the longest side is maxSide, keeping the aspect ratio.
func Fit(w, h, maxSide int) (int, int) {
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	if w >= h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}
