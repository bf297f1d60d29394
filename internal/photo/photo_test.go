// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package photo

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/geolocate/pkg/types"
)

// gradient draws a horizontal gray ramp, dark to light or reversed.
func gradient(w, h int, reversed bool) image.Image {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for x := range w {
		v := uint8(x * 255 / (w - 1))
		if reversed {
			v = 255 - v
		}
		for y := range h {
			m.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return m
}

func encodePNG(t *testing.T, m image.Image) types.Image {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, m))
	return types.NewImage(buf.Bytes(), "image/png")
}

func encodeJPEG(t *testing.T, m image.Image) types.Image {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, m, &jpeg.Options{Quality: 95}))
	return types.NewImage(buf.Bytes(), "image/jpeg")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "query.png")
	want := encodePNG(t, gradient(16, 16, false))
	require.NoError(t, os.WriteFile(path, want.Data, 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, "image/png", got.MIMEType)

	empty := filepath.Join(dir, "empty.jpg")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = Load(empty)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = Load(filepath.Join(dir, "missing.jpg"))
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"within bounds", 800, 600, 1024, 800, 600},
		{"landscape", 4000, 3000, 1024, 1024, 768},
		{"portrait", 3000, 4000, 1024, 768, 1024},
		{"square", 2048, 2048, 1024, 1024, 1024},
		{"extreme aspect", 10000, 5, 100, 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := Fit(tt.w, tt.h, tt.max)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestDownscale(t *testing.T) {
	big := encodePNG(t, gradient(400, 200, false))

	out, err := Downscale(big, 100)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", out.MIMEType)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)

	same, err := Downscale(big, 400)
	require.NoError(t, err)
	assert.Equal(t, big.ID, same.ID)

	unlimited, err := Downscale(big, 0)
	require.NoError(t, err)
	assert.Equal(t, big.ID, unlimited.ID)

	_, err = Downscale(types.NewImage([]byte("not an image"), ""), 100)
	assert.Error(t, err)
}

func TestDeduper(t *testing.T) {
	d := NewDeduper()

	ramp := encodePNG(t, gradient(64, 64, false))
	assert.False(t, d.Seen(ramp))
	assert.True(t, d.Seen(ramp), "identical bytes")

	reencoded := encodeJPEG(t, gradient(64, 64, false))
	require.NotEqual(t, ramp.ID, reencoded.ID)
	assert.True(t, d.Seen(reencoded), "same view in another encoding")

	assert.False(t, d.Seen(encodePNG(t, gradient(64, 64, true))), "mirrored ramp is a different view")
}

func TestDeduperAcceptsUndecodable(t *testing.T) {
	d := NewDeduper()
	a := types.NewImage([]byte("opaque-a"), "image/jpeg")
	b := types.NewImage([]byte("opaque-b"), "image/jpeg")

	assert.False(t, d.Seen(a))
	assert.False(t, d.Seen(b))
	assert.True(t, d.Seen(a))
}

func TestGPSWithoutExif(t *testing.T) {
	_, ok := GPS(encodePNG(t, gradient(8, 8, false)))
	assert.False(t, ok)

	_, ok = GPS(types.Image{})
	assert.False(t, ok)
}

func TestReencode(t *testing.T) {
	src := encodePNG(t, gradient(32, 16, false))
	out, err := Reencode(src)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", out.MIMEType)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 32, cfg.Width)
}
