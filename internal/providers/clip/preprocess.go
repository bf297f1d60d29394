// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package clip

import (
	"image"

	"golang.org/x/image/draw"
)

// CLIP normalization constants, per RGB channel.
var (
	mean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	std  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocess resizes m so its shorter side is size, center-crops a size×size
// square and returns the normalized pixels in CHW order.
func Preprocess(m image.Image, size int) []float32 {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	sw, sh := size, size
	if w < h {
		sh = max(size, h*size/w)
	} else if h > 0 {
		sw = max(size, w*size/h)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), m, b, draw.Src, nil)

	x0, y0 := (sw-size)/2, (sh-size)/2
	plane := size * size
	out := make([]float32, 3*plane)
	for y := range size {
		for x := range size {
			p := scaled.PixOffset(x0+x, y0+y)
			i := y*size + x
			for c := range 3 {
				out[c*plane+i] = (float32(scaled.Pix[p+c])/255 - mean[c]) / std[c]
			}
		}
	}
	return out
}
