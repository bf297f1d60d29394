// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package photo

import (
	"bytes"
	"math"
	"strings"

	"github.com/bep/imagemeta"

	"github.com/pdiddy/geolocate/pkg/types"
)

// GPS returns the coordinate embedded in the photo's EXIF data. ok is false
// when the photo carries no usable position; parse failures are not errors.
func GPS(img types.Image) (c types.Coordinate, ok bool) {
	if len(img.Data) == 0 {
		return types.Coordinate{}, false
	}

	var tags imagemeta.Tags
	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(img.Data),
		Sources: imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return strings.HasPrefix(ti.Tag, "GPS")
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			tags.Add(ti)
			return nil
		},
	})
	if err != nil {
		return types.Coordinate{}, false
	}

	lat, lon, err := tags.GetLatLong()
	if err != nil || math.IsNaN(lat) || math.IsNaN(lon) {
		return types.Coordinate{}, false
	}
	c = types.Coordinate{Lat: lat, Lon: lon}
	if c.IsZero() || c.Validate() != nil {
		return types.Coordinate{}, false
	}
	return c, true
}
