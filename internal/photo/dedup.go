// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package photo

import (
	"sync"

	"github.com/corona10/goimagehash"

	"github.com/pdiddy/geolocate/pkg/types"
)

// DuplicateDistance is the dHash Hamming distance below which two images
// count as the same view.
const DuplicateDistance = 10

// Deduper drops repeated imagery. Byte-identical images are always
// duplicates; decodable images are also compared by difference hash.
// Images that cannot be decoded are accepted. Safe for concurrent use.
type Deduper struct {
	mu     sync.Mutex
	ids    map[string]bool
	hashes []*goimagehash.ImageHash
}

// NewDeduper returns an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{ids: make(map[string]bool)}
}

// Seen reports whether img duplicates an earlier image, recording it if not.
func (d *Deduper) Seen(img types.Image) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ids[img.ID] {
		return true
	}
	d.ids[img.ID] = true

	m, err := Decode(img)
	if err != nil {
		return false
	}
	hash, err := goimagehash.DifferenceHash(m)
	if err != nil {
		return false
	}
	for _, h := range d.hashes {
		dist, err := hash.Distance(h)
		if err == nil && dist < DuplicateDistance {
			return true
		}
	}
	d.hashes = append(d.hashes, hash)
	return false
}
