// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// Image is an encoded image with a stable identity. ID is the hex SHA-256 of
// Data, so two byte-identical images share one identity.
type Image struct {
	ID       string `json:"id" yaml:"id"`
	MIMEType string `json:"mime_type" yaml:"mime_type"`
	Data     []byte `json:"-" yaml:"-"`
}

// NewImage wraps encoded bytes, deriving the identity from the content and
// sniffing the MIME type when mimeType is empty.
func NewImage(data []byte, mimeType string) Image {
	sum := sha256.Sum256(data)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return Image{
		ID:       hex.EncodeToString(sum[:]),
		MIMEType: mimeType,
		Data:     data,
	}
}
