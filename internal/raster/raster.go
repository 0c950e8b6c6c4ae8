// Package raster turns fetched tile images into portable data URLs and back.
package raster

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// EmptyImageURL is a 1x1 transparent GIF served when a tile is unavailable.
const EmptyImageURL = "data:image/gif;base64,R0lGODlhAQABAAD/ACwAAAAAAQABAAACADs="

var ErrInvalidDataURL = errors.New("raster: invalid data url")

// Encoder rasterizes a loaded image into a compact embeddable string.
type Encoder interface {
	Encode(raw []byte) (string, error)
}

// EncodeDataURL wraps bytes in a base64 data URL.
func EncodeDataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL returns the payload and content type of a base64 data URL.
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrInvalidDataURL
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
	}
	if contentType == "" {
		contentType = "text/plain"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return data, contentType, nil
}
