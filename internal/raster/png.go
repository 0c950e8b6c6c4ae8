package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// PNGEncoder decodes any registered image format, draws it onto a reused
// surface and encodes the surface as a PNG data URL.
type PNGEncoder struct {
	mu      sync.Mutex
	surface *image.NRGBA
	enc     png.Encoder
}

func NewPNGEncoder() *PNGEncoder {
	return &PNGEncoder{
		enc: png.Encoder{CompressionLevel: png.BestSpeed},
	}
}

func (e *PNGEncoder) Encode(raw []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	// The surface is overwritten per tile; encoding must finish before the next draw.
	e.mu.Lock()
	defer e.mu.Unlock()

	b := img.Bounds()
	if e.surface == nil || e.surface.Bounds().Dx() != b.Dx() || e.surface.Bounds().Dy() != b.Dy() {
		e.surface = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(e.surface, e.surface.Bounds(), img, b.Min, draw.Src)

	var buf bytes.Buffer
	if err := e.enc.Encode(&buf, e.surface); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return EncodeDataURL("image/png", buf.Bytes()), nil
}
