package raster

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	return img
}

func TestPNGEncoderFormats(t *testing.T) {
	src := testImage(8, 6)

	var pngBuf, jpegBuf, gifBuf bytes.Buffer
	if err := png.Encode(&pngBuf, src); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	if err := jpeg.Encode(&jpegBuf, src, nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	if err := gif.Encode(&gifBuf, src, nil); err != nil {
		t.Fatalf("gif encode: %v", err)
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"png", pngBuf.Bytes()},
		{"jpeg", jpegBuf.Bytes()},
		{"gif", gifBuf.Bytes()},
	}

	enc := NewPNGEncoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataURL, err := enc.Encode(tt.raw)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			data, contentType, err := DecodeDataURL(dataURL)
			if err != nil {
				t.Fatalf("decode data url: %v", err)
			}
			if contentType != "image/png" {
				t.Fatalf("content type = %q, want image/png", contentType)
			}
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("payload is not a png: %v", err)
			}
			if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
				t.Fatalf("bounds = %v, want 8x6", img.Bounds())
			}
		})
	}
}

func TestPNGEncoderReusesSurfaceAcrossSizes(t *testing.T) {
	enc := NewPNGEncoder()

	for _, size := range []int{4, 4, 9} {
		var buf bytes.Buffer
		if err := png.Encode(&buf, testImage(size, size)); err != nil {
			t.Fatalf("png encode: %v", err)
		}
		dataURL, err := enc.Encode(buf.Bytes())
		if err != nil {
			t.Fatalf("encode %dx%d: %v", size, size, err)
		}
		data, _, err := DecodeDataURL(dataURL)
		if err != nil {
			t.Fatalf("decode data url: %v", err)
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode config: %v", err)
		}
		if cfg.Width != size || cfg.Height != size {
			t.Fatalf("encoded %dx%d, want %dx%d", cfg.Width, cfg.Height, size, size)
		}
	}
}

func TestPNGEncoderRejectsGarbage(t *testing.T) {
	if _, err := NewPNGEncoder().Encode([]byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeDataURL(t *testing.T) {
	data, contentType, err := DecodeDataURL(EmptyImageURL)
	if err != nil {
		t.Fatalf("decode empty image: %v", err)
	}
	if contentType != "image/gif" {
		t.Fatalf("content type = %q, want image/gif", contentType)
	}
	if !bytes.HasPrefix(data, []byte("GIF89a")) {
		t.Fatalf("payload does not look like a gif: %q", data[:6])
	}

	round, ct, err := DecodeDataURL(EncodeDataURL("image/webp", []byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if ct != "image/webp" || !bytes.Equal(round, []byte{1, 2, 3}) {
		t.Fatalf("round trip = %v %q", round, ct)
	}

	for _, bad := range []string{"", "http://x", "data:image/png,plain", "data:image/png;base64,!!!", "data:image/png;base64"} {
		if _, _, err := DecodeDataURL(bad); !errors.Is(err, ErrInvalidDataURL) {
			t.Errorf("DecodeDataURL(%q) error = %v, want %v", bad, err, ErrInvalidDataURL)
		}
	}
}
