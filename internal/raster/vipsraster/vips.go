// Package vipsraster encodes tiles with libvips. It needs cgo and libvips at
// build time, so it lives apart from the pure-Go encoder.
package vipsraster

import (
	"fmt"
	"sync"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"tilecache/internal/raster"
)

type Config struct {
	Concurrency int
	MaxCacheMB  int
}

// Startup initializes libvips and routes its warnings to log.
// The returned function shuts libvips down.
func Startup(cfg Config, log *zap.Logger) func() {
	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.Concurrency,
		MaxCacheMem:      cfg.MaxCacheMB * 1024 * 1024,
		MaxCacheFiles:    0,
		MaxCacheSize:     0,
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelWarning)

	vips.Startup(vipsConfig)

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", cfg.MaxCacheMB),
		zap.Int("concurrency", cfg.Concurrency),
	)
	return vips.Shutdown
}

// Encoder re-encodes fetched tiles as PNG data URLs through libvips.
type Encoder struct {
	mu  sync.Mutex
	log *zap.Logger
}

var _ raster.Encoder = (*Encoder)(nil)

func NewEncoder(log *zap.Logger) *Encoder {
	return &Encoder{log: log}
}

func (e *Encoder) Encode(raw []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	image, err := vips.NewImageFromBuffer(raw, nil)
	if err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}
	defer image.Close()

	pngOpts := vips.DefaultPngsaveBufferOptions()
	pngOpts.Compression = 6
	pngOpts.Interlace = false

	data, err := image.PngsaveBuffer(pngOpts)
	if err != nil {
		return "", fmt.Errorf("failed to export: %w", err)
	}

	e.log.Debug("vips encoded tile",
		zap.Int("width", image.Width()),
		zap.Int("height", image.Height()),
		zap.Int("bytes", len(data)),
	)
	return raster.EncodeDataURL("image/png", data), nil
}
