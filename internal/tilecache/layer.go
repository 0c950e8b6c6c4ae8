// Package tilecache serves map tiles through a persistent cache and seeds
// that cache ahead of time for offline use.
package tilecache

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tilecache/internal/cache"
	"tilecache/internal/events"
	"tilecache/internal/fetch"
	"tilecache/internal/raster"
	"tilecache/internal/tiles"
)

const defaultRetryInterval = 500 * time.Millisecond

// Options controls how Load consults the cache.
type Options struct {
	UseCache     bool
	SaveToCache  bool
	UseOnlyCache bool
	CacheMaxAge  time.Duration
}

func DefaultOptions() Options {
	return Options{
		UseCache:     false,
		SaveToCache:  true,
		UseOnlyCache: false,
		CacheMaxAge:  24 * time.Hour,
	}
}

// Config wires a Layer to its collaborators.
type Config struct {
	Options   Options
	Store     cache.Store
	Encoder   raster.Encoder
	Fetcher   fetch.Fetcher
	Template  *tiles.Template
	Projector tiles.Projector
	Sink      events.Sink
	Logger    *zap.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time

	// SeedRate is the number of seed fetches allowed per second. Zero means unlimited.
	SeedRate float64
	// SeedRetries is the number of extra attempts for a failed seed fetch.
	SeedRetries       int
	SeedRetryInterval time.Duration
}

// Layer loads tiles for one tile source.
type Layer struct {
	opts      Options
	caching   bool
	store     cache.Store
	encoder   raster.Encoder
	fetcher   fetch.Fetcher
	template  *tiles.Template
	projector tiles.Projector
	sink      events.Sink
	logger    *zap.Logger
	now       func() time.Time

	seedLimiter       *rate.Limiter
	seedRetries       int
	seedRetryInterval time.Duration
}

func New(cfg Config) (*Layer, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("tilecache: fetcher is required")
	}
	if cfg.Template == nil {
		return nil, errors.New("tilecache: tile url template is required")
	}
	if cfg.SeedRetries < 0 {
		return nil, errors.New("tilecache: seed retries must not be negative")
	}

	l := &Layer{
		opts:              cfg.Options,
		store:             cfg.Store,
		encoder:           cfg.Encoder,
		fetcher:           cfg.Fetcher,
		template:          cfg.Template,
		projector:         cfg.Projector,
		sink:              cfg.Sink,
		logger:            cfg.Logger,
		now:               cfg.Clock,
		seedRetries:       cfg.SeedRetries,
		seedRetryInterval: cfg.SeedRetryInterval,
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.sink == nil {
		l.sink = events.SinkFunc(func(events.Event) {})
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.store == nil {
		l.store = cache.NewNoopCache()
	}
	if l.seedRetryInterval <= 0 {
		l.seedRetryInterval = defaultRetryInterval
	}
	if cfg.SeedRate > 0 {
		l.seedLimiter = rate.NewLimiter(rate.Limit(cfg.SeedRate), 1)
	}

	// Caching needs a way to turn fetched bytes into a storable payload.
	l.caching = l.opts.UseCache && l.encoder != nil
	if l.opts.UseCache && l.encoder == nil {
		l.logger.Warn("no raster encoder available, tile caching disabled")
	}

	return l, nil
}

// CachingEnabled reports whether Load consults the store.
func (l *Layer) CachingEnabled() bool {
	return l.caching
}

// URL returns the source URL for a tile.
func (l *Layer) URL(tile tiles.Tile) string {
	return l.template.URL(tile)
}

func (l *Layer) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.seedRetryInterval
	b.MaxInterval = 10 * l.seedRetryInterval
	return b
}

func (l *Layer) emitTile(typ events.Type, tile tiles.Tile, url string, err error) {
	e := events.Event{Type: typ, Tile: &tile, URL: url}
	if err != nil {
		e.Err = err.Error()
	}
	l.sink.Emit(e)
}

func (l *Layer) emitSeed(typ events.Type, data events.SeedData) {
	l.sink.Emit(events.Event{Type: typ, Seed: &data})
}
