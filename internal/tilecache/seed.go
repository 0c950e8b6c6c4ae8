package tilecache

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"tilecache/internal/cache"
	"tilecache/internal/events"
	"tilecache/internal/fetch"
	"tilecache/internal/geo"
	"tilecache/internal/tiles"
)

// SeedRequest describes an area to prefetch. Points and line vertices are
// buffered by Feet before the covering tiles are computed. BBox, when set,
// is covered as given.
type SeedRequest struct {
	Points  []geo.Point
	Lines   [][]geo.Point
	BBox    *orb.Bound
	MinZoom int
	MaxZoom int
	Feet    float64
}

type seedItem struct {
	tile tiles.Tile
	url  string
}

// Seed downloads every tile covering req into the cache, one at a time.
// Tiles already cached are skipped. Progress is reported through the sink.
// Seed returns when the queue is drained or ctx is done.
func (l *Layer) Seed(ctx context.Context, req SeedRequest) {
	if req.MinZoom > req.MaxZoom || l.projector == nil {
		return
	}
	if req.MinZoom < 0 || req.MaxZoom > tiles.MaxZoom {
		l.logger.Warn("seed ignored, zoom range out of bounds",
			zap.Int("min_zoom", req.MinZoom),
			zap.Int("max_zoom", req.MaxZoom),
		)
		return
	}
	if l.encoder == nil {
		l.logger.Warn("seed ignored, no raster encoder available")
		return
	}

	boxes := geo.Expand(req.Points, req.Lines, geo.Buffer(req.Feet))
	if req.BBox != nil {
		boxes = append(boxes, *req.BBox)
	}

	var queue []seedItem
	for _, t := range tiles.Enumerate(boxes, req.MinZoom, req.MaxZoom, l.projector) {
		if !t.Valid() {
			continue
		}
		queue = append(queue, seedItem{tile: t, url: l.template.URL(t)})
	}

	data := events.SeedData{
		BBox:        req.BBox,
		MinZoom:     req.MinZoom,
		MaxZoom:     req.MaxZoom,
		QueueLength: len(queue),
	}
	l.logger.Info("seed started",
		zap.Int("queue_length", len(queue)),
		zap.Int("min_zoom", req.MinZoom),
		zap.Int("max_zoom", req.MaxZoom),
	)
	l.emitSeed(events.SeedStart, data)

	l.runSeed(ctx, queue, data)
}

func (l *Layer) runSeed(ctx context.Context, queue []seedItem, data events.SeedData) {
	started := time.Now()
	fetched, skipped, failed := 0, 0, 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			l.logger.Info("seed cancelled", zap.Int("remaining", len(queue)), zap.Error(err))
			break
		}

		data.RemainingLength = len(queue)
		l.emitSeed(events.SeedProgress, data)

		item := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		switch l.seedOne(ctx, item) {
		case seedFetched:
			fetched++
		case seedSkipped:
			skipped++
		case seedFailed:
			failed++
		case seedInterrupted:
			// The tile was not attempted to completion; count it as remaining.
			queue = append(queue, item)
		}
	}

	data.RemainingLength = len(queue)
	l.logger.Info("seed finished",
		zap.Int("fetched", fetched),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Int("remaining", len(queue)),
		zap.Duration("elapsed", time.Since(started)),
	)
	l.emitSeed(events.SeedEnd, data)
}

type seedOutcome int

const (
	seedFetched seedOutcome = iota
	seedSkipped
	seedFailed
	seedInterrupted
)

func (l *Layer) seedOne(ctx context.Context, item seedItem) seedOutcome {
	_, err := l.store.Get(ctx, item.url)
	if err == nil {
		return seedSkipped
	}
	if !errors.Is(err, cache.ErrNotFound) {
		l.logger.Warn("cache lookup failed during seed", zap.String("url", item.url), zap.Error(err))
	}

	raw, err := l.fetchWithRetry(ctx, item.url)
	if err != nil {
		if ctx.Err() != nil {
			return seedInterrupted
		}
		l.emitTile(events.SeedTileError, item.tile, item.url, err)
		return seedFailed
	}

	if err := l.save(ctx, item.url, raw, ""); err != nil {
		l.logger.Warn("failed to cache seeded tile", zap.String("url", item.url), zap.Error(err))
		l.emitTile(events.SeedTileError, item.tile, item.url, err)
		return seedFailed
	}
	return seedFetched
}

func (l *Layer) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	if l.seedLimiter != nil {
		if err := l.seedLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	op := func() ([]byte, error) {
		raw, err := l.fetcher.Fetch(ctx, url)
		if err == nil {
			return raw, nil
		}
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && !retryableStatus(statusErr.Status) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	raw, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(l.newBackOff()),
		backoff.WithMaxTries(uint(l.seedRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			l.logger.Debug("retrying seed fetch", zap.String("url", url), zap.Duration("backoff", next), zap.Error(err))
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Unwrap()
		}
		return nil, err
	}
	return raw, nil
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
