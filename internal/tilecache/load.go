package tilecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tilecache/internal/cache"
	"tilecache/internal/events"
	"tilecache/internal/raster"
	"tilecache/internal/tiles"
)

// Source tells where a loaded tile came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceStale   Source = "stale"
	SourceEmpty   Source = "empty"
)

type Result struct {
	Tile        tiles.Tile
	URL         string
	Data        []byte
	ContentType string
	Source      Source
}

// Load resolves a tile through the cache, falling back to the network.
//
// Fresh cached copies are served without touching the network. Stale copies
// are refreshed, and served as-is when the refresh fails. In cache-only mode
// a miss yields a transparent placeholder.
func (l *Layer) Load(ctx context.Context, tile tiles.Tile) (*Result, error) {
	url := l.template.URL(tile)
	l.emitTile(events.TileLoadStart, tile, url, nil)

	if !l.caching {
		return l.loadFromNetwork(ctx, tile, url)
	}

	rec, err := l.store.Get(ctx, url)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			l.logger.Warn("cache lookup failed, treating as miss", zap.String("url", url), zap.Error(err))
		}
		l.emitTile(events.TileCacheMiss, tile, url, nil)
		return l.onMiss(ctx, tile, url, "")
	}

	l.emitTile(events.TileCacheHit, tile, url, nil)

	if !l.isFresh(rec) {
		return l.refresh(ctx, tile, url, rec)
	}

	res, err := recordResult(tile, url, rec, SourceCache)
	if err != nil {
		// An unreadable payload is as good as no payload.
		l.logger.Warn("cached tile is corrupt", zap.String("url", url), zap.String("rev", rec.Rev), zap.Error(err))
		return l.onMiss(ctx, tile, url, rec.Rev)
	}
	l.emitTile(events.TileLoad, tile, url, nil)
	return res, nil
}

func (l *Layer) isFresh(rec cache.Record) bool {
	if l.opts.UseOnlyCache {
		return true
	}
	expires := time.UnixMilli(rec.Timestamp).Add(l.opts.CacheMaxAge)
	return !l.now().After(expires)
}

func (l *Layer) loadFromNetwork(ctx context.Context, tile tiles.Tile, url string) (*Result, error) {
	data, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		l.emitTile(events.TileError, tile, url, err)
		return nil, fmt.Errorf("load tile %s: %w", tile, err)
	}
	l.emitTile(events.TileLoad, tile, url, nil)
	return networkResult(tile, url, data), nil
}

// onMiss handles a tile with no usable cached copy. priorRev names a
// revision that a successful fetch should replace.
func (l *Layer) onMiss(ctx context.Context, tile tiles.Tile, url, priorRev string) (*Result, error) {
	if l.opts.UseOnlyCache {
		data, contentType, err := raster.DecodeDataURL(raster.EmptyImageURL)
		if err != nil {
			return nil, err
		}
		l.emitTile(events.TileLoad, tile, url, nil)
		return &Result{Tile: tile, URL: url, Data: data, ContentType: contentType, Source: SourceEmpty}, nil
	}

	data, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		l.emitTile(events.TileError, tile, url, err)
		return nil, fmt.Errorf("load tile %s: %w", tile, err)
	}
	if l.opts.SaveToCache {
		l.persist(ctx, url, data, priorRev)
	}
	l.emitTile(events.TileLoad, tile, url, nil)
	return networkResult(tile, url, data), nil
}

func (l *Layer) refresh(ctx context.Context, tile tiles.Tile, url string, rec cache.Record) (*Result, error) {
	data, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		l.logger.Info("refresh failed, serving stale tile",
			zap.String("url", url),
			zap.Time("cached_at", time.UnixMilli(rec.Timestamp)),
			zap.Error(err),
		)
		res, decodeErr := recordResult(tile, url, rec, SourceStale)
		if decodeErr != nil {
			err = errors.Join(err, decodeErr)
			l.emitTile(events.TileError, tile, url, err)
			return nil, fmt.Errorf("load tile %s: %w", tile, err)
		}
		l.emitTile(events.TileLoad, tile, url, nil)
		return res, nil
	}

	if l.opts.SaveToCache {
		l.persist(ctx, url, data, rec.Rev)
	}
	l.emitTile(events.TileLoad, tile, url, nil)
	return networkResult(tile, url, data), nil
}

func networkResult(tile tiles.Tile, url string, data []byte) *Result {
	return &Result{
		Tile:        tile,
		URL:         url,
		Data:        data,
		ContentType: http.DetectContentType(data),
		Source:      SourceNetwork,
	}
}

func recordResult(tile tiles.Tile, url string, rec cache.Record, source Source) (*Result, error) {
	data, contentType, err := raster.DecodeDataURL(rec.DataURL)
	if err != nil {
		return nil, err
	}
	return &Result{Tile: tile, URL: url, Data: data, ContentType: contentType, Source: source}, nil
}
