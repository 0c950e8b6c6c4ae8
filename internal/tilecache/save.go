package tilecache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tilecache/internal/cache"
)

// save encodes raw and stores it under url. When priorRev is set, that
// revision is removed first so only the newest copy stays live.
func (l *Layer) save(ctx context.Context, url string, raw []byte, priorRev string) error {
	if l.encoder == nil {
		return nil
	}

	dataURL, err := l.encoder.Encode(raw)
	if err != nil {
		return fmt.Errorf("encode tile: %w", err)
	}
	doc := cache.Document{
		DataURL:   dataURL,
		Timestamp: l.now().UnixMilli(),
	}

	if priorRev != "" {
		if err := l.store.Remove(ctx, url, priorRev); err != nil && !errors.Is(err, cache.ErrNotFound) {
			l.logger.Warn("failed to remove prior tile revision",
				zap.String("url", url),
				zap.String("rev", priorRev),
				zap.Error(err),
			)
		}
	}

	if _, err := l.store.Put(ctx, url, doc); err != nil {
		return fmt.Errorf("store tile: %w", err)
	}
	return nil
}

// persist saves and logs failures. The caller's load continues either way.
func (l *Layer) persist(ctx context.Context, url string, raw []byte, priorRev string) {
	if err := l.save(ctx, url, raw, priorRev); err != nil {
		l.logger.Warn("failed to cache tile", zap.String("url", url), zap.Error(err))
	}
}
