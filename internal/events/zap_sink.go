package events

import "go.uber.org/zap"

// ZapSink logs per-tile events at debug level and seed events at info level.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(e Event) {
	fields := []zap.Field{zap.String("event", string(e.Type))}
	if e.URL != "" {
		fields = append(fields, zap.String("url", e.URL))
	}
	if e.Tile != nil {
		fields = append(fields, zap.Stringer("tile", e.Tile))
	}
	if e.Err != "" {
		fields = append(fields, zap.String("error", e.Err))
	}
	if e.Seed != nil {
		fields = append(fields,
			zap.Int("min_zoom", e.Seed.MinZoom),
			zap.Int("max_zoom", e.Seed.MaxZoom),
			zap.Int("queue_length", e.Seed.QueueLength),
			zap.Int("remaining_length", e.Seed.RemainingLength),
		)
	}

	switch e.Type {
	case SeedStart, SeedEnd:
		s.logger.Info("seed", fields...)
	case SeedTileError, TileError:
		s.logger.Warn("tile event", fields...)
	case SeedProgress:
		s.logger.Debug("seed", fields...)
	default:
		s.logger.Debug("tile event", fields...)
	}
}
