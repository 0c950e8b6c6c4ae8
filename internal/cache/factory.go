package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// Settings carries backend-specific locations.
type Settings struct {
	FileDir     string
	SQLitePath  string
	RedisURL    string
	RedisPrefix string
}

// NewStore creates a store instance based on the cache type
func NewStore(cacheType string, settings Settings, log *zap.Logger) (Store, error) {
	switch cacheType {
	case "memory":
		log.Info("Using memory cache")
		return NewMemoryCache(), nil
	case "file":
		log.Info("Using file cache", zap.String("cache_dir", settings.FileDir))
		return NewFileCache(settings.FileDir)
	case "sqlite":
		log.Info("Using sqlite cache", zap.String("path", settings.SQLitePath))
		return OpenSQLiteCache(settings.SQLitePath)
	case "redis":
		log.Info("Using redis cache", zap.String("prefix", settings.RedisPrefix))
		return NewRedisCache(settings.RedisURL, settings.RedisPrefix)
	case "disabled":
		log.Info("Cache disabled")
		return NewNoopCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: memory, file, sqlite, redis, disabled)", cacheType)
	}
}
