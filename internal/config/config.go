package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN"`

	TileURL      string        `env:"TILE_URL" envDefault:"https://tile.openstreetmap.org/{z}/{x}/{y}.png"`
	Subdomains   []string      `env:"TILE_SUBDOMAINS" envSeparator:","`
	TileSize     int           `env:"TILE_SIZE" envDefault:"256"`
	MinZoom      int           `env:"MIN_ZOOM" envDefault:"0"`
	MaxZoom      int           `env:"MAX_ZOOM" envDefault:"19"`
	UserAgent    string        `env:"USER_AGENT" envDefault:"tilecache/1.0"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s"`

	UseCache     bool          `env:"USE_CACHE" envDefault:"false"`
	SaveToCache  bool          `env:"SAVE_TO_CACHE" envDefault:"true"`
	UseOnlyCache bool          `env:"USE_ONLY_CACHE" envDefault:"false"`
	CacheMaxAge  time.Duration `env:"CACHE_MAX_AGE" envDefault:"24h"`

	CacheType       string `env:"CACHE" envDefault:"memory"`
	CacheFileDir    string `env:"CACHE_FILE_DIR" envDefault:"./data/cache"`
	CacheSQLitePath string `env:"CACHE_SQLITE_PATH" envDefault:"./data/tiles.db"`
	RedisURL        string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix     string `env:"REDIS_PREFIX" envDefault:"tilecache:"`

	Encoder         string `env:"ENCODER" envDefault:"png"`
	VipsConcurrency int    `env:"VIPS_CONCURRENCY" envDefault:"1"`
	VipsMaxCacheMB  int    `env:"VIPS_MAX_CACHE_MB" envDefault:"64"`

	SeedRate    float64 `env:"SEED_RATE" envDefault:"2"`
	SeedRetries int     `env:"SEED_RETRIES" envDefault:"2"`

	// SeedEventsLimit caps the seed events kept for /api/seed/events.
	SeedEventsLimit int `env:"SEED_EVENTS_LIMIT" envDefault:"1000"`

	SeedOnStart string  `env:"SEED_ON_START"`
	SeedMinZoom int     `env:"SEED_MIN_ZOOM" envDefault:"10"`
	SeedMaxZoom int     `env:"SEED_MAX_ZOOM" envDefault:"14"`
	SeedFeet    float64 `env:"SEED_FEET" envDefault:"600"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.TileSize <= 0 {
		return nil, fmt.Errorf("TILE_SIZE must be positive, got %d", cfg.TileSize)
	}
	if cfg.MinZoom > cfg.MaxZoom {
		return nil, fmt.Errorf("MIN_ZOOM %d exceeds MAX_ZOOM %d", cfg.MinZoom, cfg.MaxZoom)
	}
	if cfg.SeedEventsLimit <= 0 {
		return nil, fmt.Errorf("SEED_EVENTS_LIMIT must be positive, got %d", cfg.SeedEventsLimit)
	}
	return cfg, nil
}

// StartupSeedPoints parses SEED_ON_START ("lat,lng;lat,lng") into [lat, lng] pairs.
func (c *Config) StartupSeedPoints() ([][2]float64, error) {
	raw := strings.TrimSpace(c.SeedOnStart)
	if raw == "" {
		return nil, nil
	}

	var points [][2]float64
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid seed point %q: want lat,lng", pair)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", pair, err)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", pair, err)
		}
		points = append(points, [2]float64{lat, lng})
	}
	return points, nil
}
