package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tilecache/internal/cache"
	"tilecache/internal/config"
	"tilecache/internal/events"
	"tilecache/internal/fetch"
	"tilecache/internal/geo"
	httphandlers "tilecache/internal/http"
	"tilecache/internal/logger"
	"tilecache/internal/raster"
	"tilecache/internal/raster/vipsraster"
	"tilecache/internal/tilecache"
	"tilecache/internal/tiles"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	var encoder raster.Encoder
	switch cfg.Encoder {
	case "png":
		encoder = raster.NewPNGEncoder()
	case "vips":
		shutdown := vipsraster.Startup(vipsraster.Config{
			Concurrency: cfg.VipsConcurrency,
			MaxCacheMB:  cfg.VipsMaxCacheMB,
		}, log)
		defer shutdown()
		encoder = vipsraster.NewEncoder(log)
	case "none":
		log.Info("Tile encoding disabled")
	default:
		log.Fatal("Unknown encoder", zap.String("encoder", cfg.Encoder))
	}

	log.Info("Starting tilecache server",
		zap.Int("port", cfg.Port),
		zap.String("tile_url", cfg.TileURL),
		zap.String("cache", cfg.CacheType),
		zap.String("encoder", cfg.Encoder),
	)

	store, err := cache.NewStore(cfg.CacheType, cache.Settings{
		FileDir:     cfg.CacheFileDir,
		SQLitePath:  cfg.CacheSQLitePath,
		RedisURL:    cfg.RedisURL,
		RedisPrefix: cfg.RedisPrefix,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer store.Close()

	template, err := tiles.NewTemplate(cfg.TileURL, cfg.Subdomains)
	if err != nil {
		log.Fatal("Invalid tile url", zap.Error(err))
	}

	fetcher := fetch.NewHTTPFetcher(fetch.Options{
		Timeout:   cfg.FetchTimeout,
		UserAgent: cfg.UserAgent,
	}, log)
	defer fetcher.Close()

	bus := events.NewBus()
	seedLog := events.NewBoundedRecorder(events.IsSeed, cfg.SeedEventsLimit)
	bus.Subscribe(events.NewZapSink(log))
	bus.Subscribe(seedLog)

	layer, err := tilecache.New(tilecache.Config{
		Options: tilecache.Options{
			UseCache:     cfg.UseCache,
			SaveToCache:  cfg.SaveToCache,
			UseOnlyCache: cfg.UseOnlyCache,
			CacheMaxAge:  cfg.CacheMaxAge,
		},
		Store:       store,
		Encoder:     encoder,
		Fetcher:     fetcher,
		Template:    template,
		Projector:   tiles.NewWebMercator(cfg.TileSize),
		Sink:        bus,
		Logger:      log,
		SeedRate:    cfg.SeedRate,
		SeedRetries: cfg.SeedRetries,
	})
	if err != nil {
		log.Fatal("Failed to initialize tile layer", zap.Error(err))
	}

	seedCtx, stopSeeds := context.WithCancel(context.Background())
	defer stopSeeds()

	handlers := httphandlers.New(seedCtx, cfg, log, layer, seedLog)

	points, err := cfg.StartupSeedPoints()
	if err != nil {
		log.Fatal("Invalid SEED_ON_START", zap.Error(err))
	}
	if len(points) > 0 {
		req := tilecache.SeedRequest{
			MinZoom: cfg.SeedMinZoom,
			MaxZoom: cfg.SeedMaxZoom,
			Feet:    cfg.SeedFeet,
		}
		for _, p := range points {
			req.Points = append(req.Points, geo.PointFrom(p))
		}
		jobID := handlers.StartSeed(req)
		log.Info("Startup seed queued", zap.String("job_id", jobID), zap.Int("points", len(points)))
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handlers.Routes(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.Int("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	stopSeeds()
	handlers.WaitSeeds()

	log.Info("Server stopped")
}
