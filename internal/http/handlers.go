package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"tilecache/internal/config"
	"tilecache/internal/events"
	"tilecache/internal/geo"
	"tilecache/internal/tilecache"
	"tilecache/internal/tiles"
)

const maxSeedBody = 1 << 20

type Handlers struct {
	config  *config.Config
	logger  *zap.Logger
	layer   *tilecache.Layer
	seedLog *events.Recorder

	// seedCtx bounds background seed jobs. Jobs run one after another.
	seedCtx context.Context
	seedMu  sync.Mutex
	seeds   sync.WaitGroup
}

func New(ctx context.Context, config *config.Config, logger *zap.Logger, layer *tilecache.Layer, seedLog *events.Recorder) *Handlers {
	return &Handlers{
		config:  config,
		logger:  logger,
		layer:   layer,
		seedLog: seedLog,
		seedCtx: ctx,
	}
}

// Routes builds the server mux wrapped in the logging and CORS middleware.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/tiles/", h.HandleTile)
	mux.HandleFunc("/api/seed", h.HandleSeed)
	mux.HandleFunc("/api/seed/events", h.HandleSeedEvents)
	mux.HandleFunc("/healthz", h.HandleHealthz)

	return h.CORSMiddleware(h.RequestLoggingMiddleware(mux))
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		ip := h.extractIP(r)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", ip),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.config.AllowedOrigin != "" {
			allowedOrigin = h.config.AllowedOrigin
		} else {
			host := r.Host
			if origin != "" && (strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host)) {
				allowedOrigin = origin
			} else if origin == "" {
				allowedOrigin = "*"
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Expose-Headers", "X-Tile-Source")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// HandleTile serves /tiles/{z}/{x}/{y}.png through the cache pipeline.
func (h *Handlers) HandleTile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tile, err := parseTilePath(strings.TrimPrefix(r.URL.Path, "/tiles/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if tile.Z < h.config.MinZoom || tile.Z > h.config.MaxZoom {
		http.Error(w, "Zoom level out of range", http.StatusNotFound)
		return
	}

	result, err := h.layer.Load(r.Context(), tile)
	if err != nil {
		h.logger.Warn("Failed to load tile", zap.Stringer("tile", tile), zap.Error(err))
		http.Error(w, "Failed to load tile", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("X-Tile-Source", string(result.Source))
	if result.Source == tilecache.SourceEmpty {
		w.Header().Set("Cache-Control", "no-store")
	} else {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.config.CacheMaxAge.Seconds())))
	}

	// HEAD request doesn't send body
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Write(result.Data)
}

func parseTilePath(path string) (tiles.Tile, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return tiles.Tile{}, errors.New("invalid path")
	}

	z, err := strconv.Atoi(parts[0])
	if err != nil {
		return tiles.Tile{}, errors.New("invalid zoom level")
	}
	x, err := strconv.Atoi(parts[1])
	if err != nil {
		return tiles.Tile{}, errors.New("invalid x coordinate")
	}
	yPart, ok := strings.CutSuffix(parts[2], ".png")
	if !ok {
		return tiles.Tile{}, errors.New("invalid format")
	}
	y, err := strconv.Atoi(yPart)
	if err != nil {
		return tiles.Tile{}, errors.New("invalid y coordinate")
	}

	tile := tiles.Tile{Z: z, X: x, Y: y}
	if !tile.Valid() {
		return tiles.Tile{}, errors.New("coordinates out of range")
	}
	return tile, nil
}

// seedRequestBody is the JSON form of a seed job. Coordinates are [lat, lng].
type seedRequestBody struct {
	Points  [][2]float64   `json:"points"`
	Lines   [][][2]float64 `json:"lines"`
	BBox    []float64      `json:"bbox"`
	MinZoom *int           `json:"minZoom"`
	MaxZoom *int           `json:"maxZoom"`
	Feet    *float64       `json:"feet"`
}

func (b seedRequestBody) toRequest(cfg *config.Config) (tilecache.SeedRequest, error) {
	req := tilecache.SeedRequest{
		MinZoom: cfg.SeedMinZoom,
		MaxZoom: cfg.SeedMaxZoom,
		Feet:    cfg.SeedFeet,
	}
	if b.MinZoom != nil {
		req.MinZoom = *b.MinZoom
	}
	if b.MaxZoom != nil {
		req.MaxZoom = *b.MaxZoom
	}
	if req.MinZoom < cfg.MinZoom || req.MaxZoom > cfg.MaxZoom {
		return req, fmt.Errorf("zoom range must lie within [%d, %d]", cfg.MinZoom, cfg.MaxZoom)
	}
	if req.MinZoom > req.MaxZoom {
		return req, errors.New("minZoom exceeds maxZoom")
	}
	if b.Feet != nil {
		if *b.Feet < 0 {
			return req, errors.New("feet must not be negative")
		}
		req.Feet = *b.Feet
	}

	for _, p := range b.Points {
		req.Points = append(req.Points, geo.PointFrom(p))
	}
	for _, line := range b.Lines {
		vertices := make([]geo.Point, 0, len(line))
		for _, p := range line {
			vertices = append(vertices, geo.PointFrom(p))
		}
		req.Lines = append(req.Lines, vertices)
	}

	if b.BBox != nil {
		if len(b.BBox) != 4 {
			return req, errors.New("bbox must be [minLat, minLng, maxLat, maxLng]")
		}
		box := orb.Bound{
			Min: orb.Point{b.BBox[1], b.BBox[0]},
			Max: orb.Point{b.BBox[3], b.BBox[2]},
		}
		if box.Min.X() > box.Max.X() || box.Min.Y() > box.Max.Y() {
			return req, errors.New("bbox minimum exceeds maximum")
		}
		req.BBox = &box
	}

	return req, nil
}

// HandleSeed accepts a seed job and runs it in the background.
func (h *Handlers) HandleSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSeedBody)

	var body seedRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	req, err := body.toRequest(h.config)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	jobID := h.StartSeed(req)

	response := map[string]interface{}{
		"id":       jobID,
		"accepted": true,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(response)
}

// StartSeed queues a seed job and returns its id.
func (h *Handlers) StartSeed(req tilecache.SeedRequest) string {
	jobID := uuid.New().String()

	h.seeds.Add(1)
	go func() {
		defer h.seeds.Done()

		h.seedMu.Lock()
		defer h.seedMu.Unlock()

		h.logger.Info("Seed job running",
			zap.String("job_id", jobID),
			zap.Int("points", len(req.Points)),
			zap.Int("lines", len(req.Lines)),
		)
		h.layer.Seed(h.seedCtx, req)
	}()

	return jobID
}

// WaitSeeds blocks until every queued seed job has returned.
func (h *Handlers) WaitSeeds() {
	h.seeds.Wait()
}

func (h *Handlers) HandleSeedEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	evs := h.seedLog.Events()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(evs)
}

// Not for real production use due to potential spoofing
// but it's fine for a demo
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
