package tilecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tilecache/internal/cache"
	"tilecache/internal/events"
	"tilecache/internal/raster"
	"tilecache/internal/tiles"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu     sync.Mutex
	data   map[string][]byte
	errs   map[string]error
	calls  map[string]int
	order  []string
	always []byte
}

func newFakeFetcher(body []byte) *fakeFetcher {
	return &fakeFetcher{
		data:   make(map[string][]byte),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
		always: body,
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	f.order = append(f.order, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if b, ok := f.data[url]; ok {
		return b, nil
	}
	if f.always == nil {
		return nil, errors.New("no route")
	}
	return f.always, nil
}

func (f *fakeFetcher) setErr(url string, err error) {
	f.mu.Lock()
	f.errs[url] = err
	f.mu.Unlock()
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// fakeEncoder stores the raw bytes verbatim as an image/png data url.
type fakeEncoder struct {
	err error
}

func (e fakeEncoder) Encode(raw []byte) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return raster.EncodeDataURL("image/png", raw), nil
}

type brokenStore struct {
	*cache.MemoryCache
}

func (s brokenStore) Get(ctx context.Context, key string) (cache.Record, error) {
	return cache.Record{}, errors.New("backend unavailable")
}

type harness struct {
	layer    *Layer
	store    cache.Store
	fetcher  *fakeFetcher
	recorder *events.Recorder
}

func newHarness(t *testing.T, opts Options, mutate func(*Config)) *harness {
	t.Helper()

	tmpl, err := tiles.NewTemplate("https://tiles.test/{z}/{x}/{y}.png", nil)
	if err != nil {
		t.Fatalf("NewTemplate: %v", err)
	}
	h := &harness{
		store:    cache.NewMemoryCache(),
		fetcher:  newFakeFetcher([]byte("network-bytes")),
		recorder: events.NewRecorder(nil),
	}
	cfg := Config{
		Options:           opts,
		Encoder:           fakeEncoder{},
		Template:          tmpl,
		Projector:         tiles.NewWebMercator(tiles.DefaultTileSize),
		Sink:              h.recorder,
		Clock:             func() time.Time { return testNow },
		SeedRetries:       2,
		SeedRetryInterval: time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if cfg.Store == nil {
		cfg.Store = h.store
	} else {
		h.store = cfg.Store
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = h.fetcher
	}

	h.layer, err = New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func (h *harness) seedRecord(t *testing.T, url string, body []byte, age time.Duration) string {
	t.Helper()
	rev, err := h.store.Put(context.Background(), url, cache.Document{
		DataURL:   raster.EncodeDataURL("image/png", body),
		Timestamp: testNow.Add(-age).UnixMilli(),
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	return rev
}

func (h *harness) revisions(t *testing.T, url string) int {
	t.Helper()
	n, err := h.store.Revisions(context.Background(), url)
	if err != nil {
		t.Fatalf("Revisions: %v", err)
	}
	return n
}

func assertTypes(t *testing.T, got []events.Type, want ...events.Type) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}
