package tilecache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"tilecache/internal/cache"
	"tilecache/internal/events"
	"tilecache/internal/fetch"
	"tilecache/internal/raster"
	"tilecache/internal/tiles"
)

const testURL = "https://tiles.test/5/10/12.png"

var testTile = tiles.Tile{Z: 5, X: 10, Y: 12}

func cachingOptions() Options {
	opts := DefaultOptions()
	opts.UseCache = true
	return opts
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	tmpl, _ := tiles.NewTemplate("https://tiles.test/{z}/{x}/{y}.png", nil)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing fetcher", Config{Template: tmpl}},
		{"missing template", Config{Fetcher: newFakeFetcher(nil)}},
		{"negative retries", Config{Fetcher: newFakeFetcher(nil), Template: tmpl, SeedRetries: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadBypassesCacheWhenDisabled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, DefaultOptions(), nil)
	res, err := h.layer.Load(context.Background(), testTile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Source != SourceNetwork {
		t.Fatalf("source = %q, want network", res.Source)
	}
	if res.URL != testURL {
		t.Fatalf("url = %q, want %q", res.URL, testURL)
	}
	assertTypes(t, h.recorder.Types(), events.TileLoadStart, events.TileLoad)
	if n := h.revisions(t, testURL); n != 0 {
		t.Fatalf("revisions = %d, want 0", n)
	}
}

func TestNilEncoderDisablesCaching(t *testing.T) {
	t.Parallel()

	h := newHarness(t, cachingOptions(), func(c *Config) { c.Encoder = nil })
	if h.layer.CachingEnabled() {
		t.Fatal("caching should be disabled without an encoder")
	}
	if _, err := h.layer.Load(context.Background(), testTile); err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertTypes(t, h.recorder.Types(), events.TileLoadStart, events.TileLoad)
}

func TestLoadMissFetchesAndSaves(t *testing.T) {
	t.Parallel()

	h := newHarness(t, cachingOptions(), nil)
	res, err := h.layer.Load(context.Background(), testTile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Source != SourceNetwork || !bytes.Equal(res.Data, []byte("network-bytes")) {
		t.Fatalf("unexpected result %+v", res)
	}
	assertTypes(t, h.recorder.Types(), events.TileLoadStart, events.TileCacheMiss, events.TileLoad)

	rec, err := h.store.Get(context.Background(), testURL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Timestamp != testNow.UnixMilli() {
		t.Fatalf("timestamp = %d, want %d", rec.Timestamp, testNow.UnixMilli())
	}
	data, _, err := raster.DecodeDataURL(rec.DataURL)
	if err != nil || string(data) != "network-bytes" {
		t.Fatalf("stored payload = %q (%v)", data, err)
	}
}

func TestLoadMissWithoutSave(t *testing.T) {
	t.Parallel()

	opts := cachingOptions()
	opts.SaveToCache = false
	h := newHarness(t, opts, nil)

	if _, err := h.layer.Load(context.Background(), testTile); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := h.revisions(t, testURL); n != 0 {
		t.Fatalf("revisions = %d, want 0", n)
	}
}

func TestLoadMissFetchError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, cachingOptions(), nil)
	h.fetcher.setErr(testURL, &fetch.StatusError{URL: testURL, Status: 503})

	_, err := h.layer.Load(context.Background(), testTile)
	var statusErr *fetch.StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != 503 {
		t.Fatalf("err = %v, want status 503", err)
	}
	assertTypes(t, h.recorder.Types(), events.TileLoadStart, events.TileCacheMiss, events.TileError)
	if got := h.recorder.Events()[2].Err; got == "" {
		t.Fatal("tileerror event should carry the error")
	}
}

func TestLoadFreshHitSkipsNetwork(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		age  time.Duration
	}{
		{"recent", time.Hour},
		{"exactly max age", 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, cachingOptions(), nil)
			h.seedRecord(t, testURL, []byte("cached-bytes"), tt.age)

			res, err := h.layer.Load(context.Background(), testTile)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if res.Source != SourceCache || string(res.Data) != "cached-bytes" {
				t.Fatalf("unexpected result %+v", res)
			}
			if res.ContentType != "image/png" {
				t.Fatalf("content type = %q", res.ContentType)
			}
			if n := h.fetcher.total(); n != 0 {
				t.Fatalf("fetches = %d, want 0", n)
			}
			assertTypes(t, h.recorder.Types(), events.TileLoadStart, events.TileCacheHit, events.TileLoad)
		})
	}
}

func TestLoadStaleRefreshKeepsOneRevision(t *testing.T) {
	t.Parallel()

	h := newHarness(t, cachingOptions(), nil)
	oldRev := h.seedRecord(t, testURL, []byte("old-bytes"), 48*time.Hour)

	res, err := h.layer.Load(context.Background(), testTile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Source != SourceNetwork || string(res.Data) != "network-bytes" {
		t.Fatalf("unexpected result %+v", res)
	}
	if n := h.fetcher.count(testURL); n != 1 {
		t.Fatalf("fetches = %d, want 1", n)
	}
	if n := h.revisions(t, testURL); n != 1 {
		t.Fatalf("revisions = %d, want 1", n)
	}

	rec, err := h.store.Get(context.Background(), testURL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Rev == oldRev {
		t.Fatal("stale revision is still live")
	}
	if rec.Timestamp != testNow.UnixMilli() {
		t.Fatalf("timestamp = %d, want %d", rec.Timestamp, testNow.UnixMilli())
	}
	assertTypes(t, h.recorder.Types(), events.TileLoadStart, events.TileCacheHit, events.TileLoad)
}

func TestLoadStaleServedWhenOffline(t *testing.T) {
	t.Parallel()

	h := newHarness(t, cachingOptions(), nil)
	rev := h.seedRecord(t, testURL, []byte("old-bytes"), 48*time.Hour)
	h.fetcher.setErr(testURL, errors.New("network unreachable"))

	res, err := h.layer.Load(context.Background(), testTile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Source != SourceStale || string(res.Data) != "old-bytes" {
		t.Fatalf("unexpected result %+v", res)
	}
	rec, err := h.store.Get(context.Background(), testURL)
	if err != nil || rec.Rev != rev {
		t.Fatalf("stored revision changed: %+v (%v)", rec, err)
	}
	assertTypes(t, h.recorder.Types(), events.TileLoadStart, events.TileCacheHit, events.TileLoad)
}

func TestLoadCacheOnly(t *testing.T) {
	t.Parallel()

	opts := cachingOptions()
	opts.UseOnlyCache = true

	t.Run("miss serves placeholder", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, opts, nil)
		res, err := h.layer.Load(context.Background(), testTile)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if res.Source != SourceEmpty || res.ContentType != "image/gif" {
			t.Fatalf("unexpected result %+v", res)
		}
		if n := h.fetcher.total(); n != 0 {
			t.Fatalf("fetches = %d, want 0", n)
		}
		assertTypes(t, h.recorder.Types(), events.TileLoadStart, events.TileCacheMiss, events.TileLoad)
	})

	t.Run("expired record is still served", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, opts, nil)
		h.seedRecord(t, testURL, []byte("old-bytes"), 365*24*time.Hour)

		res, err := h.layer.Load(context.Background(), testTile)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if res.Source != SourceCache || string(res.Data) != "old-bytes" {
			t.Fatalf("unexpected result %+v", res)
		}
		if n := h.fetcher.total(); n != 0 {
			t.Fatalf("fetches = %d, want 0", n)
		}
	})
}

func TestLoadBackendErrorTreatedAsMiss(t *testing.T) {
	t.Parallel()

	h := newHarness(t, cachingOptions(), func(c *Config) {
		c.Store = brokenStore{MemoryCache: cache.NewMemoryCache()}
	})

	res, err := h.layer.Load(context.Background(), testTile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Source != SourceNetwork {
		t.Fatalf("source = %q, want network", res.Source)
	}
	assertTypes(t, h.recorder.Types(), events.TileLoadStart, events.TileCacheMiss, events.TileLoad)
	if n := h.revisions(t, testURL); n != 1 {
		t.Fatalf("revisions = %d, want 1", n)
	}
}

func TestLoadCorruptRecordIsReplaced(t *testing.T) {
	t.Parallel()

	h := newHarness(t, cachingOptions(), nil)
	if _, err := h.store.Put(context.Background(), testURL, cache.Document{
		DataURL:   "not a data url",
		Timestamp: testNow.UnixMilli(),
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	res, err := h.layer.Load(context.Background(), testTile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Source != SourceNetwork {
		t.Fatalf("source = %q, want network", res.Source)
	}
	if n := h.revisions(t, testURL); n != 1 {
		t.Fatalf("revisions = %d, want 1", n)
	}
}

func TestSaveEncoderFailureDoesNotFailLoad(t *testing.T) {
	t.Parallel()

	h := newHarness(t, cachingOptions(), func(c *Config) {
		c.Encoder = fakeEncoder{err: errors.New("unsupported image")}
	})

	res, err := h.layer.Load(context.Background(), testTile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Source != SourceNetwork {
		t.Fatalf("source = %q, want network", res.Source)
	}
	if n := h.revisions(t, testURL); n != 0 {
		t.Fatalf("revisions = %d, want 0", n)
	}
}
