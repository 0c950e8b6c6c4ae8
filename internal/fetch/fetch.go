// Package fetch downloads tiles from the upstream tile server.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"
)

// Fetcher retrieves the raw bytes behind a tile URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

var ErrEmptyBody = errors.New("fetch: empty response body")

type Options struct {
	Timeout   time.Duration
	UserAgent string
	Referer   string
}

// HTTPFetcher fetches tiles over HTTP with a shared resty client.
type HTTPFetcher struct {
	client *resty.Client
	logger *zap.Logger
}

func NewHTTPFetcher(opts Options, logger *zap.Logger) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "image/webp,image/png,image/*;q=0.8,*/*;q=0.5")
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Referer != "" {
		client.SetHeader("Referer", opts.Referer)
	}
	return &HTTPFetcher{client: client, logger: logger}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, &StatusError{URL: url, Status: resp.StatusCode()}
	}

	body := resp.Bytes()
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: %w", url, ErrEmptyBody)
	}

	f.logger.Debug("tile fetched",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode()),
		zap.Int("bytes", len(body)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return body, nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	return f.client.Close()
}
