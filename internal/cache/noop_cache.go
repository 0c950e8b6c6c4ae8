package cache

import "context"

// NoopCache stores nothing; every lookup misses.
type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) Get(ctx context.Context, key string) (Record, error) {
	return Record{}, ErrNotFound
}

func (c *NoopCache) Put(ctx context.Context, key string, doc Document) (string, error) {
	return "", nil
}

func (c *NoopCache) Remove(ctx context.Context, key, rev string) error {
	return ErrNotFound
}

func (c *NoopCache) Revisions(ctx context.Context, key string) (int, error) {
	return 0, nil
}

func (c *NoopCache) Close() error {
	return nil
}
