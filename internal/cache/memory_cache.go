package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryCache keeps revisions in process memory. It has no size bound.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string][]Record
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string][]Record),
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	revs := c.items[key]
	if len(revs) == 0 {
		return Record{}, ErrNotFound
	}
	return revs[len(revs)-1], nil
}

func (c *MemoryCache) Put(ctx context.Context, key string, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rev := uuid.New().String()
	c.items[key] = append(c.items[key], Record{Key: key, Rev: rev, Document: doc})
	return rev, nil
}

func (c *MemoryCache) Remove(ctx context.Context, key, rev string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	revs := c.items[key]
	for i, r := range revs {
		if r.Rev != rev {
			continue
		}
		revs = append(revs[:i], revs[i+1:]...)
		if len(revs) == 0 {
			delete(c.items, key)
		} else {
			c.items[key] = revs
		}
		return nil
	}
	return ErrNotFound
}

func (c *MemoryCache) Revisions(ctx context.Context, key string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items[key]), nil
}

func (c *MemoryCache) Close() error {
	return nil
}
