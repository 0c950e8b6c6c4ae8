package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisCache keeps one hash per tile key, with one field per revision.
// A shared counter orders revisions so Get can pick the latest.
type RedisCache struct {
	client *redis.Client
	prefix string
}

type redisRevision struct {
	Seq int64 `json:"seq"`
	Document
}

func NewRedisCache(redisURL, prefix string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, prefix: prefix}, nil
}

func (c *RedisCache) hashKey(key string) string {
	return c.prefix + "tile:" + key
}

func (c *RedisCache) seqKey() string {
	return c.prefix + "seq"
}

func (c *RedisCache) Get(ctx context.Context, key string) (Record, error) {
	fields, err := c.client.HGetAll(ctx, c.hashKey(key)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("failed to get revisions: %w", err)
	}
	return latestRevision(key, fields)
}

func (c *RedisCache) Put(ctx context.Context, key string, doc Document) (string, error) {
	seq, err := c.client.Incr(ctx, c.seqKey()).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate revision sequence: %w", err)
	}

	value, err := json.Marshal(redisRevision{Seq: seq, Document: doc})
	if err != nil {
		return "", fmt.Errorf("failed to marshal revision: %w", err)
	}

	rev := uuid.New().String()
	if err := c.client.HSet(ctx, c.hashKey(key), rev, value).Err(); err != nil {
		return "", fmt.Errorf("failed to store revision: %w", err)
	}
	return rev, nil
}

func (c *RedisCache) Remove(ctx context.Context, key, rev string) error {
	n, err := c.client.HDel(ctx, c.hashKey(key), rev).Result()
	if err != nil {
		return fmt.Errorf("failed to remove revision: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *RedisCache) Revisions(ctx context.Context, key string) (int, error) {
	n, err := c.client.HLen(ctx, c.hashKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count revisions: %w", err)
	}
	return int(n), nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// latestRevision picks the field with the highest sequence number.
func latestRevision(key string, fields map[string]string) (Record, error) {
	var (
		best    Record
		bestSeq int64 = -1
	)
	for rev, raw := range fields {
		var r redisRevision
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return Record{}, fmt.Errorf("failed to parse revision %s: %w", rev, err)
		}
		if r.Seq > bestSeq {
			bestSeq = r.Seq
			best = Record{Key: key, Rev: rev, Document: r.Document}
		}
	}
	if bestSeq < 0 {
		return Record{}, ErrNotFound
	}
	return best, nil
}
