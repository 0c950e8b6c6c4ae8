// Package cache holds the persistence backends for cached tiles.
//
// A backend stores documents keyed by tile URL. Every Put creates a new
// revision; Get returns the most recently written live revision. Callers keep
// one live revision per key by removing the prior revision when they replace a
// document.
package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key or revision has no live record.
var ErrNotFound = errors.New("cache: not found")

// Document is the payload written for a tile.
type Document struct {
	DataURL   string `json:"data_url"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
}

// Record is a stored document together with its key and revision.
type Record struct {
	Key string `json:"key"`
	Rev string `json:"rev"`
	Document
}

type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, key string, doc Document) (string, error)
	Remove(ctx context.Context, key, rev string) error
	// Revisions reports how many live revisions exist for key.
	Revisions(ctx context.Context, key string) (int, error)
	Close() error
}
