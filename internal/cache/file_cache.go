package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileCache implements a file-based revision store.
// Structure: {cacheDir}/{hash[:2]}/{hash}/{seq}_{rev}.json, where hash is the
// SHA-256 of the key and seq orders revisions by write time.
type FileCache struct {
	mu       sync.RWMutex
	cacheDir string
	lastSeq  int64
}

func NewFileCache(cacheDir string) (*FileCache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileCache{
		cacheDir: cacheDir,
	}, nil
}

// keyDir builds the directory holding every revision of key.
func (c *FileCache) keyDir(key string) string {
	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])
	return filepath.Join(c.cacheDir, hash[:2], hash)
}

// revisionFiles returns the revision files of key, oldest first.
func (c *FileCache) revisionFiles(key string) ([]string, error) {
	entries, err := os.ReadDir(c.keyDir(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}

func (c *FileCache) nextSeq() int64 {
	seq := time.Now().UnixNano()
	if seq <= c.lastSeq {
		seq = c.lastSeq + 1
	}
	c.lastSeq = seq
	return seq
}

func (c *FileCache) Get(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	files, err := c.revisionFiles(key)
	if err != nil {
		return Record{}, fmt.Errorf("list revisions: %w", err)
	}
	if len(files) == 0 {
		return Record{}, ErrNotFound
	}

	data, err := os.ReadFile(filepath.Join(c.keyDir(key), files[len(files)-1]))
	if err != nil {
		return Record{}, fmt.Errorf("read revision: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to parse revision: %w", err)
	}
	return rec, nil
}

func (c *FileCache) Put(ctx context.Context, key string, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.keyDir(key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}

	rev := uuid.New().String()
	data, err := json.Marshal(Record{Key: key, Rev: rev, Document: doc})
	if err != nil {
		return "", fmt.Errorf("failed to marshal revision: %w", err)
	}

	// Write atomically
	filePath := filepath.Join(dir, fmt.Sprintf("%020d_%s.json", c.nextSeq(), rev))
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write revision: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to commit revision: %w", err)
	}
	return rev, nil
}

func (c *FileCache) Remove(ctx context.Context, key, rev string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	files, err := c.revisionFiles(key)
	if err != nil {
		return fmt.Errorf("list revisions: %w", err)
	}
	suffix := "_" + rev + ".json"
	for _, name := range files {
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		if err := os.Remove(filepath.Join(c.keyDir(key), name)); err != nil {
			return fmt.Errorf("failed to remove revision: %w", err)
		}
		if len(files) == 1 {
			os.Remove(c.keyDir(key))
		}
		return nil
	}
	return ErrNotFound
}

func (c *FileCache) Revisions(ctx context.Context, key string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	files, err := c.revisionFiles(key)
	if err != nil {
		return 0, fmt.Errorf("list revisions: %w", err)
	}
	return len(files), nil
}

func (c *FileCache) Close() error {
	return nil
}
