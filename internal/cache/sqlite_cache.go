package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tilecache/internal/cache/migrations"
)

// SQLiteCache persists revisions in a single SQLite table.
type SQLiteCache struct {
	db *sql.DB
}

// OpenSQLiteCache opens (or creates) the database at path and applies migrations.
func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps revision order stable.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (Record, error) {
	rec := Record{Key: key}
	err := c.db.QueryRowContext(ctx,
		`SELECT rev, data_url, timestamp FROM tile_revisions
		 WHERE tile_key = ? ORDER BY id DESC LIMIT 1`,
		key,
	).Scan(&rec.Rev, &rec.DataURL, &rec.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get tile revision: %w", err)
	}
	return rec, nil
}

func (c *SQLiteCache) Put(ctx context.Context, key string, doc Document) (string, error) {
	rev := uuid.New().String()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO tile_revisions (tile_key, rev, data_url, timestamp, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, rev, doc.DataURL, doc.Timestamp, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("put tile revision: %w", err)
	}
	return rev, nil
}

func (c *SQLiteCache) Remove(ctx context.Context, key, rev string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM tile_revisions WHERE tile_key = ? AND rev = ?`,
		key, rev,
	)
	if err != nil {
		return fmt.Errorf("remove tile revision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove tile revision: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *SQLiteCache) Revisions(ctx context.Context, key string) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tile_revisions WHERE tile_key = ?`, key,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tile revisions: %w", err)
	}
	return n, nil
}

func (c *SQLiteCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
