// Package sqlite implements the durable asset cache tier over SQLite.
//
// Payloads are zstd-compressed on write and decompressed on read; a row
// whose payload no longer decompresses is deleted and reported as a miss.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/karstlight/assetcache/asset"
	"github.com/karstlight/assetcache/internal/platform/storage/sqlitemigrate"
	"github.com/karstlight/assetcache/internal/storage"
	"github.com/karstlight/assetcache/internal/storage/sqlite/migrations"
)

// EvictBatchSize is how many of the oldest rows a quota-failed write evicts
// before its single retry.
const EvictBatchSize = 16

const pageSizeBytes = 4096

var collections = map[asset.Category]string{
	asset.CategoryEntityAnimation: "assets_entity_animation",
	asset.CategoryAvatarAnimation: "assets_avatar_animation",
	asset.CategoryMusic:           "assets_music",
	asset.CategoryEntitySound:     "assets_entity_sound",
	asset.CategoryUISound:         "assets_ui_sound",
	asset.CategoryImage:           "assets_image",
}

// Store is the SQLite-backed durable tier.
type Store struct {
	sqlDB  *sql.DB
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	closed atomic.Bool
}

// Option adjusts how the store is opened.
type Option func(*openOptions)

type openOptions struct {
	maxBytes int64
}

// WithMaxBytes caps the database file size. Writes past the cap fail with a
// capacity error and go through the evict-then-retry path.
func WithMaxBytes(n int64) Option {
	return func(o *openOptions) { o.maxBytes = n }
}

// Open opens or creates the asset cache database at path and ensures every
// category collection exists.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	var options openOptions
	for _, opt := range opts {
		opt(&options)
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	if options.maxBytes > 0 {
		pages := options.maxBytes / pageSizeBytes
		if pages < 1 {
			pages = 1
		}
		dsn += fmt.Sprintf("&_pragma=page_size(%d)&_pragma=max_page_count(%d)", pageSizeBytes, pages)
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &Store{sqlDB: sqlDB, enc: enc, dec: dec}, nil
}

// Close releases the database handle. Later operations silently no-op.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil || s.closed.Swap(true) {
		return nil
	}
	s.enc.Close()
	s.dec.Close()
	return s.sqlDB.Close()
}

func (s *Store) usable() bool {
	return s != nil && s.sqlDB != nil && !s.closed.Load()
}

// Get returns the payload stored under key, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, category asset.Category, key string) ([]byte, error) {
	if !s.usable() {
		return nil, storage.ErrNotFound
	}
	table, ok := collections[category]
	if !ok {
		return nil, asset.ErrCategoryInvalid
	}

	var compressed []byte
	row := s.sqlDB.QueryRowContext(ctx, "SELECT data FROM "+table+" WHERE key = ?", key)
	if err := row.Scan(&compressed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get asset %s: %w", key, err)
	}

	payload, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		log.Printf("asset store: corrupt payload for %s, dropping row: %v", key, err)
		if _, delErr := s.sqlDB.ExecContext(ctx, "DELETE FROM "+table+" WHERE key = ?", key); delErr != nil {
			log.Printf("asset store: drop corrupt row %s: %v", key, delErr)
		}
		return nil, storage.ErrNotFound
	}
	return payload, nil
}

// Put writes payload under key with the current timestamp. A quota failure
// evicts the EvictBatchSize oldest rows of the same collection and retries
// exactly once; any other failure returns false immediately.
func (s *Store) Put(ctx context.Context, category asset.Category, key string, payload []byte) bool {
	if !s.usable() {
		return false
	}
	table, ok := collections[category]
	if !ok {
		return false
	}

	compressed := s.enc.EncodeAll(payload, nil)
	if err := s.putRow(ctx, table, key, compressed); err != nil {
		if !isQuotaErr(err) {
			log.Printf("asset store: put %s: %v", key, err)
			return false
		}
		evicted, evictErr := s.EvictOldest(ctx, category, EvictBatchSize)
		if evictErr != nil {
			log.Printf("asset store: evict %s after quota failure: %v", table, evictErr)
			return false
		}
		log.Printf("asset store: quota reached on %s, evicted %d oldest", table, evicted)
		if retryErr := s.putRow(ctx, table, key, compressed); retryErr != nil {
			log.Printf("asset store: put %s after eviction: %v", key, retryErr)
			return false
		}
	}
	return true
}

func (s *Store) putRow(ctx context.Context, table, key string, data []byte) error {
	_, err := s.sqlDB.ExecContext(ctx,
		"INSERT OR REPLACE INTO "+table+" (key, data, timestamp) VALUES (?, ?, ?)",
		key, data, toMillis(time.Now()),
	)
	return err
}

// Touch bumps the access timestamp for key. Failures are swallowed.
func (s *Store) Touch(ctx context.Context, category asset.Category, key string) {
	if !s.usable() {
		return
	}
	table, ok := collections[category]
	if !ok {
		return
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		"UPDATE "+table+" SET timestamp = ? WHERE key = ?",
		toMillis(time.Now()), key,
	); err != nil {
		log.Printf("asset store: touch %s: %v", key, err)
	}
}

// EvictOldest deletes up to n rows with the oldest timestamps from one
// collection and returns how many were deleted.
func (s *Store) EvictOldest(ctx context.Context, category asset.Category, n int) (int, error) {
	if !s.usable() || n <= 0 {
		return 0, nil
	}
	table, ok := collections[category]
	if !ok {
		return 0, asset.ErrCategoryInvalid
	}
	result, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM "+table+" WHERE key IN (SELECT key FROM "+table+" ORDER BY timestamp ASC LIMIT ?)",
		n,
	)
	if err != nil {
		return 0, fmt.Errorf("evict oldest from %s: %w", table, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("evict oldest from %s: %w", table, err)
	}
	return int(deleted), nil
}

// Clear empties one collection, or all collections when category is empty.
func (s *Store) Clear(ctx context.Context, category asset.Category) error {
	if !s.usable() {
		return nil
	}
	if category == "" {
		for _, table := range collections {
			if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	}
	table, ok := collections[category]
	if !ok {
		return asset.ErrCategoryInvalid
	}
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	return nil
}

// Count returns the number of rows in one collection.
func (s *Store) Count(ctx context.Context, category asset.Category) (int, error) {
	if !s.usable() {
		return 0, nil
	}
	table, ok := collections[category]
	if !ok {
		return 0, asset.ErrCategoryInvalid
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

// OldestEntries returns up to n entries ordered by ascending access time,
// without their payloads.
func (s *Store) OldestEntries(ctx context.Context, category asset.Category, n int) ([]storage.Entry, error) {
	if !s.usable() || n <= 0 {
		return nil, nil
	}
	table, ok := collections[category]
	if !ok {
		return nil, asset.ErrCategoryInvalid
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT key, timestamp FROM "+table+" ORDER BY timestamp ASC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("list oldest in %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []storage.Entry
	for rows.Next() {
		var entry storage.Entry
		var millis int64
		if err := rows.Scan(&entry.Key, &millis); err != nil {
			return nil, fmt.Errorf("scan oldest in %s: %w", table, err)
		}
		entry.AccessedAt = fromMillis(millis)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list oldest in %s: %w", table, err)
	}
	return entries, nil
}

func isQuotaErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database or disk is full") || strings.Contains(msg, "sqlite_full")
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
