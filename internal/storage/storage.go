// Package storage defines the durable cache tier contract.
//
// One collection exists per asset category. Implementations must degrade
// rather than fail: the rest of the cache keeps working on memory and
// network alone when the durable tier is unavailable.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/karstlight/assetcache/asset"
)

// ErrNotFound reports a key absent from a collection. Corrupt rows are
// reported as ErrNotFound too: a payload that cannot be read back is a miss,
// not an error.
var ErrNotFound = errors.New("asset not found")

// Entry is one durable cache row.
type Entry struct {
	Key        string
	Payload    []byte
	AccessedAt time.Time
}

// Store is the durable cache tier.
//
// Put reports success as a bool rather than an error: a failed durable
// write must never fail the request that triggered it, so callers have
// nothing to propagate.
type Store interface {
	// Get returns the payload for key, or ErrNotFound on a miss.
	Get(ctx context.Context, category asset.Category, key string) ([]byte, error)
	// Put writes payload under key with the current access time. On a
	// capacity failure it evicts the oldest rows of the same collection and
	// retries once.
	Put(ctx context.Context, category asset.Category, key string, payload []byte) bool
	// Touch bumps the access time for key. Best-effort; failures are
	// swallowed.
	Touch(ctx context.Context, category asset.Category, key string)
	// EvictOldest deletes up to n rows with the oldest access times and
	// returns how many were deleted.
	EvictOldest(ctx context.Context, category asset.Category, n int) (int, error)
	// Clear empties one collection, or every collection when category is
	// empty.
	Clear(ctx context.Context, category asset.Category) error
	// Count returns the number of rows in one collection.
	Count(ctx context.Context, category asset.Category) (int, error)
	// Close releases the store. Operations after Close silently no-op.
	Close() error
}

// Unavailable is the degraded durable tier used when opening the real store
// fails: every read misses, every write reports failure, nothing errors.
type Unavailable struct{}

func (Unavailable) Get(context.Context, asset.Category, string) ([]byte, error) {
	return nil, ErrNotFound
}

func (Unavailable) Put(context.Context, asset.Category, string, []byte) bool { return false }

func (Unavailable) Touch(context.Context, asset.Category, string) {}

func (Unavailable) EvictOldest(context.Context, asset.Category, int) (int, error) { return 0, nil }

func (Unavailable) Clear(context.Context, asset.Category) error { return nil }

func (Unavailable) Count(context.Context, asset.Category) (int, error) { return 0, nil }

func (Unavailable) Close() error { return nil }
