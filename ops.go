package assetcache

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/karstlight/assetcache/asset"
)

// PreloadMany resolves every ref in parallel, bounded by the configured
// preload parallelism. Items resolve independently; one item failing to
// resolve never aborts the rest.
func (m *Manager) PreloadMany(ctx context.Context, refs []asset.Ref) {
	limit := m.cfg.PreloadParallelism
	if limit <= 0 {
		limit = 8
	}
	var group errgroup.Group
	group.SetLimit(limit)
	for _, ref := range refs {
		group.Go(func() error {
			m.resolve(ctx, ref)
			return nil
		})
	}
	_ = group.Wait()
}

// ClearMemory drops every decoded handle from the memory tier. The durable
// tier is untouched.
func (m *Manager) ClearMemory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory = make(map[asset.Category]map[string]memoryEntry)
}

// Clear empties the memory and durable tiers for the given categories, or
// for every category when none are given. In-flight fetches are not
// interrupted; their late results may repopulate the cache.
func (m *Manager) Clear(ctx context.Context, categories ...asset.Category) error {
	if len(categories) == 0 {
		m.ClearMemory()
		return m.store.Clear(ctx, "")
	}
	m.mu.Lock()
	for _, category := range categories {
		delete(m.memory, category)
	}
	m.mu.Unlock()
	for _, category := range categories {
		if err := m.store.Clear(ctx, category); err != nil {
			return fmt.Errorf("clear %s: %w", category, err)
		}
	}
	return nil
}

// CategoryStats counts entries in one category across tiers.
type CategoryStats struct {
	MemoryEntries  int
	DurableEntries int
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Categories map[asset.Category]CategoryStats
	// DurableDegraded is set when the durable tier failed to open and the
	// cache is running on memory and network alone.
	DurableDegraded bool
	// OriginRequests counts fetch pipelines that reached the origin.
	OriginRequests int64
	// OriginFailures counts origin fetches that failed (network or protocol
	// errors; a legitimately absent asset is not a failure).
	OriginFailures int64
}

// Stats merges memory and durable counts per category.
func (m *Manager) Stats(ctx context.Context) Stats {
	stats := Stats{
		Categories:      make(map[asset.Category]CategoryStats, len(asset.Categories())),
		DurableDegraded: m.durableDegraded,
		OriginRequests:  m.originRequests.Load(),
		OriginFailures:  m.originFailures.Load(),
	}
	for _, category := range asset.Categories() {
		m.mu.Lock()
		memoryCount := len(m.memory[category])
		m.mu.Unlock()

		durableCount, err := m.store.Count(ctx, category)
		if err != nil {
			log.Printf("asset cache: count %s: %v", category, err)
		}
		stats.Categories[category] = CategoryStats{
			MemoryEntries:  memoryCount,
			DurableEntries: durableCount,
		}
	}
	return stats
}
