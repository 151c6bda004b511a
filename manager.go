// Package assetcache resolves game assets through a three-tier cache:
// decoded handles in memory, raw payloads in a local SQLite database, and
// the remote content service as origin.
//
// Every getter resolves to a handle or nil; no failure inside the cache is
// ever surfaced as an error. Callers treat nil as "unavailable" and fall
// back (silence, placeholder visual). Concurrent requests for the same key
// share one fetch pipeline.
package assetcache

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/karstlight/assetcache/asset"
	"github.com/karstlight/assetcache/internal/cachekey"
	"github.com/karstlight/assetcache/internal/decode"
	"github.com/karstlight/assetcache/internal/flight"
	"github.com/karstlight/assetcache/internal/origin"
	"github.com/karstlight/assetcache/internal/storage"
	"github.com/karstlight/assetcache/internal/storage/sqlite"
)

const tracerName = "github.com/karstlight/assetcache"

// Manager is the asset cache facade. Construct one per application with New
// and share it; per-caller managers defeat request deduplication.
type Manager struct {
	cfg     Config
	fetcher *origin.Fetcher
	store   storage.Store
	flights flight.Coordinator
	tracer  trace.Tracer

	mu     sync.Mutex
	memory map[asset.Category]map[string]memoryEntry

	writers sync.WaitGroup

	durableDegraded bool
	originRequests  atomic.Int64
	originFailures  atomic.Int64
}

type memoryEntry struct {
	handle     asset.Handle
	insertedAt time.Time
}

// Option adjusts Manager construction.
type Option func(*options)

type options struct {
	httpClient *http.Client
	store      storage.Store
}

// WithHTTPClient overrides the HTTP client used for origin requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// withStore substitutes the durable tier. Used by tests.
func withStore(store storage.Store) Option {
	return func(o *options) { o.store = store }
}

// New creates a Manager. A durable tier that cannot be opened degrades the
// cache to memory+network; the failure is logged once and never returned.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		cfg: cfg,
		fetcher: origin.New(origin.Config{
			BaseURL: cfg.OriginURL,
			Region:  cfg.Region,
			Version: cfg.Version,
		}, o.httpClient),
		tracer: otel.Tracer(tracerName),
		memory: make(map[asset.Category]map[string]memoryEntry),
	}

	switch {
	case o.store != nil:
		m.store = o.store
	case cfg.StorePath == "":
		m.store = storage.Unavailable{}
		m.durableDegraded = true
	default:
		var storeOpts []sqlite.Option
		if cfg.StoreMaxBytes > 0 {
			storeOpts = append(storeOpts, sqlite.WithMaxBytes(cfg.StoreMaxBytes))
		}
		store, err := sqlite.Open(cfg.StorePath, storeOpts...)
		if err != nil {
			log.Printf("asset cache: durable store unavailable, running memory+network only: %v", err)
			m.store = storage.Unavailable{}
			m.durableDegraded = true
		} else {
			m.store = store
		}
	}
	return m, nil
}

// EntityAnimation resolves one animation of one entity, or nil.
func (m *Manager) EntityAnimation(ctx context.Context, entityID int, animation string) *asset.AnimationHandle {
	handle, _ := m.resolve(ctx, asset.EntityAnimationRef(entityID, animation)).(*asset.AnimationHandle)
	return handle
}

// AvatarAnimation resolves one animation of one composed avatar look, or
// nil. Permutations of the look's item set share one cache entry.
func (m *Manager) AvatarAnimation(ctx context.Context, look asset.Look, animation string) *asset.AnimationHandle {
	handle, _ := m.resolve(ctx, asset.AvatarAnimationRef(look, animation)).(*asset.AnimationHandle)
	return handle
}

// MusicTrack resolves one music track by path, or nil.
func (m *Manager) MusicTrack(ctx context.Context, path string) *asset.AudioHandle {
	handle, _ := m.resolve(ctx, asset.MusicRef(path)).(*asset.AudioHandle)
	return handle
}

// EntitySound resolves one sound effect of one entity, or nil. An entity
// that legitimately has no such sound resolves to nil without being counted
// as a failure.
func (m *Manager) EntitySound(ctx context.Context, entityID int, kind string) *asset.AudioHandle {
	handle, _ := m.resolve(ctx, asset.EntitySoundRef(entityID, kind)).(*asset.AudioHandle)
	return handle
}

// UISound resolves one interface sound by path, or nil.
func (m *Manager) UISound(ctx context.Context, path string) *asset.AudioHandle {
	handle, _ := m.resolve(ctx, asset.UISoundRef(path)).(*asset.AudioHandle)
	return handle
}

// Image resolves one generic image, or nil.
func (m *Manager) Image(ctx context.Context, assetType string, entityID int, variant string) *asset.ImageHandle {
	handle, _ := m.resolve(ctx, asset.ImageRef(assetType, entityID, variant)).(*asset.ImageHandle)
	return handle
}

// Resolve resolves any Ref through the cache tiers. The concrete handle
// type depends on the ref's category.
func (m *Manager) Resolve(ctx context.Context, ref asset.Ref) asset.Handle {
	return m.resolve(ctx, ref)
}

func (m *Manager) resolve(ctx context.Context, ref asset.Ref) asset.Handle {
	if err := ref.Validate(); err != nil {
		log.Printf("asset cache: %s request rejected: %v", ref.Category, err)
		return nil
	}
	key := cachekey.ForRef(ref)

	if handle, ok := m.memoryGet(ref.Category, key); ok {
		return handle
	}
	return m.flights.Do(key, func() asset.Handle {
		return m.load(ctx, ref, key)
	})
}

// load runs the durable-then-network pipeline for one key. It always runs
// to completion once started; callers that lose interest still leave the
// caches populated for the next request.
func (m *Manager) load(ctx context.Context, ref asset.Ref, key string) asset.Handle {
	ctx = context.WithoutCancel(ctx)
	dec := decode.ForCategory(ref.Category)
	if dec == nil {
		return nil
	}

	// Durable tier. A corrupt or undecodable payload is a miss; fall
	// through to the origin.
	raw, err := m.store.Get(ctx, ref.Category, key)
	if err == nil {
		handle, decErr := dec.Decode(raw)
		if decErr == nil {
			m.background(func() {
				m.store.Touch(context.Background(), ref.Category, key)
			})
			m.memoryPut(ref.Category, key, handle)
			return handle
		}
		log.Printf("asset cache: cached payload for %s undecodable, refetching: %v", key, decErr)
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Printf("asset cache: durable read %s: %v", key, err)
	}

	// Origin tier.
	raw, err = m.fetchOrigin(ctx, ref, key)
	if err != nil {
		if !errors.Is(err, origin.ErrNotPresent) {
			m.originFailures.Add(1)
			log.Printf("asset cache: fetch %s %s: %v", ref.Category, key, err)
		}
		return nil
	}
	handle, decErr := dec.Decode(raw)
	if decErr != nil {
		log.Printf("asset cache: decode fetched %s %s: %v", ref.Category, key, decErr)
		return nil
	}

	m.background(func() {
		if !m.store.Put(context.Background(), ref.Category, key, raw) && !m.durableDegraded {
			log.Printf("asset cache: durable write dropped for %s", key)
		}
	})
	m.memoryPut(ref.Category, key, handle)
	return handle
}

func (m *Manager) fetchOrigin(ctx context.Context, ref asset.Ref, key string) ([]byte, error) {
	m.originRequests.Add(1)
	ctx, span := m.tracer.Start(ctx, "assetcache.origin.fetch",
		trace.WithAttributes(
			attribute.String("asset.category", string(ref.Category)),
			attribute.String("asset.key", key),
		))
	defer span.End()

	raw, err := m.fetcher.Fetch(ctx, ref)
	if err != nil && !errors.Is(err, origin.ErrNotPresent) {
		span.RecordError(err)
	}
	return raw, err
}

func (m *Manager) memoryGet(category asset.Category, key string) (asset.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.memory[category][key]
	if !ok {
		return nil, false
	}
	return entry.handle, true
}

// memoryPut stores a fully decoded handle. Handles are only ever inserted
// complete; a nil handle is never cached.
func (m *Manager) memoryPut(category asset.Category, key string, handle asset.Handle) {
	if handle == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.memory[category]
	if entries == nil {
		entries = make(map[string]memoryEntry)
		m.memory[category] = entries
	}
	if limit := m.cfg.MemoryCapacity; limit > 0 && len(entries) >= limit {
		if _, exists := entries[key]; !exists {
			evictOldestEntry(entries)
		}
	}
	entries[key] = memoryEntry{handle: handle, insertedAt: time.Now()}
}

func evictOldestEntry(entries map[string]memoryEntry) {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range entries {
		if oldestKey == "" || entry.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.insertedAt
		}
	}
	if oldestKey != "" {
		delete(entries, oldestKey)
	}
}

// background runs fn on its own goroutine, tracked so Close can drain
// pending durable writes before releasing the store.
func (m *Manager) background(fn func()) {
	m.writers.Add(1)
	go func() {
		defer m.writers.Done()
		fn()
	}()
}

// Close drains background durable writes and releases the store. In-flight
// fetches are not interrupted; a write racing Close silently no-ops once
// the store handle is released.
func (m *Manager) Close() error {
	m.writers.Wait()
	return m.store.Close()
}
