package assetcache

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/karstlight/assetcache/asset"
	"github.com/karstlight/assetcache/internal/storage/sqlite"
)

func encodeTestGIF(t *testing.T) []byte {
	t.Helper()
	frame := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, &gif.GIF{
		Image: []*image.Paletted{frame},
		Delay: []int{10},
	}); err != nil {
		t.Fatalf("encode test gif: %v", err)
	}
	return buf.Bytes()
}

// testOrigin serves animations as GIF bytes and sounds as embedded-audio
// envelopes, counting every request.
type testOrigin struct {
	server   *httptest.Server
	requests atomic.Int64
	gifData  []byte
	gate     chan struct{}
}

func newTestOrigin(t *testing.T) *testOrigin {
	t.Helper()
	o := &testOrigin{gifData: encodeTestGIF(t)}
	o.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.requests.Add(1)
		if o.gate != nil {
			<-o.gate
		}
		switch {
		case strings.Contains(r.URL.Path, "/broken/"):
			w.WriteHeader(http.StatusInternalServerError)
		case strings.Contains(r.URL.Path, "/sounds/404/"):
			_ = json.NewEncoder(w).Encode(map[string]string{"type": "none"})
		case strings.Contains(r.URL.Path, "/sounds/") || strings.Contains(r.URL.Path, "/music/") || strings.Contains(r.URL.Path, "/ui/"):
			_ = json.NewEncoder(w).Encode(map[string]string{
				"type":  "embedded",
				"value": "c291bmQtYnl0ZXM=",
			})
		default:
			_, _ = w.Write(o.gifData)
		}
	}))
	t.Cleanup(o.server.Close)
	return o
}

func newTestManager(t *testing.T, o *testOrigin, opts ...Option) *Manager {
	t.Helper()
	cfg := Config{
		OriginURL: o.server.URL,
		Region:    "en",
		Version:   "v7",
		StorePath: filepath.Join(t.TempDir(), "assets.db"),
	}
	manager, err := New(cfg, append([]Option{WithHTTPClient(o.server.Client())}, opts...)...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestEntityAnimationSecondCallHitsMemory(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	m := newTestManager(t, o)
	ctx := context.Background()

	first := m.EntityAnimation(ctx, 100100, "stand")
	if first == nil {
		t.Fatal("first resolution returned nil")
	}
	second := m.EntityAnimation(ctx, 100100, "stand")
	if second != first {
		t.Fatal("second resolution did not return the cached handle")
	}
	if got := o.requests.Load(); got != 1 {
		t.Fatalf("origin requests = %d, want 1", got)
	}
	if !bytes.Equal(second.Bytes(), first.Bytes()) {
		t.Fatal("cached payload is not bit-identical")
	}
}

func TestConcurrentRequestsShareOneFetch(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	o.gate = make(chan struct{})
	m := newTestManager(t, o)
	ctx := context.Background()

	const callers = 8
	results := make([]*asset.AnimationHandle, callers)
	var wg, ready sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		ready.Add(1)
		go func(slot int) {
			defer wg.Done()
			ready.Done()
			results[slot] = m.EntityAnimation(ctx, 100100, "stand")
		}(i)
	}
	ready.Wait()
	time.Sleep(50 * time.Millisecond)
	close(o.gate)
	wg.Wait()

	if got := o.requests.Load(); got != 1 {
		t.Fatalf("origin requests = %d, want 1", got)
	}
	for i, result := range results {
		if result == nil {
			t.Fatalf("caller %d got nil", i)
		}
		if result != results[0] {
			t.Fatalf("caller %d got a different handle", i)
		}
	}
}

func TestDurableTierServesAfterMemoryClear(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	m := newTestManager(t, o)
	ctx := context.Background()

	if m.EntityAnimation(ctx, 100100, "stand") == nil {
		t.Fatal("initial resolution returned nil")
	}
	m.writers.Wait() // let the fire-and-forget durable write land
	m.ClearMemory()

	handle := m.EntityAnimation(ctx, 100100, "stand")
	if handle == nil {
		t.Fatal("durable resolution returned nil")
	}
	if got := o.requests.Load(); got != 1 {
		t.Fatalf("origin requests = %d, want 1 (durable tier should serve)", got)
	}

	stats := m.Stats(ctx)
	cat := stats.Categories[asset.CategoryEntityAnimation]
	if cat.MemoryEntries != 1 {
		t.Fatalf("memory entries = %d, want 1 (durable hit repopulates memory)", cat.MemoryEntries)
	}
	if cat.DurableEntries != 1 {
		t.Fatalf("durable entries = %d, want 1", cat.DurableEntries)
	}
}

func TestAvatarLookPermutationsShareOneEntry(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	m := newTestManager(t, o)
	ctx := context.Background()

	first := m.AvatarAnimation(ctx, asset.Look{BodyID: 12, ItemIDs: []int{3, 1, 2}, PaletteID: 1}, "walk")
	second := m.AvatarAnimation(ctx, asset.Look{BodyID: 12, ItemIDs: []int{2, 3, 1}, PaletteID: 1}, "walk")
	if first == nil || second != first {
		t.Fatal("permuted looks did not share one cache entry")
	}
	if got := o.requests.Load(); got != 1 {
		t.Fatalf("origin requests = %d, want 1", got)
	}
}

func TestStoreOpenFailureDegradesToMemoryAndNetwork(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	cfg := Config{
		OriginURL: o.server.URL,
		Region:    "en",
		Version:   "v7",
		// A directory is not a usable database file.
		StorePath: t.TempDir(),
	}
	m, err := New(cfg, WithHTTPClient(o.server.Client()))
	if err != nil {
		t.Fatalf("new manager must not fail on store trouble: %v", err)
	}
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	if m.EntityAnimation(ctx, 100100, "stand") == nil {
		t.Fatal("degraded cache failed to resolve via network")
	}
	stats := m.Stats(ctx)
	if !stats.DurableDegraded {
		t.Fatal("stats do not report the degraded durable tier")
	}
	if stats.Categories[asset.CategoryEntityAnimation].DurableEntries != 0 {
		t.Fatal("degraded durable tier reported entries")
	}

	// Memory still works; only a memory clear forces a refetch.
	m.ClearMemory()
	if m.EntityAnimation(ctx, 100100, "stand") == nil {
		t.Fatal("refetch after memory clear failed")
	}
	if got := o.requests.Load(); got != 2 {
		t.Fatalf("origin requests = %d, want 2 (no durable tier)", got)
	}
}

func TestAbsentSoundIsNotAFailure(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	m := newTestManager(t, o)
	ctx := context.Background()

	if handle := m.EntitySound(ctx, 404, "attack"); handle != nil {
		t.Fatalf("absent sound = %v, want nil", handle)
	}
	stats := m.Stats(ctx)
	if stats.OriginFailures != 0 {
		t.Fatalf("origin failures = %d, want 0 for a legitimately absent asset", stats.OriginFailures)
	}
	if stats.OriginRequests != 1 {
		t.Fatalf("origin requests = %d, want 1", stats.OriginRequests)
	}
}

func TestNetworkFailureIsCountedAndNothingIsCached(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	m := newTestManager(t, o)
	ctx := context.Background()

	if handle := m.Image(ctx, "broken", 7, "icon"); handle != nil {
		t.Fatalf("failed fetch = %v, want nil", handle)
	}
	m.writers.Wait()
	stats := m.Stats(ctx)
	if stats.OriginFailures != 1 {
		t.Fatalf("origin failures = %d, want 1", stats.OriginFailures)
	}
	cat := stats.Categories[asset.CategoryImage]
	if cat.MemoryEntries != 0 || cat.DurableEntries != 0 {
		t.Fatalf("failure was cached: memory=%d durable=%d", cat.MemoryEntries, cat.DurableEntries)
	}

	// No automatic retry, but a new call tries again.
	m.Image(ctx, "broken", 7, "icon")
	if got := o.requests.Load(); got != 2 {
		t.Fatalf("origin requests = %d, want 2", got)
	}
}

func TestCorruptDurablePayloadFallsThroughToNetwork(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "assets.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	cfg := Config{OriginURL: o.server.URL, Region: "en", Version: "v7"}
	m, err := New(cfg, WithHTTPClient(o.server.Client()), withStore(store))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	// A stored payload that decompresses fine but is not a GIF.
	if !store.Put(ctx, asset.CategoryEntityAnimation, "entity_animation/5/walk", []byte("not a gif")) {
		t.Fatal("seed put failed")
	}

	handle := m.EntityAnimation(ctx, 5, "walk")
	if handle == nil {
		t.Fatal("undecodable durable payload did not fall through to network")
	}
	if got := o.requests.Load(); got != 1 {
		t.Fatalf("origin requests = %d, want 1", got)
	}
	m.writers.Wait()

	// The refetched payload replaced the poisoned row.
	raw, err := store.Get(ctx, asset.CategoryEntityAnimation, "entity_animation/5/walk")
	if err != nil {
		t.Fatalf("get repaired payload: %v", err)
	}
	if !bytes.Equal(raw, o.gifData) {
		t.Fatal("durable row still holds the poisoned payload")
	}
}

func TestPreloadManyResolvesItemsIndependently(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	m := newTestManager(t, o)
	ctx := context.Background()

	refs := []asset.Ref{
		asset.EntityAnimationRef(1, "stand"),
		asset.EntityAnimationRef(2, "walk"),
		asset.ImageRef("broken", 7, "icon"), // fails; must not abort the batch
		asset.EntitySoundRef(9, "attack"),
	}
	m.PreloadMany(ctx, refs)

	if m.EntityAnimation(ctx, 1, "stand") == nil {
		t.Fatal("preloaded animation missing")
	}
	if m.EntitySound(ctx, 9, "attack") == nil {
		t.Fatal("preloaded sound missing")
	}
	if got := o.requests.Load(); got != int64(len(refs)) {
		t.Fatalf("origin requests = %d, want %d (preload fetches each once, hits after)", got, len(refs))
	}
}

func TestClearByCategoryLeavesOthersIntact(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	m := newTestManager(t, o)
	ctx := context.Background()

	m.EntityAnimation(ctx, 1, "stand")
	m.MusicTrack(ctx, "themes/battle.ogg")
	m.writers.Wait()

	if err := m.Clear(ctx, asset.CategoryEntityAnimation); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stats := m.Stats(ctx)
	anim := stats.Categories[asset.CategoryEntityAnimation]
	if anim.MemoryEntries != 0 || anim.DurableEntries != 0 {
		t.Fatalf("cleared category still populated: memory=%d durable=%d", anim.MemoryEntries, anim.DurableEntries)
	}
	music := stats.Categories[asset.CategoryMusic]
	if music.MemoryEntries != 1 || music.DurableEntries != 1 {
		t.Fatalf("untouched category lost entries: memory=%d durable=%d", music.MemoryEntries, music.DurableEntries)
	}

	if err := m.Clear(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	stats = m.Stats(ctx)
	if stats.Categories[asset.CategoryMusic].DurableEntries != 0 {
		t.Fatal("clear all left durable entries")
	}
}

func TestMemoryCapacityEvictsOldestInsertion(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	cfg := Config{
		OriginURL:      o.server.URL,
		Region:         "en",
		Version:        "v7",
		MemoryCapacity: 1,
	}
	m, err := New(cfg, WithHTTPClient(o.server.Client()))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	m.EntityAnimation(ctx, 1, "stand")
	time.Sleep(2 * time.Millisecond)
	m.EntityAnimation(ctx, 2, "stand")

	stats := m.Stats(ctx)
	if got := stats.Categories[asset.CategoryEntityAnimation].MemoryEntries; got != 1 {
		t.Fatalf("memory entries = %d, want capacity 1", got)
	}
	// Entity 2 displaced entity 1.
	m.EntityAnimation(ctx, 2, "stand")
	if got := o.requests.Load(); got != 2 {
		t.Fatalf("origin requests = %d, want 2 (newest entry retained)", got)
	}
}

func TestInvalidRequestResolvesNil(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	m := newTestManager(t, o)
	if handle := m.EntityAnimation(context.Background(), 0, ""); handle != nil {
		t.Fatalf("invalid request = %v, want nil", handle)
	}
	if got := o.requests.Load(); got != 0 {
		t.Fatalf("origin requests = %d, want 0", got)
	}
}

func TestWorkedExampleFromIntegrationNotes(t *testing.T) {
	t.Parallel()

	o := newTestOrigin(t)
	o.gate = make(chan struct{})
	m := newTestManager(t, o)
	ctx := context.Background()

	// Two concurrent callers before resolution: one fetch, one shared handle.
	var wg, ready sync.WaitGroup
	handles := make([]*asset.AnimationHandle, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		ready.Add(1)
		go func(slot int) {
			defer wg.Done()
			ready.Done()
			handles[slot] = m.EntityAnimation(ctx, 100100, "stand")
		}(i)
	}
	ready.Wait()
	time.Sleep(50 * time.Millisecond)
	close(o.gate)
	wg.Wait()

	if got := o.requests.Load(); got != 1 {
		t.Fatalf("origin requests = %d, want 1", got)
	}
	if handles[0] == nil || handles[0] != handles[1] {
		t.Fatal("concurrent callers did not share one non-nil handle")
	}

	// Third call with only memory cleared: served from the durable tier.
	m.writers.Wait()
	m.ClearMemory()
	if m.EntityAnimation(ctx, 100100, "stand") == nil {
		t.Fatal("durable tier did not serve after memory clear")
	}
	if got := o.requests.Load(); got != 1 {
		t.Fatalf("origin requests = %d, want 1 after durable hit", got)
	}
}
