package cache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/tle"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"

	issUpdated1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issUpdated2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore() *tle.Store {
	store := tle.NewStore()
	store.Set(tle.NewDataset("test", time.Now(), []tle.TLEEntry{
		{NORADID: 25544, Name: "ISS", Line1: issLine1, Line2: issLine2},
	}))
	return store
}

func testPropagator(store *tle.Store) *propagation.Propagator {
	cfg := propagation.PropConfig{Workers: 2, Step: 5 * time.Second, Horizon: 30 * time.Second}
	return propagation.NewPropagator(store, nil, cfg, testLogger())
}

func testConfig() Config {
	return Config{
		Step:        5 * time.Second,
		Horizon:     30 * time.Second,
		GracePeriod: 5 * time.Second,
		Buffer:      10 * time.Second,
	}
}

// fixedClock pins the cache's wall clock so window arithmetic is exact.
func fixedClock(c *KeyframeCache, t time.Time) {
	c.now = func() time.Time { return t }
}

var clockNow = time.Date(2026, 2, 6, 12, 0, 2, 0, time.UTC)

func TestKeyframeCache(t *testing.T) {
	store := testStore()
	prop := testPropagator(store)
	c := NewKeyframeCache(testConfig(), prop, store, testLogger())

	target := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)
	kf, err := prop.PropagateToTime(context.Background(), target)
	if err != nil {
		t.Fatalf("PropagateToTime failed: %v", err)
	}
	c.put(kf)

	// Any time within the step maps to the same frame.
	got := c.Get(target.Add(3 * time.Second))
	if got == nil {
		t.Fatal("expected cache hit, got nil")
	}
	if !got.Timestamp.Equal(target) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, target)
	}

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("entries = %d, want 1", stats.Entries)
	}
	if stats.Hits < 1 {
		t.Errorf("hits = %d, want >= 1", stats.Hits)
	}
	if stats.Model != string(propagation.ModelSimple) {
		t.Errorf("model = %q, want %q", stats.Model, propagation.ModelSimple)
	}
}

func TestRoundToStep(t *testing.T) {
	store := testStore()
	c := NewKeyframeCache(testConfig(), testPropagator(store), store, testLogger())

	tests := []struct {
		input, want time.Time
	}{
		{time.Date(2026, 2, 6, 12, 0, 3, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)},
		{time.Date(2026, 2, 6, 12, 0, 7, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 5, 0, time.UTC)},
		{time.Date(2026, 2, 6, 12, 0, 10, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 10, 0, time.UTC)},
		// Non-UTC input keys on the same instant.
		{time.Date(2026, 2, 6, 13, 0, 7, 0, time.FixedZone("CET", 3600)), time.Date(2026, 2, 6, 12, 0, 5, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := c.RoundToStep(tt.input)
		if !got.Equal(tt.want) || got.Location() != time.UTC {
			t.Errorf("RoundToStep(%v) = %v, want %v UTC", tt.input, got, tt.want)
		}
	}
}

func TestCacheMiss(t *testing.T) {
	store := testStore()
	c := NewKeyframeCache(testConfig(), testPropagator(store), store, testLogger())

	if got := c.Get(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)); got != nil {
		t.Fatal("expected nil for cache miss")
	}
	if c.Stats().Misses < 1 {
		t.Errorf("misses = %d, want >= 1", c.Stats().Misses)
	}
}

func TestEvictExpired(t *testing.T) {
	store := testStore()
	prop := testPropagator(store)
	cfg := testConfig()
	cfg.Buffer = 0
	c := NewKeyframeCache(cfg, prop, store, testLogger())
	fixedClock(c, clockNow)

	ctx := context.Background()
	past := clockNow.Add(-2 * time.Minute).Truncate(5 * time.Second)
	future := clockNow.Add(time.Minute).Truncate(5 * time.Second)
	for _, ts := range []time.Time{past, future} {
		kf, err := prop.PropagateToTime(ctx, ts)
		if err != nil {
			t.Fatalf("PropagateToTime failed: %v", err)
		}
		c.put(kf)
	}
	if n := c.Stats().Entries; n != 2 {
		t.Fatalf("entries = %d, want 2", n)
	}

	if removed := c.evictExpired(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if c.Get(past) != nil {
		t.Error("past entry should be evicted")
	}
	if c.Get(future) == nil {
		t.Error("future entry should remain")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestRebuildFillsWindow(t *testing.T) {
	store := testStore()
	cfg := testConfig()
	cfg.Horizon = 15 * time.Second // frames at 0, 5, 10, 15
	c := NewKeyframeCache(cfg, testPropagator(store), store, testLogger())
	fixedClock(c, clockNow)

	c.rebuild(context.Background())

	stats := c.Stats()
	if stats.Entries != 4 {
		t.Errorf("entries = %d, want 4", stats.Entries)
	}
	if want := clockNow.Truncate(5 * time.Second); !stats.Oldest.Equal(want) {
		t.Errorf("oldest = %v, want %v", stats.Oldest, want)
	}
	if want := clockNow.Truncate(5 * time.Second).Add(15 * time.Second); !stats.Newest.Equal(want) {
		t.Errorf("newest = %v, want %v", stats.Newest, want)
	}
	if c.GetLatest() == nil {
		t.Fatal("GetLatest returned nil after rebuild")
	}
	if c.datasetChanged() {
		t.Error("dataset should not read as changed right after a rebuild")
	}
}

func TestExtendLeadingEdge(t *testing.T) {
	store := testStore()
	cfg := testConfig()
	cfg.Horizon = 10 * time.Second
	c := NewKeyframeCache(cfg, testPropagator(store), store, testLogger())
	fixedClock(c, clockNow)
	c.rebuild(context.Background())

	before := c.Stats().Entries
	fixedClock(c, clockNow.Add(5*time.Second))
	c.tick(context.Background())

	if got := c.Stats().Entries; got != before+1 {
		t.Errorf("entries = %d, want %d", got, before+1)
	}
	edge := clockNow.Add(15 * time.Second).Truncate(5 * time.Second)
	if c.Get(edge) == nil {
		t.Errorf("missing leading edge frame at %v", edge)
	}
}

func TestCutoverOnSet(t *testing.T) {
	store := testStore()
	cfg := testConfig()
	cfg.Horizon = 10 * time.Second
	c := NewKeyframeCache(cfg, testPropagator(store), store, testLogger())
	fixedClock(c, clockNow)
	c.rebuild(context.Background())

	store.Set(tle.NewDataset("updated", time.Now().Add(time.Second), []tle.TLEEntry{
		{NORADID: 25544, Name: "ISS", Line1: issUpdated1, Line2: issUpdated2},
	}))
	if !c.datasetChanged() {
		t.Fatal("expected a change after Set")
	}

	c.tick(context.Background())

	if c.Stats().Rebuilding {
		t.Error("rebuilding flag should clear after the swap")
	}
	if c.Stats().Entries == 0 {
		t.Fatal("no entries after cutover")
	}
	if c.datasetChanged() {
		t.Error("dataset should not read as changed after cutover")
	}
}

// A single-line replacement keeps FetchedAt, so the cache must notice the
// new dataset pointer and rebuild with the new elements.
func TestCutoverOnReplace(t *testing.T) {
	store := testStore()
	cfg := testConfig()
	cfg.Horizon = 5 * time.Second
	c := NewKeyframeCache(cfg, testPropagator(store), store, testLogger())
	fixedClock(c, clockNow)
	c.rebuild(context.Background())

	before := c.Get(clockNow).Satellites[0]

	if _, err := store.Replace(25544, issUpdated1, issUpdated2); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if !c.datasetChanged() {
		t.Fatal("expected a change after Replace")
	}
	c.tick(context.Background())

	after := c.Get(clockNow).Satellites[0]
	if before.PositionECEF == after.PositionECEF {
		t.Error("position unchanged after replacing the element set")
	}
}

func TestGetRecent(t *testing.T) {
	store := testStore()
	cfg := testConfig()
	cfg.Horizon = 20 * time.Second
	c := NewKeyframeCache(cfg, testPropagator(store), store, testLogger())
	fixedClock(c, clockNow)
	c.rebuild(context.Background())

	end := clockNow.Add(15 * time.Second)
	got := c.GetRecent(end, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("frames not oldest-first at %d", i)
		}
	}
	if c.GetRecent(end, 0) != nil {
		t.Error("count 0 should return nil")
	}
}

func TestGetLatestEmpty(t *testing.T) {
	store := testStore()
	c := NewKeyframeCache(testConfig(), testPropagator(store), store, testLogger())
	if c.GetLatest() != nil {
		t.Fatal("expected nil from empty cache")
	}
}

func TestStartWaitsForDataset(t *testing.T) {
	store := tle.NewStore()
	c := NewKeyframeCache(testConfig(), testPropagator(store), store, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if c.Stats().Entries != 0 {
		t.Error("cache filled without a dataset")
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := testStore()
	c := NewKeyframeCache(testConfig(), testPropagator(store), store, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go c.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.GetLatest()
				c.Get(time.Now())
				c.GetRecent(time.Now(), 5)
				c.Stats()
			}
		}()
	}
	wg.Wait()
}

func TestSizeEstimation(t *testing.T) {
	store := testStore()
	cfg := testConfig()
	cfg.Horizon = 10 * time.Second
	c := NewKeyframeCache(cfg, testPropagator(store), store, testLogger())
	fixedClock(c, clockNow)
	c.rebuild(context.Background())

	stats := c.Stats()
	if stats.SizeBytes <= 0 {
		t.Errorf("expected positive size estimate, got %d", stats.SizeBytes)
	}
	// One satellite, three frames.
	if stats.SizeBytes > 10000 {
		t.Errorf("size estimate too large for one satellite: %d bytes", stats.SizeBytes)
	}
}
