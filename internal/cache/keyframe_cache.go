// Package cache keeps a rolling window of real-time satellite keyframes.
//
// The window spans [now, now+horizon] at the configured step. A background
// loop fills the leading edge and evicts the trailing edge. Any change to the
// published TLE dataset, including a single-satellite line replacement,
// triggers a rebuild that swaps in atomically while readers keep using the
// old frames.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/tle"
)

// Config holds keyframe cache settings.
type Config struct {
	Step        time.Duration // keyframe interval (default 5s)
	Horizon     time.Duration // how far ahead to cache (default 600s)
	GracePeriod time.Duration // upper bound on one cutover rebuild (default 30s)
	Buffer      time.Duration // keep frames this long past their time (default 60s)
}

// Entry wraps a keyframe with generation metadata.
type Entry struct {
	Keyframe    *propagation.Keyframe
	GeneratedAt time.Time
}

// KeyframeCache is an in-memory cache of keyframes keyed by step boundary.
// Safe for concurrent use.
type KeyframeCache struct {
	mu      sync.RWMutex
	entries map[time.Time]*Entry

	config Config
	prop   *propagation.Propagator
	store  *tle.Store
	logger *slog.Logger
	now    func() time.Time

	// Dataset the current frames were built from. Replace publishes a new
	// pointer without touching FetchedAt, so identity is the change signal.
	builtFrom atomic.Pointer[tle.TLEDataset]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	rebuilding atomic.Bool
}

// NewKeyframeCache creates an empty cache. Call Start to fill it.
func NewKeyframeCache(config Config, prop *propagation.Propagator, store *tle.Store, logger *slog.Logger) *KeyframeCache {
	if config.Step <= 0 {
		config.Step = 5 * time.Second
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = 30 * time.Second
	}
	logger.Info("keyframe cache initialized",
		"step_seconds", config.Step.Seconds(),
		"horizon_seconds", config.Horizon.Seconds(),
		"buffer_seconds", config.Buffer.Seconds(),
		"grace_period_seconds", config.GracePeriod.Seconds(),
	)

	return &KeyframeCache{
		entries: make(map[time.Time]*Entry),
		config:  config,
		prop:    prop,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Step returns the keyframe interval.
func (c *KeyframeCache) Step() time.Duration { return c.config.Step }

// RoundToStep truncates t (in UTC) to the step boundary used as cache key.
func (c *KeyframeCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

// Get returns the keyframe for t's step boundary, or nil.
func (c *KeyframeCache) Get(t time.Time) *propagation.Keyframe {
	key := c.RoundToStep(t)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		metrics.IncCacheMisses()
		return nil
	}
	c.hits.Add(1)
	metrics.IncCacheHits()
	return entry.Keyframe
}

// GetRecent returns up to count keyframes ending at t's step boundary,
// oldest first. Missing steps are skipped.
func (c *KeyframeCache) GetRecent(t time.Time, count int) []*propagation.Keyframe {
	if count <= 0 {
		return nil
	}
	key := c.RoundToStep(t)

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*propagation.Keyframe, 0, count)
	for i := count - 1; i >= 0; i-- {
		if entry, ok := c.entries[key.Add(-time.Duration(i)*c.config.Step)]; ok {
			out = append(out, entry.Keyframe)
		}
	}
	return out
}

// GetLatest returns the newest keyframe at or before the current time,
// looking back at most ten steps.
func (c *KeyframeCache) GetLatest() *propagation.Keyframe {
	now := c.RoundToStep(c.now())

	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := 0; i < 10; i++ {
		if entry, ok := c.entries[now.Add(-time.Duration(i)*c.config.Step)]; ok {
			c.hits.Add(1)
			metrics.IncCacheHits()
			return entry.Keyframe
		}
	}
	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

func (c *KeyframeCache) put(kf *propagation.Keyframe) {
	entry := &Entry{Keyframe: kf, GeneratedAt: c.now()}

	c.mu.Lock()
	c.entries[c.RoundToStep(kf.Timestamp)] = entry
	c.mu.Unlock()

	c.publishSize()
}

// evictExpired drops frames older than now minus the buffer.
func (c *KeyframeCache) evictExpired() int {
	cutoff := c.now().Add(-c.config.Buffer)
	var removed int

	c.mu.Lock()
	for ts := range c.entries {
		if ts.Before(cutoff) {
			delete(c.entries, ts)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		c.publishSize()
		c.logger.Debug("keyframe eviction", "entries_removed", removed)
	}
	return removed
}

func (c *KeyframeCache) swap(entries map[time.Time]*Entry) {
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	c.publishSize()
}

// Stats is a point-in-time view of the cache for the stats endpoint.
type Stats struct {
	Entries    int       `json:"entries"`
	SizeBytes  int64     `json:"size_bytes"`
	Oldest     time.Time `json:"oldest_timestamp"`
	Newest     time.Time `json:"newest_timestamp"`
	Hits       int64     `json:"hits"`
	Misses     int64     `json:"misses"`
	Evictions  int64     `json:"evictions"`
	Rebuilding bool      `json:"rebuilding"`
	Model      string    `json:"model"`
}

// Stats returns current cache statistics.
func (c *KeyframeCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)
	var oldest, newest time.Time
	var model string
	for ts, e := range c.entries {
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
		if newest.IsZero() || ts.After(newest) {
			newest = ts
			model = string(e.Keyframe.Model)
		}
	}
	size := c.sizeLocked()
	c.mu.RUnlock()

	return Stats{
		Entries:    count,
		SizeBytes:  size,
		Oldest:     oldest,
		Newest:     newest,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
		Rebuilding: c.rebuilding.Load(),
		Model:      model,
	}
}

// sizeLocked estimates the memory footprint. Caller holds mu.
func (c *KeyframeCache) sizeLocked() int64 {
	satSize := int64(unsafe.Sizeof(propagation.SatellitePosition{}))
	kfSize := int64(unsafe.Sizeof(propagation.Keyframe{}))
	entrySize := int64(unsafe.Sizeof(Entry{}))

	var total int64
	for _, e := range c.entries {
		if e.Keyframe == nil {
			continue
		}
		total += int64(len(e.Keyframe.Satellites))*satSize + kfSize + entrySize
	}
	// Map bucket overhead, roughly one key plus pointer per entry.
	total += int64(len(c.entries)) * 32
	return total
}

func (c *KeyframeCache) publishSize() {
	c.mu.RLock()
	count := len(c.entries)
	size := c.sizeLocked()
	c.mu.RUnlock()

	metrics.SetCacheEntries(count)
	metrics.SetCacheSizeBytes(size)
}
