package tle

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ParseElements reads the orbital elements from a TLE line pair using the
// standard fixed columns. It never fails: a field that is missing or not a
// number comes back as NaN, and the checksum is not verified.
func ParseElements(line1, line2 string) Elements {
	el := Elements{
		Inclination: column(line2, 8, 16),
		RAAN:        column(line2, 17, 25),
		ArgPerigee:  column(line2, 34, 42),
		MeanAnomaly: column(line2, 43, 51),
		MeanMotion:  column(line2, 52, 63),
	}

	// Eccentricity carries an implied leading decimal point.
	el.Eccentricity = math.NaN()
	if s, ok := slice(line2, 26, 33); ok {
		if v, err := strconv.ParseFloat("0."+strings.TrimSpace(s), 64); err == nil {
			el.Eccentricity = v
		}
	}

	if s, ok := slice(line1, 18, 32); ok {
		if epoch, err := parseEpoch(strings.TrimSpace(s)); err == nil {
			el.Epoch = epoch
		}
	}

	return el
}

func slice(line string, lo, hi int) (string, bool) {
	if len(line) < hi {
		return "", false
	}
	return line[lo:hi], true
}

func column(line string, lo, hi int) float64 {
	s, ok := slice(line, lo, hi)
	if !ok {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

type cachedElements struct {
	line1, line2 string
	elements     Elements
}

// ElementCache memoises ParseElements per satellite. It is safe for
// concurrent use and is invalidated by the Store whenever lines change.
type ElementCache struct {
	mu      sync.RWMutex
	entries map[int]cachedElements
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewElementCache creates an empty cache.
func NewElementCache() *ElementCache {
	return &ElementCache{entries: make(map[int]cachedElements)}
}

// Get returns the parsed elements for entry, parsing on first use. An entry
// whose lines no longer match the cached copy is reparsed.
func (c *ElementCache) Get(entry TLEEntry) Elements {
	c.mu.RLock()
	ce, ok := c.entries[entry.NORADID]
	c.mu.RUnlock()
	if ok && ce.line1 == entry.Line1 && ce.line2 == entry.Line2 {
		c.hits.Add(1)
		return ce.elements
	}

	c.misses.Add(1)
	el := ParseElements(entry.Line1, entry.Line2)

	c.mu.Lock()
	c.entries[entry.NORADID] = cachedElements{line1: entry.Line1, line2: entry.Line2, elements: el}
	c.mu.Unlock()
	return el
}

// Invalidate drops the cached elements for one satellite.
func (c *ElementCache) Invalidate(noradID int) {
	c.mu.Lock()
	delete(c.entries, noradID)
	c.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (c *ElementCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[int]cachedElements)
	c.mu.Unlock()
}

// CacheStats is a point-in-time view of cache usage.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Stats returns the current cache counters.
func (c *ElementCache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Age returns how far t lies from the element epoch. The zero duration is
// returned when the epoch did not parse.
func (el Elements) Age(t time.Time) time.Duration {
	if el.Epoch.IsZero() {
		return 0
	}
	return t.Sub(el.Epoch)
}
