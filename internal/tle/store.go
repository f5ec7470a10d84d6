package tle

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Invalidator is notified when satellite lines change so derived state can
// be dropped. ElementCache implements it.
type Invalidator interface {
	Invalidate(noradID int)
	InvalidateAll()
}

// Store provides thread-safe access to the current TLE dataset. The dataset
// pointer is swapped atomically; readers keep whatever snapshot they loaded.
type Store struct {
	dataset atomic.Pointer[TLEDataset]
	mu      sync.Mutex // serializes fetch and replace operations

	hooksMu sync.RWMutex
	hooks   []Invalidator
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// AddInvalidator registers inv to be notified on every Set and Replace.
func (s *Store) AddInvalidator(inv Invalidator) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, inv)
	s.hooksMu.Unlock()
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *TLEDataset {
	return s.dataset.Load()
}

// Lookup returns the current entry for noradID.
func (s *Store) Lookup(noradID int) (TLEEntry, bool) {
	return s.dataset.Load().Find(noradID)
}

// Set atomically replaces the current dataset and invalidates all derived state.
func (s *Store) Set(ds *TLEDataset) {
	s.dataset.Store(ds)

	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	for _, h := range s.hooks {
		h.InvalidateAll()
	}
}

// Replace swaps the lines of a single satellite, adding it when absent. The
// lines are validated first; the published dataset is copied, never edited.
func (s *Store) Replace(noradID int, line1, line2 string) (TLEEntry, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if err := ValidateLines(line1, line2); err != nil {
		return TLEEntry{}, fmt.Errorf("replacing NORAD %d: %w", noradID, err)
	}
	if id, _ := NORADID(line1); id != noradID {
		return TLEEntry{}, fmt.Errorf("replacing NORAD %d: lines belong to NORAD %d", noradID, id)
	}
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return TLEEntry{}, fmt.Errorf("replacing NORAD %d: %w", noradID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		source    = "manual"
		fetchedAt = time.Now()
		entries   []TLEEntry
	)
	if cur := s.dataset.Load(); cur != nil {
		source = cur.Source
		fetchedAt = cur.FetchedAt
		entries = slices.Clone(cur.Satellites)
	}

	entry := TLEEntry{NORADID: noradID, Name: fmt.Sprintf("NORAD %d", noradID), Epoch: epoch, Line1: line1, Line2: line2}
	idx := slices.IndexFunc(entries, func(e TLEEntry) bool { return e.NORADID == noradID })
	if idx >= 0 {
		entry.Name = entries[idx].Name
		entries[idx] = entry
	} else {
		entries = append(entries, entry)
	}

	s.dataset.Store(NewDataset(source, fetchedAt, entries))

	s.hooksMu.RLock()
	for _, h := range s.hooks {
		h.Invalidate(noradID)
	}
	s.hooksMu.RUnlock()

	return entry, nil
}

// AgeSeconds returns the age of the current dataset in seconds.
// Returns -1 if no dataset is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.dataset.Load()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}

// Lock acquires the fetch mutex for serializing fetch operations.
func (s *Store) Lock() {
	s.mu.Lock()
}

// Unlock releases the fetch mutex.
func (s *Store) Unlock() {
	s.mu.Unlock()
}
