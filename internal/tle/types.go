package tle

import (
	"errors"
	"time"
)

// ErrNoDataset is returned when an operation needs a loaded dataset.
var ErrNoDataset = errors.New("no TLE dataset loaded")

// TLEEntry represents a single satellite's two-line element set.
// The raw lines are the source of truth; Elements is a projection of them.
type TLEEntry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// TLEDataset represents a complete set of TLE data from a source.
// A dataset is never mutated after it is published to a Store.
type TLEDataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []TLEEntry
}

// Find returns the entry for noradID.
func (ds *TLEDataset) Find(noradID int) (TLEEntry, bool) {
	if ds == nil {
		return TLEEntry{}, false
	}
	for _, e := range ds.Satellites {
		if e.NORADID == noradID {
			return e, true
		}
	}
	return TLEEntry{}, false
}

// Elements are the mean orbital elements read from the fixed columns of a
// TLE. Angles are in degrees, mean motion in revolutions per day. Fields that
// fail to parse are NaN; an unparseable epoch is the zero time.
type Elements struct {
	Inclination  float64
	RAAN         float64
	Eccentricity float64
	ArgPerigee   float64
	MeanAnomaly  float64
	MeanMotion   float64
	Epoch        time.Time
}

// NewDataset builds a dataset from parsed entries and computes its epoch range.
func NewDataset(source string, fetchedAt time.Time, entries []TLEEntry) *TLEDataset {
	ds := &TLEDataset{
		Source:     source,
		FetchedAt:  fetchedAt,
		Satellites: entries,
	}
	ds.EpochRange = epochRange(entries)
	return ds
}

func epochRange(entries []TLEEntry) EpochRange {
	var r EpochRange
	for i, e := range entries {
		if i == 0 || e.Epoch.Before(r.Min) {
			r.Min = e.Epoch
		}
		if i == 0 || e.Epoch.After(r.Max) {
			r.Max = e.Epoch
		}
	}
	return r
}
