// Package trajectory interpolates spacecraft positions from tabulated
// ephemerides and tracks the named events along each mission timeline.
package trajectory

import (
	"slices"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Sample is one tabulated ephemeris point. Position is geocentric in km;
// Distance is the scalar distance reported alongside it (km).
type Sample struct {
	Time     time.Time
	Position r3.Vec
	Distance float64
}

// Trajectory is an immutable time-sorted sequence of samples.
type Trajectory struct {
	samples []Sample
}

// NewTrajectory sorts a copy of samples by time. The caller's slice is
// never modified.
func NewTrajectory(samples []Sample) *Trajectory {
	s := slices.Clone(samples)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
	return &Trajectory{samples: s}
}

// Len returns the number of samples.
func (tr *Trajectory) Len() int { return len(tr.samples) }

// Samples returns a copy of the sorted samples.
func (tr *Trajectory) Samples() []Sample { return slices.Clone(tr.samples) }

// Span returns the first and last sample times.
func (tr *Trajectory) Span() (start, end time.Time, ok bool) {
	if len(tr.samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return tr.samples[0].Time, tr.samples[len(tr.samples)-1].Time, true
}

// PositionAt returns the position at t:
//   - before the first sample (or with no samples) there is no position;
//   - at or after the last sample the last sample is returned unchanged;
//   - otherwise each axis and the distance are interpolated linearly
//     between the bracketing samples.
func (tr *Trajectory) PositionAt(t time.Time) (Sample, bool) {
	n := len(tr.samples)
	if n == 0 || t.Before(tr.samples[0].Time) {
		return Sample{}, false
	}
	last := tr.samples[n-1]
	if !t.Before(last.Time) {
		return last, true
	}

	// First sample strictly after t; i ≥ 1 because t ≥ samples[0].
	i := sort.Search(n, func(i int) bool { return tr.samples[i].Time.After(t) })
	a, b := tr.samples[i-1], tr.samples[i]
	if t.Equal(a.Time) {
		return a, true
	}

	span := b.Time.Sub(a.Time)
	if span <= 0 {
		return Sample{Time: t, Position: a.Position, Distance: a.Distance}, true
	}
	f := float64(t.Sub(a.Time)) / float64(span)

	return Sample{
		Time:     t,
		Position: r3.Add(a.Position, r3.Scale(f, r3.Sub(b.Position, a.Position))),
		Distance: a.Distance + f*(b.Distance-a.Distance),
	}, true
}
