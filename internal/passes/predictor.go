// Package passes predicts when satellites cross an observer's sky.
package passes

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/tle"
	"github.com/star/orrery/internal/transform"
)

// GroundTrackPoint is the sub-satellite point at one instant of a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude_km"`
	Elevation float64   `json:"elevation"` // degrees above the horizon
}

// PassEvent is one rise-to-set crossing above the minimum elevation.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	GroundTrack      []GroundTrackPoint `json:"ground_track"`
}

// SatellitePasses holds the passes found for one satellite, or the reason
// none could be computed.
type SatellitePasses struct {
	NORADID int         `json:"norad_id"`
	Passes  []PassEvent `json:"passes"`
	Error   string      `json:"error,omitempty"`
}

// SourceFunc builds the state source used to scan one satellite.
type SourceFunc func(entry tle.TLEEntry) (propagation.StateSource, error)

// SGP4Source is the default SourceFunc.
func SGP4Source(entry tle.TLEEntry) (propagation.StateSource, error) {
	return propagation.NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID)
}

// Request describes one prediction over [Start, Start+HorizonHours).
type Request struct {
	Observer     transform.ObserverPosition
	Entries      []tle.TLEEntry
	Start        time.Time
	HorizonHours float64
	MinElevation float64 // degrees
	MaxPasses    int
	Source       SourceFunc // nil selects SGP4Source
}

const (
	coarseStep      = 30 * time.Second
	fineStep        = time.Second
	trackEvery      = 10 * time.Second
	minPassDuration = 10 * time.Second
)

// Predict scans every entry concurrently, at most one per CPU. Results keep
// the order of req.Entries; a satellite that cannot be scanned carries an
// error instead of passes.
func Predict(ctx context.Context, req Request) []SatellitePasses {
	results := make([]SatellitePasses, len(req.Entries))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, entry := range req.Entries {
		results[i].NORADID = entry.NORADID
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i].Error = "cancelled"
				return
			}
			found, err := scanSatellite(ctx, req, entry)
			if err != nil {
				results[i].Error = err.Error()
				return
			}
			results[i].Passes = found
		}()
	}

	wg.Wait()
	return results
}

// look is the satellite state at one instant together with how the
// observer sees it.
type look struct {
	st    propagation.SatState
	angle transform.LookAngles
}

func (l look) elevation() float64 { return l.angle.ElevationDeg }

func (l look) trackPoint() GroundTrackPoint {
	return GroundTrackPoint{
		Time:      l.st.Time,
		Latitude:  l.st.Latitude,
		Longitude: l.st.Longitude,
		Altitude:  l.st.Altitude,
		Elevation: l.elevation(),
	}
}

// sky samples one satellite from one observer.
type sky struct {
	src   propagation.StateSource
	obs   transform.ObserverPosition
	minEl float64
}

// at reports false for instants the source cannot produce a usable state.
func (s sky) at(t time.Time) (look, bool) {
	st, err := s.src.StateAt(t)
	if err != nil || !transform.IsFinite(st.ECEF) {
		return look{}, false
	}
	st.Time = t
	return look{st: st, angle: transform.ECEFToLookAngles(s.obs, st.ECEF)}, true
}

func scanSatellite(ctx context.Context, req Request, entry tle.TLEEntry) ([]PassEvent, error) {
	newSource := req.Source
	if newSource == nil {
		newSource = SGP4Source
	}
	src, err := newSource(entry)
	if err != nil {
		return nil, fmt.Errorf("propagator init: %w", err)
	}
	s := sky{src: src, obs: req.Observer, minEl: req.MinElevation}
	end := req.Start.Add(time.Duration(req.HorizonHours * float64(time.Hour)))

	var found []PassEvent
	for t := req.Start; t.Before(end) && len(found) < req.MaxPasses && ctx.Err() == nil; {
		l, ok := s.at(t)
		if !ok || l.elevation() <= 0 {
			t = t.Add(coarseStep)
			continue
		}
		// Above the horizon: follow this window at fine resolution.
		pass, stop := s.follow(ctx, t, req.Start, end)
		if pass != nil && pass.EndTime.Sub(pass.StartTime) >= minPassDuration {
			found = append(found, *pass)
		}
		t = stop.Add(coarseStep)
	}
	return found, nil
}

// follow scans one visibility window that the coarse scan hit at hit,
// starting a coarse step earlier to catch the rise. It returns the pass (nil
// when the satellite never cleared the minimum elevation) and the instant
// the scan stopped. A window that ends while the satellite is still up is
// closed at the last usable sample.
func (s sky) follow(ctx context.Context, hit, lo, hi time.Time) (*PassEvent, time.Time) {
	t := hit.Add(-coarseStep)
	if t.Before(lo) {
		t = lo
	}

	var (
		pass *PassEvent
		last look
	)
	for ; t.Before(hi) && ctx.Err() == nil; t = t.Add(fineStep) {
		l, ok := s.at(t)
		if !ok {
			continue
		}
		above := l.elevation() >= s.minEl
		switch {
		case pass == nil && above:
			pass = rise(l)
		case pass != nil && above:
			extend(pass, l)
		case pass != nil:
			set(pass, l)
			return pass, t
		case !t.Before(hit) && l.elevation() < 0:
			// Dropped below the horizon without reaching minEl.
			return nil, t
		}
		last = l
	}
	if pass != nil {
		set(pass, last)
	}
	return pass, t
}

func rise(l look) *PassEvent {
	return &PassEvent{
		StartTime:        l.st.Time,
		StartAzimuth:     l.angle.AzimuthDeg,
		MaxElevation:     l.elevation(),
		MaxElevationTime: l.st.Time,
		AzimuthAtMax:     l.angle.AzimuthDeg,
		GroundTrack:      []GroundTrackPoint{l.trackPoint()},
	}
}

func extend(p *PassEvent, l look) {
	if l.elevation() > p.MaxElevation {
		p.MaxElevation = l.elevation()
		p.MaxElevationTime = l.st.Time
		p.AzimuthAtMax = l.angle.AzimuthDeg
	}
	if l.st.Time.Sub(p.StartTime)%trackEvery == 0 {
		p.GroundTrack = append(p.GroundTrack, l.trackPoint())
	}
}

func set(p *PassEvent, l look) {
	p.EndTime = l.st.Time
	p.EndAzimuth = l.angle.AzimuthDeg
	p.DurationSeconds = p.EndTime.Sub(p.StartTime).Seconds()
}
