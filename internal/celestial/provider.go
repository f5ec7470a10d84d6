package celestial

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// Ephemeris is the external source of planet and Moon vectors. Distances
// are in an implementation-defined unit reported by UnitKm.
type Ephemeris interface {
	// Heliocentric returns the body's position relative to the Sun in the
	// ecliptic frame. Implementations need not support Moon.
	Heliocentric(body Body, t time.Time) (r3.Vec, error)
	// GeocentricMoon returns the Moon's position relative to Earth.
	GeocentricMoon(t time.Time) (r3.Vec, error)
	// UnitKm is the number of kilometres in one returned distance unit.
	UnitKm() float64
}

// Position is a body's heliocentric position in scene units.
type Position struct {
	Body       Body      `json:"body"`
	Time       time.Time `json:"time"`
	Scene      r3.Vec    `json:"scene"`
	DistanceKm float64   `json:"distance_km"`
	// Stale marks a reused snapshot from an earlier successful query.
	Stale bool `json:"stale,omitempty"`
}

// Provider adapts an Ephemeris to scene units and keeps the last good
// position per body. Safe for concurrent use.
type Provider struct {
	eph    Ephemeris
	logger *slog.Logger

	mu   sync.Mutex
	last map[Body]Position
	// lastMoonGeo is the last good geocentric Moon vector in km.
	lastMoonGeo *r3.Vec
}

// NewProvider wraps eph.
func NewProvider(eph Ephemeris, logger *slog.Logger) *Provider {
	return &Provider{
		eph:    eph,
		logger: logger,
		last:   make(map[Body]Position),
	}
}

// toKm converts a vector in the ephemeris unit to kilometres.
func (p *Provider) toKm(v r3.Vec) r3.Vec {
	return r3.Scale(p.eph.UnitKm(), v)
}

// HeliocentricKm returns the body's heliocentric vector in km.
func (p *Provider) HeliocentricKm(body Body, t time.Time) (r3.Vec, error) {
	switch body {
	case Sun:
		return r3.Vec{}, nil
	case Moon:
		earth, err := p.eph.Heliocentric(Earth, t)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("earth: %w", err)
		}
		moon, err := p.MoonGeocentricKm(t)
		if err != nil {
			return r3.Vec{}, err
		}
		return r3.Add(p.toKm(earth), moon), nil
	}
	v, err := p.eph.Heliocentric(body, t)
	if err != nil {
		return r3.Vec{}, fmt.Errorf("%s: %w", body, err)
	}
	return p.toKm(v), nil
}

// MoonGeocentricKm returns the Moon's geocentric vector in km.
func (p *Provider) MoonGeocentricKm(t time.Time) (r3.Vec, error) {
	v, err := p.eph.GeocentricMoon(t)
	if err != nil {
		return r3.Vec{}, fmt.Errorf("moon: %w", err)
	}
	return p.toKm(v), nil
}

// Position returns the body's heliocentric position in scene units. When
// the ephemeris fails and an earlier result for the same body exists, that
// result is returned marked Stale; otherwise the error is returned.
func (p *Provider) Position(body Body, t time.Time) (Position, error) {
	if body < 0 || int(body) >= len(bodyNames) {
		return Position{}, fmt.Errorf("body %d: %w", int(body), ErrUnknownBody)
	}

	km, err := p.HeliocentricKm(body, t)
	if err != nil {
		p.mu.Lock()
		prev, ok := p.last[body]
		p.mu.Unlock()
		if !ok {
			metrics.ObserveEphemeris(body.String(), "error")
			return Position{}, err
		}
		metrics.ObserveEphemeris(body.String(), "stale")
		p.logger.Warn("ephemeris unavailable, serving last snapshot",
			"body", body.String(),
			"snapshot_time", prev.Time.UTC().Format(time.RFC3339),
			"error", err,
		)
		prev.Stale = true
		return prev, nil
	}

	pos := Position{
		Body:       body,
		Time:       t,
		Scene:      transform.VecKmToScene(km),
		DistanceKm: r3.Norm(km),
	}
	p.mu.Lock()
	p.last[body] = pos
	p.mu.Unlock()
	metrics.ObserveEphemeris(body.String(), "ok")
	return pos, nil
}

// MoonGeocentric returns the Moon relative to Earth in scene units, falling
// back to the last good vector like Position.
func (p *Provider) MoonGeocentric(t time.Time) (r3.Vec, bool, error) {
	km, err := p.MoonGeocentricKm(t)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if p.lastMoonGeo == nil {
			return r3.Vec{}, false, err
		}
		return transform.VecKmToScene(*p.lastMoonGeo), true, nil
	}
	p.lastMoonGeo = &km
	return transform.VecKmToScene(km), false, nil
}

// All returns positions for every body that resolves at t. Bodies that fail
// without a snapshot are left out and their errors joined.
func (p *Provider) All(t time.Time) ([]Position, error) {
	var (
		out  []Position
		errs []error
	)
	for _, b := range Bodies() {
		pos, err := p.Position(b, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, pos)
	}
	return out, errors.Join(errs...)
}
