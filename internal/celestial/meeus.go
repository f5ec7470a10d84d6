package celestial

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/moonposition"
	pp "github.com/soniakeys/meeus/v3/planetposition"
	"github.com/soniakeys/meeus/v3/pluto"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/orrery/internal/kepler"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/transform"
)

// Config holds ephemeris settings.
type Config struct {
	// VSOP87Dir is a directory of VSOP87B files (VSOP87B.ear, ...). When
	// empty, planets come from mean elements with secular rates.
	VSOP87Dir string
}

var vsopIndex = map[Body]int{
	Mercury: pp.Mercury,
	Venus:   pp.Venus,
	Earth:   pp.Earth,
	Mars:    pp.Mars,
	Jupiter: pp.Jupiter,
	Saturn:  pp.Saturn,
	Uranus:  pp.Uranus,
	Neptune: pp.Neptune,
}

// MeeusEphemeris computes positions with the algorithms of Meeus,
// "Astronomical Algorithms". Output is in AU in the ecliptic frame.
type MeeusEphemeris struct {
	vsop map[Body]*pp.V87Planet
}

// NewMeeusEphemeris loads VSOP87 tables when cfg names a directory. A
// missing file is an error; an empty directory setting is not.
func NewMeeusEphemeris(cfg Config, logger *slog.Logger) (*MeeusEphemeris, error) {
	e := &MeeusEphemeris{}
	if cfg.VSOP87Dir == "" {
		logger.Info("ephemeris using mean elements", "source", "keplerian")
		return e, nil
	}

	e.vsop = make(map[Body]*pp.V87Planet, len(vsopIndex))
	for body, idx := range vsopIndex {
		planet, err := pp.LoadPlanetPath(idx, cfg.VSOP87Dir)
		if err != nil {
			return nil, fmt.Errorf("loading VSOP87 for %s from %s: %w", body, cfg.VSOP87Dir, err)
		}
		e.vsop[body] = planet
	}
	logger.Info("ephemeris using VSOP87", "dir", cfg.VSOP87Dir, "planets", len(e.vsop))
	return e, nil
}

// UnitKm reports AU.
func (e *MeeusEphemeris) UnitKm() float64 { return transform.KmPerAU }

// Heliocentric returns the body's heliocentric ecliptic position in AU.
func (e *MeeusEphemeris) Heliocentric(body Body, t time.Time) (r3.Vec, error) {
	jde := julian.TimeToJD(t.UTC())

	switch body {
	case Sun:
		return r3.Vec{}, nil
	case Moon:
		return r3.Vec{}, fmt.Errorf("moon is geocentric: %w", ErrUnknownBody)
	case Pluto:
		l, b, r := pluto.Heliocentric(jde)
		return spherical(l, b, r), nil
	}

	if planet, ok := e.vsop[body]; ok {
		l, b, r := planet.Position2000(jde)
		return spherical(l, b, r), nil
	}

	if body == Earth {
		// The Sun's geocentric longitude, turned around.
		T := base.J2000Century(jde)
		s, _ := solar.True(T)
		r := solar.Radius(T)
		return spherical(s+unit.AngleFromDeg(180), 0, r), nil
	}

	orbit, ok := kepler.ReferenceOrbitByID(body.String())
	if !ok {
		return r3.Vec{}, fmt.Errorf("%s: %w", body, ErrUnknownBody)
	}
	st := kepler.Position(orbit.ElementsAt(t), t)
	metrics.ObserveKeplerSolve(st.Solution.Iterations, st.Solution.Converged)
	return st.Position, nil
}

// GeocentricMoon returns the Moon relative to Earth in AU, ecliptic of date.
func (e *MeeusEphemeris) GeocentricMoon(t time.Time) (r3.Vec, error) {
	lambda, beta, distKm := moonposition.Position(julian.TimeToJD(t.UTC()))
	if math.IsNaN(distKm) || distKm <= 0 {
		return r3.Vec{}, fmt.Errorf("moon distance %g km out of range", distKm)
	}
	return spherical(lambda, beta, distKm/transform.KmPerAU), nil
}

// spherical converts ecliptic longitude, latitude and radius to Cartesian.
func spherical(l, b unit.Angle, r float64) r3.Vec {
	sb, cb := math.Sincos(b.Rad())
	sl, cl := math.Sincos(l.Rad())
	return r3.Vec{X: r * cb * cl, Y: r * cb * sl, Z: r * sb}
}
