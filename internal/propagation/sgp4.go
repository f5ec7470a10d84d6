package propagation

import (
	"fmt"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/star/orrery/internal/tle"
	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go, explicit TEME output, and ECIToECEF/GSTimeFromDate for
// cross-validation. Propagate takes the Satellite by value so SGP4 error
// codes are not visible to the caller; failures are detected from NaN/Inf
// and implausible position magnitudes instead.

// SGP4Propagator wraps go-satellite for a single satellite.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
}

// NewSGP4Propagator initialises SGP4 from TLE lines. The lines are validated
// first because go-satellite calls log.Fatal on malformed input.
func NewSGP4Propagator(line1, line2 string, noradID int) (*SGP4Propagator, error) {
	if err := tle.ValidateLines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", noradID, err)
	}

	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, noradID: noradID}, nil
}

// Propagate returns the TEME state (km, km/s) at t. The SGP4 library only
// takes whole seconds, so a fractional instant is interpolated linearly
// between the two surrounding seconds.
func (p *SGP4Propagator) Propagate(t time.Time) (transform.StateTEME, error) {
	t = t.UTC()
	whole := t.Truncate(time.Second)
	st := p.propagateSecond(whole)
	if frac := t.Sub(whole).Seconds(); frac > 0 {
		next := p.propagateSecond(whole.Add(time.Second))
		st = transform.StateTEME{
			Position: r3.Add(st.Position, r3.Scale(frac, r3.Sub(next.Position, st.Position))),
			Velocity: r3.Add(st.Velocity, r3.Scale(frac, r3.Sub(next.Velocity, st.Velocity))),
		}
	}
	if !finite(st.Position) {
		return transform.StateTEME{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: output is NaN/Inf", p.noradID)
	}
	// Between ~6200 km and ~50000 km from the geocentre.
	if mag := r3.Norm(st.Position); mag < 6200.0 || mag > 50000.0 {
		return transform.StateTEME{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: unreasonable position magnitude %.1f km", p.noradID, mag)
	}
	return st, nil
}

func (p *SGP4Propagator) propagateSecond(t time.Time) transform.StateTEME {
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	return transform.StateTEME{
		Position: r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity: r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z},
	}
}

// StateAt returns the satellite state at t with WGS-84 geodetic coordinates.
func (p *SGP4Propagator) StateAt(t time.Time) (SatState, error) {
	teme, err := p.Propagate(t)
	if err != nil {
		return SatState{}, err
	}
	return stateFromTEME(teme, t, transform.GMST(t)), nil
}

func stateFromTEME(teme transform.StateTEME, t time.Time, gmst float64) SatState {
	ecef := transform.TEMEToECEFWithGMST(teme, gmst)
	geo := transform.ECEFToGeodetic(ecef.Position)

	return SatState{
		Time:      t,
		Latitude:  geo.LatDeg,
		Longitude: geo.LonDeg,
		Altitude:  geo.AltKm,
		Speed:     r3.Norm(teme.Velocity),
		ECI:       teme.Position,
		ECEF:      ecef.Position,
		Scene:     transform.VecKmToScene(teme.Position),
	}
}
