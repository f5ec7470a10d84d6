package propagation

import (
	"math"
	"time"

	"github.com/star/orrery/internal/tle"
	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// GMEarth is Earth's gravitational parameter (km³/s²).
const GMEarth = 398600.4418

// SimplePropagator places satellites on a fixed Kepler ellipse built from
// the mean elements. Mean anomaly is used directly as true anomaly, so it is
// only accurate for near-circular orbits; there is no drag or J2.
//
// It is total: NaN elements yield NaN outputs and it never errors.
type SimplePropagator struct{}

// Propagate returns the state for el at t.
func (SimplePropagator) Propagate(el tle.Elements, t time.Time) SatState {
	n := el.MeanMotion * 2 * math.Pi / 86400.0 // rad/s
	a := math.Cbrt(GMEarth / (n * n))

	m := transform.Deg2Rad(el.MeanAnomaly) + n*secondsSince(el.Epoch, t)
	nu := math.Mod(m, 2*math.Pi)
	if nu < 0 {
		nu += 2 * math.Pi
	}

	e := el.Eccentricity
	r := a * (1 - e*e) / (1 + e*math.Cos(nu))
	sinNu, cosNu := math.Sincos(nu)

	eci := transform.PerifocalToFrame(
		r*cosNu, r*sinNu,
		transform.Deg2Rad(el.RAAN),
		transform.Deg2Rad(el.Inclination),
		transform.Deg2Rad(el.ArgPerigee),
	)
	ecef := transform.InertialToFixed(eci, transform.EarthRotationAngle(t))
	geo := transform.SphericalGeographic(ecef)

	return SatState{
		Time:      t,
		Latitude:  geo.LatDeg,
		Longitude: geo.LonDeg,
		Altitude:  geo.AltKm,
		Speed:     math.Sqrt(GMEarth / a),
		ECI:       eci,
		ECEF:      ecef,
		Scene:     transform.VecKmToScene(eci),
	}
}

// Period returns one orbital period for el. It is zero for a non-positive
// or NaN mean motion.
func Period(el tle.Elements) time.Duration {
	if !(el.MeanMotion > 0) {
		return 0
	}
	return time.Duration(86400.0 / el.MeanMotion * float64(time.Second))
}

// GroundPoint is one sub-satellite point.
type GroundPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude_km"`
}

// GroundTrack samples steps points evenly over one orbital period starting
// at start. An unusable mean motion or steps ≤ 0 yields no points.
func (p SimplePropagator) GroundTrack(el tle.Elements, start time.Time, steps int) []GroundPoint {
	period := Period(el)
	if steps <= 0 || period <= 0 {
		return nil
	}
	dt := period / time.Duration(steps)
	pts := make([]GroundPoint, 0, steps)
	for i := 0; i < steps; i++ {
		t := start.Add(time.Duration(i) * dt)
		st := p.Propagate(el, t)
		pts = append(pts, GroundPoint{Time: t, Latitude: st.Latitude, Longitude: st.Longitude, Altitude: st.Altitude})
	}
	return pts
}

// simpleSource binds elements to SimplePropagator as a StateSource.
type simpleSource struct {
	el tle.Elements
}

func (s simpleSource) StateAt(t time.Time) (SatState, error) {
	return SimplePropagator{}.Propagate(s.el, t), nil
}

func secondsSince(from, to time.Time) float64 {
	return float64(to.Unix()-from.Unix()) + float64(to.Nanosecond()-from.Nanosecond())/1e9
}

func finite(v r3.Vec) bool { return transform.IsFinite(v) }
