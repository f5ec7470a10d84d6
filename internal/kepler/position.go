package kepler

import (
	"math"
	"time"

	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// MaxPathRadius bounds orbit-path points (AU); anything farther is dropped.
const MaxPathRadius = 1000.0

// State is a body's heliocentric state at one instant.
type State struct {
	Position         r3.Vec  // AU, ecliptic frame
	Radius           float64 // AU
	Direction        r3.Vec  // unit vector Sun → body
	Speed            float64 // AU/day
	TrueAnomaly      float64 // radians
	EccentricAnomaly float64 // radians
	Solution         Solution
}

// SpeedKmPerSec returns the orbital speed in km/s.
func (s State) SpeedKmPerSec() float64 { return s.Speed * AUPerDayToKmPerSec }

// Position returns the state of the body at time t. The result for e ≥ 1 is
// unspecified; callers validate elements at load time.
func Position(el Elements, t time.Time) State {
	M := el.MeanAnomaly(t)
	sol := SolveKepler(M, el.E)

	nu := TrueFromEccentric(sol.E, el.E)
	r := el.A * (1 - el.E*math.Cos(sol.E))

	st := stateAt(el, nu, r)
	st.EccentricAnomaly = sol.E
	st.Solution = sol
	return st
}

// PositionAtTrueAnomaly evaluates the orbit at true anomaly nu (radians).
func PositionAtTrueAnomaly(el Elements, nu float64) State {
	st := stateAt(el, nu, radiusAt(el, nu))
	st.EccentricAnomaly = EccentricFromTrue(nu, el.E)
	return st
}

func radiusAt(el Elements, nu float64) float64 {
	return el.A * (1 - el.E*el.E) / (1 + el.E*math.Cos(nu))
}

func stateAt(el Elements, nu, r float64) State {
	sinNu, cosNu := math.Sincos(nu)
	pos := transform.PerifocalToFrame(
		r*cosNu, r*sinNu,
		deg2rad(el.Node), deg2rad(el.I), deg2rad(el.ArgPeri),
	)

	var dir r3.Vec
	if r > 0 {
		dir = r3.Unit(pos)
	}

	return State{
		Position:    pos,
		Radius:      r,
		Direction:   dir,
		Speed:       VisViva(el.A, r),
		TrueAnomaly: normalize(nu),
	}
}

// VisViva returns the orbital speed (AU/day) at distance r on an orbit of
// semi-major axis a.
func VisViva(a, r float64) float64 {
	return math.Sqrt(GM * (2/r - 1/a))
}

// OrbitPath samples n points at evenly spaced true anomalies in [0, 2π).
// Points with a negative, non-finite or implausibly large radius are dropped.
func OrbitPath(el Elements, n int) []r3.Vec {
	if n <= 0 {
		return nil
	}
	pts := make([]r3.Vec, 0, n)
	for k := 0; k < n; k++ {
		nu := 2 * math.Pi * float64(k) / float64(n)
		r := radiusAt(el, nu)
		if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) || r > MaxPathRadius {
			continue
		}
		pts = append(pts, stateAt(el, nu, r).Position)
	}
	return pts
}
