// Package kepler propagates bodies on fixed two-body ellipses around the Sun:
// comets and the idealised planet orbits drawn as reference curves.
//
// Distances are in AU, time in days and angles in degrees at the API
// boundary (radians internally), following the Gaussian gravitational
// constant convention.
package kepler

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// GaussK is the Gaussian gravitational constant (AU^3/2 / day).
	GaussK = 0.01720209895
	// GM is the Sun's gravitational parameter in AU³/day².
	GM = GaussK * GaussK

	kmPerAU = 149597870.7
	// AUPerDayToKmPerSec converts a speed in AU/day to km/s.
	AUPerDayToKmPerSec = kmPerAU / 86400.0
)

// ErrUnboundOrbit is returned for parabolic or hyperbolic elements.
var ErrUnboundOrbit = errors.New("eccentricity must be below 1 for an elliptical orbit")

// Elements are classical orbital elements of a heliocentric ellipse.
// A is in AU; I, Node, ArgPeri and M0 are in degrees; M0 is the mean anomaly
// at Epoch.
type Elements struct {
	A       float64
	E       float64
	I       float64
	Node    float64
	ArgPeri float64
	M0      float64
	Epoch   time.Time
}

// Validate reports whether the elements describe a closed orbit.
func (el Elements) Validate() error {
	if !(el.E < 1) {
		return fmt.Errorf("e=%g: %w", el.E, ErrUnboundOrbit)
	}
	if el.E < 0 {
		return fmt.Errorf("negative eccentricity %g", el.E)
	}
	if !(el.A > 0) || math.IsInf(el.A, 0) {
		return fmt.Errorf("semi-major axis must be positive and finite, got %g", el.A)
	}
	return nil
}

// MeanMotion returns n = sqrt(GM/a³) in radians per day.
func (el Elements) MeanMotion() float64 {
	return math.Sqrt(GM / (el.A * el.A * el.A))
}

// Period returns the orbital period.
func (el Elements) Period() time.Duration {
	days := 2 * math.Pi / el.MeanMotion()
	return time.Duration(days * float64(24*time.Hour))
}

// PeriodYears returns the orbital period in Julian years.
func (el Elements) PeriodYears() float64 {
	return 2 * math.Pi / el.MeanMotion() / 365.25
}

// Perihelion returns the closest approach distance a(1-e) in AU.
func (el Elements) Perihelion() float64 { return el.A * (1 - el.E) }

// Aphelion returns the farthest distance a(1+e) in AU.
func (el Elements) Aphelion() float64 { return el.A * (1 + el.E) }

// MeanAnomaly returns the mean anomaly at t in radians, normalised to [0, 2π).
func (el Elements) MeanAnomaly(t time.Time) float64 {
	m := deg2rad(el.M0) + el.MeanMotion()*daysBetween(el.Epoch, t)
	return normalize(m)
}

// daysBetween returns (to - from) in days without the ±292 year limit of
// time.Duration, which long-period comets exceed.
func daysBetween(from, to time.Time) float64 {
	secs := float64(to.Unix() - from.Unix())
	nanos := float64(to.Nanosecond() - from.Nanosecond())
	return (secs + nanos/1e9) / 86400.0
}

func normalize(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
