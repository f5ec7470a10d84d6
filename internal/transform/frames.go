// Package transform provides the coordinate utilities shared by every
// position producer: scene scaling, the perifocal→frame rotation, and the
// Earth frames (TEME, Earth-fixed, geographic, topocentric).
//
// TEME → Earth-fixed uses a GMST-only rotation (TEME → PEF ≈ ECEF). Polar
// motion and the equation of equinoxes are ignored, which is well below the
// resolution of any scene.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// StateTEME is a position/velocity pair in the TEME frame (km, km/s).
type StateTEME struct {
	Position r3.Vec
	Velocity r3.Vec
}

// StateECEF is a position/velocity pair in the Earth-fixed frame (km, km/s).
type StateECEF struct {
	Position r3.Vec
	Velocity r3.Vec
}

// TEMEToECEF transforms a TEME state to Earth-fixed at the given UTC time.
func TEMEToECEF(teme StateTEME, t time.Time) StateECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST transforms TEME to Earth-fixed using a precomputed GMST
// angle (radians), so a batch propagated to one instant computes GMST once.
//
//	r_ECEF = R3(θ)·r_TEME
//	v_ECEF = R3(θ)·v_TEME − ω × r_ECEF
func TEMEToECEFWithGMST(teme StateTEME, gmst float64) StateECEF {
	pos := InertialToFixed(teme.Position, gmst)
	vel := InertialToFixed(teme.Velocity, gmst)

	// ω × r = [-ω·y, ω·x, 0]
	vel.X += OmegaEarth * pos.Y
	vel.Y -= OmegaEarth * pos.X

	return StateECEF{Position: pos, Velocity: vel}
}

// ValidateECEF reports whether an Earth-fixed position (km) is physically
// reasonable for an Earth-orbiting satellite: finite and between 6200 km and
// 50000 km from the geocentre.
func ValidateECEF(pos r3.Vec) bool {
	if !IsFinite(pos) {
		return false
	}
	mag := r3.Norm(pos)
	return mag >= 6200.0 && mag <= 50000.0
}

// IsFinite reports whether every component of v is neither NaN nor ±Inf.
func IsFinite(v r3.Vec) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
