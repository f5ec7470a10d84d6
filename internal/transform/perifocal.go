package transform

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rotation313 returns the perifocal → parent-frame direction cosine matrix
// for longitude of ascending node Ω, inclination i and argument of periapsis
// ω (radians): Q = R3(−Ω)·R1(−i)·R3(−ω). Right-handed, angles applied in
// that order.
func Rotation313(node, incl, argPeri float64) *mat.Dense {
	sO, cO := math.Sincos(node)
	si, ci := math.Sincos(incl)
	sw, cw := math.Sincos(argPeri)
	return mat.NewDense(3, 3, []float64{
		cO*cw - sO*sw*ci, -cO*sw - sO*cw*ci, sO * si,
		sO*cw + cO*sw*ci, -sO*sw + cO*cw*ci, -cO * si,
		sw * si, cw * si, ci,
	})
}

// PerifocalToFrame rotates orbital-plane coordinates (xOrb along periapsis,
// yOrb 90° ahead in the direction of motion) into the parent frame. Both the
// Kepler and the satellite propagators go through this one routine.
func PerifocalToFrame(xOrb, yOrb, node, incl, argPeri float64) r3.Vec {
	q := Rotation313(node, incl, argPeri)
	var out mat.VecDense
	out.MulVec(q, mat.NewVecDense(3, []float64{xOrb, yOrb, 0}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}
