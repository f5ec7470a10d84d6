package kepler

import "math"

const (
	solverTolerance     = 1e-8
	solverMaxIterations = 50
)

// Solution is the result of solving Kepler's equation.
type Solution struct {
	E          float64 // eccentric anomaly, radians
	Iterations int
	Converged  bool
}

// SolveKepler solves M = E - e·sin(E) for E by Newton-Raphson.
// The start value is M for e < 0.8 and π otherwise, which keeps the
// iteration from overshooting at high eccentricity. It stops when the
// correction drops below 1e-8 or after 50 steps and never fails; a
// non-converged result still carries the last estimate.
func SolveKepler(M, e float64) Solution {
	E := M
	if e >= 0.8 {
		E = math.Pi
	}

	for i := 1; i <= solverMaxIterations; i++ {
		sinE, cosE := math.Sincos(E)
		delta := (E - e*sinE - M) / (1 - e*cosE)
		E -= delta
		if math.Abs(delta) < solverTolerance {
			return Solution{E: E, Iterations: i, Converged: true}
		}
	}
	return Solution{E: E, Iterations: solverMaxIterations}
}

// TrueFromEccentric converts eccentric anomaly to true anomaly (radians).
func TrueFromEccentric(E, e float64) float64 {
	return 2 * math.Atan2(math.Sqrt(1+e)*math.Sin(E/2), math.Sqrt(1-e)*math.Cos(E/2))
}

// EccentricFromTrue converts true anomaly to eccentric anomaly (radians).
func EccentricFromTrue(nu, e float64) float64 {
	return 2 * math.Atan2(math.Sqrt(1-e)*math.Sin(nu/2), math.Sqrt(1+e)*math.Cos(nu/2))
}
