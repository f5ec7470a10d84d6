package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// J2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const J2000 = 2451545.0

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// EarthRadiusKm is the mean Earth radius used for spherical geographic projection.
const EarthRadiusKm = 6371.0

// JulianDate converts a time.Time (UTC) to Julian Date.
// Uses the standard astronomical algorithm valid for dates after March 1, 4801 BC.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	dayFrac := (float64(t.Hour()) +
		float64(t.Minute())/60.0 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600.0) / 24.0

	// Jan/Feb count as months 13/14 of the previous year.
	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5 + dayFrac
}

// DaysSinceJ2000 returns the (fractional) days elapsed since J2000.0.
func DaysSinceJ2000(t time.Time) float64 {
	return JulianDate(t) - J2000
}

// GMST calculates Greenwich Mean Sidereal Time in radians for a given UTC time.
// Uses the IAU-82 model as described in Vallado "Fundamentals of Astrodynamics":
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)*T + 0.093104*T² - 6.2e-6*T³
//
// where T is Julian centuries of UT1 from J2000.0 and the result is in seconds of time.
func GMST(t time.Time) float64 {
	tUT1 := DaysSinceJ2000(t) / 36525.0

	// 876600h = 3155760000 seconds.
	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	return gmstSec / 86400.0 * 2.0 * math.Pi
}

// EarthRotationAngle returns the IERS Earth Rotation Angle in radians, a
// linear function of the days elapsed since J2000.0. The simplified
// satellite propagator uses it to go from inertial to Earth-fixed axes.
func EarthRotationAngle(t time.Time) float64 {
	d := DaysSinceJ2000(t)
	// Whole days are whole turns; only the fractional day adds to the angle.
	turns := 0.7790572732640 + 0.00273781191135448*d + (d - math.Floor(d))
	return NormalizeAngle(2 * math.Pi * turns)
}

// InertialToFixed rotates an inertial vector into Earth-fixed axes given the
// rotation angle θ (rad) of the prime meridian: r_fixed = R3(θ)·r_inertial.
func InertialToFixed(v r3.Vec, theta float64) r3.Vec {
	s, c := math.Sincos(theta)
	return r3.Vec{
		X: v.X*c + v.Y*s,
		Y: -v.X*s + v.Y*c,
		Z: v.Z,
	}
}

// NormalizeAngle wraps an angle in radians into [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(deg float64) float64 { return deg * math.Pi / 180.0 }

// Rad2Deg converts radians to degrees.
func Rad2Deg(rad float64) float64 { return rad * 180.0 / math.Pi }
