package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"
)

// TestJulianDate verifies our Julian Date calculation against known values.
func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{"J2000.0 epoch", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 2451545.0},
		{"Unix epoch", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 2440587.5},
		// Vallado Example 3-15: April 6, 2004, 07:51:28.386 UTC
		{"Vallado example date", time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC), 2453101.827411875},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			if diff := math.Abs(got - tt.expected); diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

// TestJulianDateIgnoresZone verifies non-UTC inputs are converted first.
func TestJulianDateIgnoresZone(t *testing.T) {
	utc := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("UTC+5", 5*3600))
	if JulianDate(utc) != JulianDate(local) {
		t.Errorf("JulianDate differs by zone: %v vs %v", JulianDate(utc), JulianDate(local))
	}
}

// TestGMST validates GMST against go-satellite's GSTimeFromDate, which uses
// the same IAU-82 model.
func TestGMST(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
	}{
		{"J2000.0 epoch", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"Vallado example date", time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC)},
		{"recent date 2026", time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			our := GMST(tt.time)
			ref := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)
			// 1e-8 rad ≈ 0.002 arcsec.
			if diff := math.Abs(our - ref); diff > 1e-8 {
				t.Errorf("GMST(%v) = %.12f rad, go-satellite = %.12f rad (diff=%.2e)", tt.time, our, ref, diff)
			}
		})
	}
}

// TestEarthRotationAngle checks ERA against its J2000 value and its
// closeness to GMST (they differ only by accumulated precession).
func TestEarthRotationAngle(t *testing.T) {
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	want := 2 * math.Pi * 0.7790572732640
	if got := EarthRotationAngle(j2000); math.Abs(got-want) > 1e-9 {
		t.Errorf("ERA(J2000) = %.12f, want %.12f", got, want)
	}

	for _, ts := range []time.Time{
		j2000,
		time.Date(2022, 11, 16, 6, 47, 0, 0, time.UTC),
		time.Date(2026, 10, 19, 18, 30, 0, 0, time.UTC),
	} {
		era := EarthRotationAngle(ts)
		gmst := GMST(ts)
		diff := math.Abs(math.Remainder(era-gmst, 2*math.Pi))
		if diff > 0.01 {
			t.Errorf("%v: |ERA-GMST| = %.5f rad, want < 0.01", ts, diff)
		}
	}
}

// TestEarthRotationAngleSiderealDay verifies the angle returns to itself
// after one sidereal day.
func TestEarthRotationAngleSiderealDay(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	siderealDay := time.Duration(86164.0905 * float64(time.Second))
	a := EarthRotationAngle(start)
	b := EarthRotationAngle(start.Add(siderealDay))
	if diff := math.Abs(math.Remainder(a-b, 2*math.Pi)); diff > 1e-5 {
		t.Errorf("ERA drift over one sidereal day = %.3e rad", diff)
	}
}

// TestTEMEToECEF validates the TEME→ECEF transform against go-satellite's
// ECIToECEF using the same GMST.
func TestTEMEToECEF(t *testing.T) {
	tests := []struct {
		name string
		teme StateTEME
		time time.Time
	}{
		{
			// Vallado "Fundamentals of Astrodynamics" Example 3-15
			name: "Vallado example 3-15",
			teme: StateTEME{
				Position: r3.Vec{X: 5094.18016, Y: 6127.64465, Z: 6380.34453},
				Velocity: r3.Vec{X: -4.746131487, Y: 0.786598499, Z: 5.531931288},
			},
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			name: "LEO equatorial",
			teme: StateTEME{Position: r3.Vec{X: 6778.0}, Velocity: r3.Vec{Y: 7.5}},
			time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "LEO polar",
			teme: StateTEME{Position: r3.Vec{Z: 6978.0}, Velocity: r3.Vec{X: 7.4}},
			time: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			ours := TEMEToECEFWithGMST(tt.teme, gmst)
			ref := satellite.ECIToECEF(
				satellite.Vector3{X: tt.teme.Position.X, Y: tt.teme.Position.Y, Z: tt.teme.Position.Z},
				gmst,
			)

			// 1 m tolerance.
			const tolerance = 1e-3
			d := r3.Sub(ours.Position, r3.Vec{X: ref.X, Y: ref.Y, Z: ref.Z})
			if math.Abs(d.X) > tolerance || math.Abs(d.Y) > tolerance || math.Abs(d.Z) > tolerance {
				t.Errorf("position mismatch: ours %+v, ref %+v", ours.Position, ref)
			}
			if !ValidateECEF(ours.Position) {
				t.Errorf("ECEF position failed validation: %+v", ours.Position)
			}
		})
	}
}

// TestTEMEToECEFVelocity verifies the velocity transform includes Earth rotation correction.
func TestTEMEToECEFVelocity(t *testing.T) {
	teme := StateTEME{Position: r3.Vec{X: 6778.0}, Velocity: r3.Vec{Y: 7.5}}

	ecef := TEMEToECEFWithGMST(teme, 0)

	if math.Abs(ecef.Position.X-6778.0) > 1e-9 {
		t.Errorf("X position: got %.3f, want 6778.0", ecef.Position.X)
	}
	// ω·R = 7.292115e-5 · 6778 ≈ 0.4943 km/s.
	wantVY := 7.5 - OmegaEarth*6778.0
	if math.Abs(ecef.Velocity.Y-wantVY) > 1e-9 {
		t.Errorf("VY: got %.6f km/s, want %.6f km/s", ecef.Velocity.Y, wantVY)
	}
}

// TestValidateECEF tests the ECEF position validation function.
func TestValidateECEF(t *testing.T) {
	tests := []struct {
		name  string
		pos   r3.Vec
		valid bool
	}{
		{"LEO", r3.Vec{X: 6778}, true},
		{"GEO", r3.Vec{X: 42164}, true},
		{"too low", r3.Vec{X: 5000}, false},
		{"too high", r3.Vec{X: 60000}, false},
		{"NaN", r3.Vec{X: math.NaN()}, false},
		{"Inf", r3.Vec{X: math.Inf(1)}, false},
		{"zero", r3.Vec{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateECEF(tt.pos); got != tt.valid {
				t.Errorf("ValidateECEF(%v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}

func TestInertialToFixedQuarterTurn(t *testing.T) {
	got := InertialToFixed(r3.Vec{X: 1}, math.Pi/2)
	if math.Abs(got.X) > 1e-12 || math.Abs(got.Y+1) > 1e-12 {
		t.Errorf("InertialToFixed(x̂, π/2) = %+v, want (0,-1,0)", got)
	}
}
