package transform

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewObserverPosition_ECEFMagnitude(t *testing.T) {
	// WGS-84 equatorial radius is 6378.137 km.
	obs := NewObserverPosition(0, 0, 0)
	if mag := r3.Norm(obs.ECEF); math.Abs(mag-6378.137) > 1e-3 {
		t.Errorf("equatorial observer ECEF magnitude = %.4f km, want ~6378.137 km", mag)
	}

	// Polar radius ~6356.752 km.
	pole := NewObserverPosition(90, 0, 0)
	if mag := r3.Norm(pole.ECEF); math.Abs(mag-6356.7523) > 1e-3 {
		t.Errorf("polar observer ECEF magnitude = %.4f km, want ~6356.752 km", mag)
	}
}

func TestECEFToGeodeticRoundTrip(t *testing.T) {
	for _, c := range []struct{ lat, lon, alt float64 }{
		{40.7128, -74.006, 0.01},
		{-33.86, 151.21, 0.05},
		{51.64, 100, 420},
	} {
		obs := NewObserverPosition(c.lat, c.lon, c.alt)
		geo := ECEFToGeodetic(obs.ECEF)
		if math.Abs(geo.LatDeg-c.lat) > 1e-7 || math.Abs(geo.LonDeg-c.lon) > 1e-7 || math.Abs(geo.AltKm-c.alt) > 1e-6 {
			t.Errorf("round trip %v -> %+v", c, geo)
		}
	}
}

func TestSphericalGeographic(t *testing.T) {
	p := r3.Vec{X: 0, Y: EarthRadiusKm + 400, Z: 0}
	geo := SphericalGeographic(p)
	if math.Abs(geo.LatDeg) > 1e-12 || math.Abs(geo.LonDeg-90) > 1e-12 || math.Abs(geo.AltKm-400) > 1e-9 {
		t.Errorf("SphericalGeographic = %+v, want lat 0 lon 90 alt 400", geo)
	}
	north := SphericalGeographic(r3.Vec{Z: EarthRadiusKm + 10})
	if math.Abs(north.LatDeg-90) > 1e-12 {
		t.Errorf("pole latitude = %v, want 90", north.LatDeg)
	}
}

func TestECEFToLookAngles_DirectlyOverhead(t *testing.T) {
	obs := NewObserverPosition(0, 0, 0)
	sat := r3.Add(obs.ECEF, r3.Vec{X: 400})

	la := ECEFToLookAngles(obs, sat)
	if math.Abs(la.ElevationDeg-90) > 0.01 {
		t.Errorf("elevation = %.4f°, want 90°", la.ElevationDeg)
	}
	if math.Abs(la.RangeKm-400) > 1e-6 {
		t.Errorf("range = %.4f km, want 400 km", la.RangeKm)
	}
}

func TestECEFToLookAngles_NorthHorizon(t *testing.T) {
	// Target far to the north along the local horizon of an equatorial observer.
	obs := NewObserverPosition(0, 0, 0)
	sat := r3.Add(obs.ECEF, r3.Vec{Z: 1000})

	la := ECEFToLookAngles(obs, sat)
	if math.Abs(la.ElevationDeg) > 1e-6 {
		t.Errorf("elevation = %.6f°, want 0°", la.ElevationDeg)
	}
	if la.AzimuthDeg > 1e-6 && la.AzimuthDeg < 360-1e-6 {
		t.Errorf("azimuth = %.6f°, want 0° (north)", la.AzimuthDeg)
	}
}
