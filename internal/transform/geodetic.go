package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// WGS-84 ellipsoid parameters (km).
const (
	wgs84A  = 6378.137
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// GeodeticPoint holds a geographic position: latitude/longitude in degrees,
// altitude in km.
type GeodeticPoint struct {
	LatDeg, LonDeg, AltKm float64
}

// SphericalGeographic projects an Earth-fixed position (km) onto a spherical
// Earth of radius EarthRadiusKm. This is the projection used for scene
// markers and ground tracks.
func SphericalGeographic(p r3.Vec) GeodeticPoint {
	r := r3.Norm(p)
	return GeodeticPoint{
		LatDeg: Rad2Deg(math.Asin(p.Z / r)),
		LonDeg: Rad2Deg(math.Atan2(p.Y, p.X)),
		AltKm:  r - EarthRadiusKm,
	}
}

// ECEFToGeodetic converts an Earth-fixed position (km) to WGS-84 geodetic
// coordinates using the iterative Bowring method. Converges in 2-3
// iterations for Earth orbits.
func ECEFToGeodetic(pos r3.Vec) GeodeticPoint {
	lon := math.Atan2(pos.Y, pos.X)
	p := math.Hypot(pos.X, pos.Y)

	lat := math.Atan2(pos.Z, p*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(pos.Z+wgs84E2*n*sinLat, p)
	}

	sinLat, cosLat := math.Sincos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		alt = math.Abs(pos.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return GeodeticPoint{
		LatDeg: Rad2Deg(lat),
		LonDeg: Rad2Deg(lon),
		AltKm:  alt,
	}
}

// ObserverPosition is a ground observer with its Earth-fixed position
// precomputed once so it can be reused across many satellite lookups.
type ObserverPosition struct {
	LatRad, LonRad float64
	AltKm          float64
	ECEF           r3.Vec // km
}

// NewObserverPosition creates an observer from geodetic coordinates
// (degrees, km above the WGS-84 ellipsoid).
func NewObserverPosition(latDeg, lonDeg, altKm float64) ObserverPosition {
	lat := Deg2Rad(latDeg)
	lon := Deg2Rad(lonDeg)

	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ObserverPosition{
		LatRad: lat,
		LonRad: lon,
		AltKm:  altKm,
		ECEF: r3.Vec{
			X: (n + altKm) * cosLat * cosLon,
			Y: (n + altKm) * cosLat * sinLon,
			Z: (n*(1-wgs84E2) + altKm) * sinLat,
		},
	}
}

// LookAngles holds azimuth, elevation, and range from observer to target.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
}

// ECEFToLookAngles computes azimuth, elevation and range from an observer to
// an Earth-fixed target (km), via the SEZ topocentric rotation (Vallado §4.4).
func ECEFToLookAngles(obs ObserverPosition, target r3.Vec) LookAngles {
	rho := r3.Sub(target, obs.ECEF)

	sinLat, cosLat := math.Sincos(obs.LatRad)
	sinLon, cosLon := math.Sincos(obs.LonRad)

	south := sinLat*cosLon*rho.X + sinLat*sinLon*rho.Y - cosLat*rho.Z
	east := -sinLon*rho.X + cosLon*rho.Y
	zenith := cosLat*cosLon*rho.X + cosLat*sinLon*rho.Y + sinLat*rho.Z

	rng := math.Sqrt(south*south + east*east + zenith*zenith)

	// North is -South in SEZ.
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   Rad2Deg(az),
		ElevationDeg: Rad2Deg(math.Asin(zenith / rng)),
		RangeKm:      rng,
	}
}
