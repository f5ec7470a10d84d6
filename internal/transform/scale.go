package transform

import "gonum.org/v1/gonum/spatial/r3"

// KmPerAU is one astronomical unit in kilometres (IAU 2012).
const KmPerAU = 149597870.7

// SceneUnitsPerAU is the fixed scene scale. Every producer of positions
// converts through it so heliocentric and geocentric outputs can be added.
const SceneUnitsPerAU = 100.0

// AUToScene converts a distance in AU to scene units.
func AUToScene(au float64) float64 { return au * SceneUnitsPerAU }

// SceneToAU converts scene units to AU.
func SceneToAU(s float64) float64 { return s / SceneUnitsPerAU }

// KmToScene converts a distance in km to scene units.
func KmToScene(km float64) float64 { return km / KmPerAU * SceneUnitsPerAU }

// SceneToKm converts scene units to km.
func SceneToKm(s float64) float64 { return s / SceneUnitsPerAU * KmPerAU }

// VecAUToScene scales an AU vector into scene units.
func VecAUToScene(v r3.Vec) r3.Vec { return r3.Scale(SceneUnitsPerAU, v) }

// VecKmToScene scales a km vector into scene units.
func VecKmToScene(v r3.Vec) r3.Vec { return r3.Scale(SceneUnitsPerAU/KmPerAU, v) }
