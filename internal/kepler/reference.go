package kepler

import (
	"fmt"
	"math"
	"time"
)

// ReferenceOrbit is an idealised planet orbit. Elements holds the J2000
// mean elements used to draw orbit curves; ElementsAt applies the secular
// rates for an approximate position at other dates.
type ReferenceOrbit struct {
	ID       string
	Name     string
	Elements Elements

	rates elementRates
}

// elementRates are per-Julian-century rates of a, e, i, L, ϖ and Ω.
type elementRates struct {
	A, E, I, L, Varpi, Node float64
}

var j2000 = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

// fromLongitudes builds elements from the mean longitude L and longitude of
// perihelion ϖ, the form in which planetary elements are usually tabulated.
func fromLongitudes(a, e, i, L, varpi, node float64) Elements {
	return Elements{
		A: a, E: e, I: i, Node: node,
		ArgPeri: varpi - node,
		M0:      L - varpi,
		Epoch:   j2000,
	}
}

// Mean elements at J2000 (Standish, "Keplerian Elements for Approximate
// Positions of the Major Planets").
// Valid 1800–2050.
var referenceOrbits = []ReferenceOrbit{
	{"mercury", "Mercury", fromLongitudes(0.38709927, 0.20563593, 7.00497902, 252.25032350, 77.45779628, 48.33076593),
		elementRates{0.00000037, 0.00001906, -0.00594749, 149472.67411175, 0.16047689, -0.12534081}},
	{"venus", "Venus", fromLongitudes(0.72333566, 0.00677672, 3.39467605, 181.97909950, 131.60246718, 76.67984255),
		elementRates{0.00000390, -0.00004107, -0.00078890, 58517.81538729, 0.00268329, -0.27769418}},
	{"earth", "Earth", fromLongitudes(1.00000261, 0.01671123, -0.00001531, 100.46457166, 102.93768193, 0.0),
		elementRates{0.00000562, -0.00004392, -0.01294668, 35999.37244981, 0.32327364, 0.0}},
	{"mars", "Mars", fromLongitudes(1.52371034, 0.09339410, 1.84969142, -4.55343205, -23.94362959, 49.55953891),
		elementRates{0.00001847, 0.00007882, -0.00813131, 19140.30268499, 0.44441088, -0.29257343}},
	{"jupiter", "Jupiter", fromLongitudes(5.20288700, 0.04838624, 1.30439695, 34.39644051, 14.72847983, 100.47390909),
		elementRates{-0.00011607, -0.00013253, -0.00183714, 3034.74612775, 0.21252668, 0.20469106}},
	{"saturn", "Saturn", fromLongitudes(9.53667594, 0.05386179, 2.48599187, 49.95424423, 92.59887831, 113.66242448),
		elementRates{-0.00125060, -0.00050991, 0.00193609, 1222.49362201, -0.41897216, -0.28867794}},
	{"uranus", "Uranus", fromLongitudes(19.18916464, 0.04725744, 0.77263783, 313.23810451, 170.95427630, 74.01692503),
		elementRates{-0.00196176, -0.00004397, -0.00242939, 428.48202785, 0.40805281, 0.04240589}},
	{"neptune", "Neptune", fromLongitudes(30.06992276, 0.00859048, 1.77004347, -55.12002969, 44.96476227, 131.78422574),
		elementRates{0.00026291, 0.00005105, 0.00035372, 218.45945325, -0.32241464, -0.00508664}},
}

// ElementsAt returns the osculating-style mean elements at t, with the
// secular rates applied and the epoch moved to t.
func (o ReferenceOrbit) ElementsAt(t time.Time) Elements {
	T := daysBetween(j2000, t) / 36525
	base := o.Elements
	node := base.Node + o.rates.Node*T
	varpi := base.ArgPeri + base.Node + o.rates.Varpi*T
	L := base.M0 + base.ArgPeri + base.Node + o.rates.L*T
	return Elements{
		A:       base.A + o.rates.A*T,
		E:       base.E + o.rates.E*T,
		I:       base.I + o.rates.I*T,
		Node:    node,
		ArgPeri: varpi - node,
		M0:      math.Mod(L-varpi, 360),
		Epoch:   t,
	}
}

func init() {
	for _, o := range referenceOrbits {
		if err := o.Elements.Validate(); err != nil {
			panic(fmt.Sprintf("kepler: reference orbit %s: %v", o.ID, err))
		}
	}
}

// ReferenceOrbits returns the reference orbit table. The slice is a copy.
func ReferenceOrbits() []ReferenceOrbit {
	out := make([]ReferenceOrbit, len(referenceOrbits))
	copy(out, referenceOrbits)
	return out
}

// ReferenceOrbitByID returns the reference orbit with the given ID.
func ReferenceOrbitByID(id string) (ReferenceOrbit, bool) {
	for _, o := range referenceOrbits {
		if o.ID == id {
			return o, true
		}
	}
	return ReferenceOrbit{}, false
}
