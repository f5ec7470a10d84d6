package kepler

import (
	"fmt"
	"sort"
	"time"
)

// Comet is a periodic or long-period comet with display metadata.
type Comet struct {
	ID          string
	Name        string
	Designation string
	Description string
	Elements    Elements
	PeriodYears float64
	Perihelia   []time.Time // known perihelion passages, ascending
}

func date(y int, m time.Month, d float64) time.Time {
	day := int(d)
	frac := d - float64(day)
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC).Add(time.Duration(frac * float64(24*time.Hour)))
}

// Elements are osculating values referred to the J2000 ecliptic with the
// epoch at a perihelion passage, so M0 is zero.
var comets = []Comet{
	{
		ID:          "halley",
		Name:        "Halley's Comet",
		Designation: "1P/Halley",
		Description: "Short-period comet visible to the naked eye every 75-76 years; retrograde orbit.",
		Elements: Elements{
			A: 17.834, E: 0.96714, I: 162.2627, Node: 58.42008, ArgPeri: 111.33249,
			Epoch: date(1986, time.February, 9.45891),
		},
		PeriodYears: 75.32,
		Perihelia:   []time.Time{date(1835, time.November, 16), date(1910, time.April, 20), date(1986, time.February, 9), date(2061, time.July, 28)},
	},
	{
		ID:          "encke",
		Name:        "Comet Encke",
		Designation: "2P/Encke",
		Description: "Shortest known orbital period of any bright comet; parent of the Taurid meteors.",
		Elements: Elements{
			A: 2.2152, E: 0.8483, I: 11.78, Node: 334.57, ArgPeri: 186.54,
			Epoch: date(2023, time.October, 22.7),
		},
		PeriodYears: 3.30,
		Perihelia:   []time.Time{date(2017, time.March, 10), date(2020, time.June, 25), date(2023, time.October, 22), date(2027, time.February, 10)},
	},
	{
		ID:          "tempel1",
		Name:        "Comet Tempel 1",
		Designation: "9P/Tempel",
		Description: "Target of the Deep Impact probe in 2005 and revisited by Stardust-NExT.",
		Elements: Elements{
			A: 3.145, E: 0.5096, I: 10.47, Node: 68.93, ArgPeri: 179.20,
			Epoch: date(2022, time.March, 4),
		},
		PeriodYears: 5.58,
		Perihelia:   []time.Time{date(2005, time.July, 5), date(2011, time.January, 12), date(2016, time.August, 2), date(2022, time.March, 4), date(2027, time.September, 30)},
	},
	{
		ID:          "hale-bopp",
		Name:        "Comet Hale-Bopp",
		Designation: "C/1995 O1",
		Description: "The Great Comet of 1997, visible to the naked eye for a record 18 months.",
		Elements: Elements{
			A: 182.05, E: 0.99498, I: 89.43, Node: 282.47, ArgPeri: 130.59,
			Epoch: date(1997, time.April, 1.13),
		},
		PeriodYears: 2456,
		Perihelia:   []time.Time{date(1997, time.April, 1)},
	},
	{
		ID:          "67p",
		Name:        "Comet Churyumov-Gerasimenko",
		Designation: "67P/Churyumov-Gerasimenko",
		Description: "Orbited by Rosetta from 2014 to 2016; Philae landed on its nucleus.",
		Elements: Elements{
			A: 3.4630, E: 0.6410, I: 7.04, Node: 50.14, ArgPeri: 12.78,
			Epoch: date(2015, time.August, 13.09),
		},
		PeriodYears: 6.44,
		Perihelia:   []time.Time{date(2009, time.February, 28), date(2015, time.August, 13), date(2021, time.November, 2), date(2028, time.April, 9)},
	},
	{
		ID:          "swift-tuttle",
		Name:        "Comet Swift-Tuttle",
		Designation: "109P/Swift-Tuttle",
		Description: "Largest object to make repeated close passes to Earth; parent of the Perseids.",
		Elements: Elements{
			A: 26.09, E: 0.9632, I: 113.45, Node: 139.38, ArgPeri: 152.98,
			Epoch: date(1992, time.December, 12.32),
		},
		PeriodYears: 133.28,
		Perihelia:   []time.Time{date(1862, time.August, 23), date(1992, time.December, 12), date(2126, time.July, 12)},
	},
	{
		ID:          "hartley2",
		Name:        "Comet Hartley 2",
		Designation: "103P/Hartley",
		Description: "Small hyperactive comet flown past by EPOXI in 2010.",
		Elements: Elements{
			A: 3.47, E: 0.694, I: 13.6, Node: 219.75, ArgPeri: 181.3,
			Epoch: date(2023, time.October, 12.5),
		},
		PeriodYears: 6.46,
		Perihelia:   []time.Time{date(2010, time.October, 28), date(2017, time.April, 20), date(2023, time.October, 12)},
	},
}

func init() {
	for _, c := range comets {
		if err := c.Elements.Validate(); err != nil {
			panic(fmt.Sprintf("kepler: comet %s: %v", c.ID, err))
		}
	}
}

// Comets returns the comet table. The slice is a copy.
func Comets() []Comet {
	out := make([]Comet, len(comets))
	copy(out, comets)
	return out
}

// CometByID returns the comet with the given ID.
func CometByID(id string) (Comet, bool) {
	for _, c := range comets {
		if c.ID == id {
			return c, true
		}
	}
	return Comet{}, false
}

// NextPerihelion returns the first known perihelion passage strictly after t.
func (c Comet) NextPerihelion(t time.Time) (time.Time, bool) {
	i := sort.Search(len(c.Perihelia), func(i int) bool { return c.Perihelia[i].After(t) })
	if i == len(c.Perihelia) {
		return time.Time{}, false
	}
	return c.Perihelia[i], true
}

// PreviousPerihelion returns the last known perihelion passage at or before t.
func (c Comet) PreviousPerihelion(t time.Time) (time.Time, bool) {
	i := sort.Search(len(c.Perihelia), func(i int) bool { return c.Perihelia[i].After(t) })
	if i == 0 {
		return time.Time{}, false
	}
	return c.Perihelia[i-1], true
}
