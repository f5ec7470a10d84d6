package trajectory

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mission couples a spacecraft trajectory with its milestones.
type Mission struct {
	ID          string
	Name        string
	Description string
	Trajectory  *Trajectory
	Milestones  []Milestone
}

type row struct {
	t       string
	x, y, z float64
}

func buildSamples(rows []row) []Sample {
	out := make([]Sample, 0, len(rows))
	for _, r := range rows {
		ts, err := time.Parse(time.RFC3339, r.t)
		if err != nil {
			panic("trajectory: bad sample time " + r.t)
		}
		p := r3.Vec{X: r.x, Y: r.y, Z: r.z}
		out = append(out, Sample{Time: ts, Position: p, Distance: r3.Norm(p)})
	}
	return out
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic("trajectory: bad milestone time " + s)
	}
	return t
}

// Coarse geocentric ecliptic samples (km), sufficient for scene placement.
var artemis1Rows = []row{
	{"2022-11-16T06:47:44Z", 6578, 0, 0},
	{"2022-11-16T12:00:00Z", 60000, 30000, 5000},
	{"2022-11-17T00:00:00Z", 120000, 70000, 12000},
	{"2022-11-18T00:00:00Z", 200000, 130000, 22000},
	{"2022-11-19T00:00:00Z", 260000, 180000, 30000},
	{"2022-11-20T00:00:00Z", 300000, 225000, 36000},
	{"2022-11-21T12:44:00Z", 310000, 240000, 38000},
	{"2022-11-23T00:00:00Z", 318000, 252000, 40000},
	{"2022-11-25T21:52:00Z", 325000, 262000, 42000},
	{"2022-11-28T13:00:00Z", 332000, 273000, 44000},
	{"2022-12-01T21:53:00Z", 300000, 290000, 46000},
	{"2022-12-05T16:43:00Z", 250000, 300000, 45000},
	{"2022-12-07T00:00:00Z", 180000, 220000, 32000},
	{"2022-12-09T00:00:00Z", 90000, 110000, 15000},
	{"2022-12-11T17:40:00Z", 4200, 4900, 700},
}

var artemis1Milestones = []Milestone{
	{mustTime("2022-11-16T06:47:44Z"), "Launch", "SLS lifts off from Launch Complex 39B.", "earth"},
	{mustTime("2022-11-16T08:14:00Z"), "Translunar injection", "ICPS burn sends Orion toward the Moon.", "earth"},
	{mustTime("2022-11-21T12:44:00Z"), "Outbound powered flyby", "Closest approach, about 130 km above the lunar surface.", "moon"},
	{mustTime("2022-11-25T21:52:00Z"), "Distant retrograde orbit insertion", "Orion enters a distant retrograde orbit around the Moon.", "moon"},
	{mustTime("2022-11-28T13:00:00Z"), "Maximum distance", "Farthest from Earth, about 432,000 km.", "earth"},
	{mustTime("2022-12-01T21:53:00Z"), "Distant retrograde orbit departure", "Orion leaves lunar orbit.", "moon"},
	{mustTime("2022-12-05T16:43:00Z"), "Return powered flyby", "Second close pass sets up the return to Earth.", "moon"},
	{mustTime("2022-12-11T17:40:00Z"), "Splashdown", "Orion splashes down in the Pacific off Baja California.", "earth"},
}

var missions = []Mission{
	{
		ID:          "artemis-1",
		Name:        "Artemis I",
		Description: "Uncrewed Orion test flight around the Moon.",
		Trajectory:  NewTrajectory(buildSamples(artemis1Rows)),
		Milestones:  artemis1Milestones,
	},
}

// Missions returns the mission table.
func Missions() []Mission {
	out := make([]Mission, len(missions))
	copy(out, missions)
	return out
}

// MissionByID returns the mission with the given ID.
func MissionByID(id string) (Mission, bool) {
	for _, m := range missions {
		if m.ID == id {
			return m, true
		}
	}
	return Mission{}, false
}
