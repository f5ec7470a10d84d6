// Package scene assembles one frame of every tracked object at a single
// simulated instant. Comets and bodies are heliocentric; missions and
// satellites are geocentric. All positions are in scene units.
package scene

import (
	"log/slog"
	"time"

	"github.com/star/orrery/internal/celestial"
	"github.com/star/orrery/internal/kepler"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/timectrl"
	"github.com/star/orrery/internal/trajectory"
	"github.com/star/orrery/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// Request selects the object groups included in a frame.
type Request struct {
	Comets     bool
	Bodies     bool
	Missions   bool
	Satellites []int // NORAD IDs
	Model      propagation.Model
}

// Point is one object's scene position.
type Point struct {
	ID    string     `json:"id"`
	P     [3]float64 `json:"p"`
	Stale bool       `json:"stale,omitempty"`
}

// Frame is a full scene at one simulated time.
type Frame struct {
	Type       string  `json:"type"`
	T          string  `json:"t"`
	Running    bool    `json:"running"`
	Speed      float64 `json:"speed"`
	Comets     []Point `json:"comets,omitempty"`
	Bodies     []Point `json:"bodies,omitempty"`
	Missions   []Point `json:"missions,omitempty"`
	Satellites []Point `json:"satellites,omitempty"`
	// Milestones lists mission events reached in the last frame interval.
	Milestones []string `json:"milestones,omitempty"`
}

// Builder computes frames. A nil propagator or provider omits that group.
type Builder struct {
	prop   *propagation.Propagator
	bodies *celestial.Provider
	logger *slog.Logger
}

// NewBuilder creates a frame builder.
func NewBuilder(prop *propagation.Propagator, bodies *celestial.Provider, logger *slog.Logger) *Builder {
	return &Builder{prop: prop, bodies: bodies, logger: logger}
}

func vec(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Build returns the frame for the clock snapshot.
func (b *Builder) Build(snap timectrl.Snapshot, req Request) Frame {
	t := snap.Now
	f := Frame{
		Type:    "frame",
		T:       t.UTC().Format(time.RFC3339Nano),
		Running: snap.Running,
		Speed:   snap.Speed,
	}

	if req.Comets {
		for _, c := range kepler.Comets() {
			st := kepler.Position(c.Elements, t)
			metrics.ObserveKeplerSolve(st.Solution.Iterations, st.Solution.Converged)
			f.Comets = append(f.Comets, Point{ID: c.ID, P: vec(transform.VecAUToScene(st.Position))})
		}
	}

	if req.Bodies && b.bodies != nil {
		for _, body := range celestial.Bodies() {
			pos, err := b.bodies.Position(body, t)
			if err != nil {
				b.logger.Debug("scene body unavailable", "body", body.String(), "error", err)
				continue
			}
			f.Bodies = append(f.Bodies, Point{ID: body.String(), P: vec(pos.Scene), Stale: pos.Stale})
		}
	}

	if req.Missions {
		for _, m := range trajectory.Missions() {
			s, ok := m.Trajectory.PositionAt(t)
			if !ok {
				continue
			}
			f.Missions = append(f.Missions, Point{ID: m.ID, P: vec(transform.VecKmToScene(s.Position))})
		}
	}

	if len(req.Satellites) > 0 && b.prop != nil {
		for _, id := range req.Satellites {
			st, err := b.prop.Satellite(id, t, req.Model)
			if err != nil || !transform.IsFinite(st.Scene) {
				b.logger.Debug("scene satellite unavailable", "norad_id", id, "error", err)
				continue
			}
			f.Satellites = append(f.Satellites, Point{ID: itoa(id), P: vec(st.Scene)})
		}
	}

	return f
}

// MilestonesBetween names mission milestones in (from, to], oldest first.
// Time running backwards swaps the bounds.
func MilestonesBetween(from, to time.Time) []string {
	if to.Before(from) {
		from, to = to, from
	}
	var out []string
	for _, m := range trajectory.Missions() {
		for _, ms := range m.Milestones {
			if ms.Time.After(from) && !ms.Time.After(to) {
				out = append(out, m.ID+": "+ms.Name)
			}
		}
	}
	return out
}
