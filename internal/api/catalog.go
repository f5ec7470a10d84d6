package api

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/star/orrery/internal/celestial"
	"github.com/star/orrery/internal/kepler"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/trajectory"
	"github.com/star/orrery/internal/transform"
)

const (
	defaultPathPoints = 360
	minPathPoints     = 8
	maxPathPoints     = 4096
)

type elementsView struct {
	A            float64 `json:"a_au"`
	E            float64 `json:"e"`
	I            float64 `json:"i_deg"`
	Node         float64 `json:"node_deg"`
	ArgPeri      float64 `json:"arg_peri_deg"`
	M0           float64 `json:"m0_deg"`
	Epoch        string  `json:"epoch"`
	PerihelionAU float64 `json:"perihelion_au"`
	AphelionAU   float64 `json:"aphelion_au"`
	PeriodYears  float64 `json:"period_years"`
}

func newElementsView(el kepler.Elements) elementsView {
	return elementsView{
		A: el.A, E: el.E, I: el.I, Node: el.Node, ArgPeri: el.ArgPeri, M0: el.M0,
		Epoch:        el.Epoch.UTC().Format(time.RFC3339),
		PerihelionAU: el.Perihelion(),
		AphelionAU:   el.Aphelion(),
		PeriodYears:  el.PeriodYears(),
	}
}

type cometView struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Designation    string       `json:"designation"`
	Description    string       `json:"description"`
	PeriodYears    float64      `json:"period_years"`
	Elements       elementsView `json:"elements"`
	NextPerihelion string       `json:"next_perihelion,omitempty"`
}

// GET /api/v1/comets
func (s *Server) handleComets(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	comets := kepler.Comets()
	out := make([]cometView, 0, len(comets))
	for _, c := range comets {
		v := cometView{
			ID:          c.ID,
			Name:        c.Name,
			Designation: c.Designation,
			Description: c.Description,
			PeriodYears: c.PeriodYears,
			Elements:    newElementsView(c.Elements),
		}
		if next, ok := c.NextPerihelion(now); ok {
			v.NextPerihelion = next.Format(time.RFC3339)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"comets": out, "count": len(out)})
}

type keplerPositionView struct {
	ID                 string     `json:"id"`
	T                  string     `json:"t"`
	PositionAU         [3]float64 `json:"position_au"`
	Scene              [3]float64 `json:"scene"`
	DistanceAU         float64    `json:"distance_au"`
	SpeedKmS           float64    `json:"speed_km_s"`
	TrueAnomalyDeg     float64    `json:"true_anomaly_deg"`
	SolverIterations   int        `json:"solver_iterations"`
	SolverConverged    bool       `json:"solver_converged"`
	NextPerihelion     string     `json:"next_perihelion,omitempty"`
	PreviousPerihelion string     `json:"previous_perihelion,omitempty"`
}

func newKeplerPositionView(id string, el kepler.Elements, t time.Time) keplerPositionView {
	st := kepler.Position(el, t)
	metrics.ObserveKeplerSolve(st.Solution.Iterations, st.Solution.Converged)
	nu := math.Mod(transform.Rad2Deg(st.TrueAnomaly), 360)
	if nu < 0 {
		nu += 360
	}
	return keplerPositionView{
		ID:               id,
		T:                t.Format(time.RFC3339),
		PositionAU:       arr(st.Position),
		Scene:            arr(transform.VecAUToScene(st.Position)),
		DistanceAU:       st.Radius,
		SpeedKmS:         st.SpeedKmPerSec(),
		TrueAnomalyDeg:   nu,
		SolverIterations: st.Solution.Iterations,
		SolverConverged:  st.Solution.Converged,
	}
}

// GET /api/v1/comets/{id}/position?t=
func (s *Server) handleCometPosition(w http.ResponseWriter, r *http.Request) {
	c, ok := kepler.CometByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown comet")
		return
	}
	t, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v := newKeplerPositionView(c.ID, c.Elements, t)
	if next, ok := c.NextPerihelion(t); ok {
		v.NextPerihelion = next.Format(time.RFC3339)
	}
	if prev, ok := c.PreviousPerihelion(t); ok {
		v.PreviousPerihelion = prev.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, v)
}

// writePath answers an orbit-curve request for el, rejecting point counts
// above the budget.
func writePath(w http.ResponseWriter, r *http.Request, id string, el kepler.Elements) {
	n, err := queryInt(r, "n", defaultPathPoints, minPathPoints, maxPathPoints)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      err.Error(),
			"max_points": maxPathPoints,
		})
		return
	}

	pts := kepler.OrbitPath(el, n)
	scene := make([][3]float64, len(pts))
	for i, p := range pts {
		scene[i] = arr(transform.VecAUToScene(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"n":      n,
		"frame":  "ecliptic_j2000",
		"units":  "scene",
		"points": scene,
	})
}

// GET /api/v1/comets/{id}/path?n=
func (s *Server) handleCometPath(w http.ResponseWriter, r *http.Request) {
	c, ok := kepler.CometByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown comet")
		return
	}
	writePath(w, r, c.ID, c.Elements)
}

// GET /api/v1/orbits/{id}/path?n=
func (s *Server) handleOrbitPath(w http.ResponseWriter, r *http.Request) {
	o, ok := kepler.ReferenceOrbitByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown orbit")
		return
	}
	writePath(w, r, o.ID, o.Elements)
}

type bodyView struct {
	Body       string     `json:"body"`
	T          string     `json:"t"`
	Scene      [3]float64 `json:"scene"`
	DistanceKm float64    `json:"distance_km"`
	DistanceAU float64    `json:"distance_au"`
	Stale      bool       `json:"stale,omitempty"`
}

func newBodyView(p celestial.Position) bodyView {
	return bodyView{
		Body:       p.Body.String(),
		T:          p.Time.UTC().Format(time.RFC3339),
		Scene:      arr(p.Scene),
		DistanceKm: p.DistanceKm,
		DistanceAU: p.DistanceKm / transform.KmPerAU,
		Stale:      p.Stale,
	}
}

// GET /api/v1/bodies?t=
func (s *Server) handleBodies(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bodies == nil {
		writeError(w, http.StatusServiceUnavailable, "ephemeris not configured")
		return
	}
	t, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	positions, err := s.deps.Bodies.All(t)
	if len(positions) == 0 && err != nil {
		s.logger.Warn("ephemeris unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "ephemeris unavailable")
		return
	}
	out := make([]bodyView, len(positions))
	for i, p := range positions {
		out[i] = newBodyView(p)
	}
	resp := map[string]any{"t": t.Format(time.RFC3339), "bodies": out}
	if err != nil {
		resp["partial"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/bodies/{name}/position?t=
func (s *Server) handleBodyPosition(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bodies == nil {
		writeError(w, http.StatusServiceUnavailable, "ephemeris not configured")
		return
	}
	body, err := celestial.ParseBody(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	t, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := s.deps.Bodies.Position(body, t)
	if err != nil {
		if errors.Is(err, celestial.ErrUnknownBody) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Warn("body position unavailable", "body", body.String(), "error", err)
		writeError(w, http.StatusServiceUnavailable, "ephemeris unavailable")
		return
	}
	writeJSON(w, http.StatusOK, newBodyView(pos))
}

type missionView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Samples     int    `json:"samples"`
	Milestones  int    `json:"milestones"`
}

// GET /api/v1/missions
func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	missions := trajectory.Missions()
	out := make([]missionView, 0, len(missions))
	for _, m := range missions {
		v := missionView{
			ID:          m.ID,
			Name:        m.Name,
			Description: m.Description,
			Samples:     m.Trajectory.Len(),
			Milestones:  len(m.Milestones),
		}
		if start, end, ok := m.Trajectory.Span(); ok {
			v.Start = start.Format(time.RFC3339)
			v.End = end.Format(time.RFC3339)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"missions": out, "count": len(out)})
}

type missionPositionView struct {
	ID         string                 `json:"id"`
	T          string                 `json:"t"`
	Available  bool                   `json:"available"`
	PositionKm *[3]float64            `json:"position_km,omitempty"`
	Scene      *[3]float64            `json:"scene,omitempty"`
	DistanceKm float64                `json:"distance_km,omitempty"`
	Reached    []trajectory.Milestone `json:"reached_milestones,omitempty"`
	Next       *trajectory.Milestone  `json:"next_milestone,omitempty"`
}

// GET /api/v1/missions/{id}/position?t=
// Times before the first sample answer {"available": false}; after the
// last sample the final position holds.
func (s *Server) handleMissionPosition(w http.ResponseWriter, r *http.Request) {
	m, ok := trajectory.MissionByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown mission")
		return
	}
	t, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v := missionPositionView{ID: m.ID, T: t.Format(time.RFC3339)}
	if sample, ok := m.Trajectory.PositionAt(t); ok {
		pos := arr(sample.Position)
		scene := arr(transform.VecKmToScene(sample.Position))
		v.Available = true
		v.PositionKm = &pos
		v.Scene = &scene
		v.DistanceKm = sample.Distance
	}
	v.Reached = trajectory.ActiveMilestones(m.Milestones, t)
	if next, ok := trajectory.NextMilestone(m.Milestones, t); ok {
		v.Next = &next
	}
	writeJSON(w, http.StatusOK, v)
}

// GET /api/v1/missions/{id}/milestones
func (s *Server) handleMissionMilestones(w http.ResponseWriter, r *http.Request) {
	m, ok := trajectory.MissionByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown mission")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": m.ID, "milestones": m.Milestones})
}
