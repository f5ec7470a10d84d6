package api

import (
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/star/orrery/internal/observability"
	"github.com/star/orrery/internal/passes"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/tle"
	"github.com/star/orrery/internal/transform"
)

const (
	defaultGroundTrackSteps = 90
	maxGroundTrackSteps     = 1440

	defaultPassHours = 24
	maxPassHours     = 72
	maxPasses        = 50
)

// propagationError maps propagator errors to HTTP statuses.
func (s *Server) propagationError(w http.ResponseWriter, noradID int, err error) {
	switch {
	case errors.Is(err, tle.ErrNoDataset):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, propagation.ErrUnknownSatellite):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Warn("propagation failed", "norad_id", noradID, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	}
}

func (s *Server) requireProp(w http.ResponseWriter) bool {
	if s.deps.Prop == nil || s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "satellite propagation not configured")
		return false
	}
	return true
}

type satelliteView struct {
	NORADID int    `json:"norad_id"`
	Name    string `json:"name"`
	Epoch   string `json:"epoch"`
}

// GET /api/v1/satellites
func (s *Server) handleSatellites(w http.ResponseWriter, r *http.Request) {
	if !s.requireProp(w) {
		return
	}
	ds := s.deps.Store.Get()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, tle.ErrNoDataset.Error())
		return
	}
	out := make([]satelliteView, len(ds.Satellites))
	for i, e := range ds.Satellites {
		out[i] = satelliteView{NORADID: e.NORADID, Name: e.Name, Epoch: e.Epoch.UTC().Format(time.RFC3339)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":     ds.Source,
		"fetched_at": ds.FetchedAt.UTC().Format(time.RFC3339),
		"count":      len(out),
		"satellites": out,
	})
}

type satellitePositionView struct {
	propagation.SatellitePosition
	Name      string     `json:"name"`
	T         string     `json:"t"`
	Model     string     `json:"model"`
	ECIKm     [3]float64 `json:"position_eci_km"`
	ElementAt string     `json:"tle_epoch"`
}

// GET /api/v1/satellites/{norad_id}/position?t=&model=
func (s *Server) handleSatellitePosition(w http.ResponseWriter, r *http.Request) {
	if !s.requireProp(w) {
		return
	}
	id, err := pathNORADID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	model, err := propagation.ParseModel(r.URL.Query().Get("model"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	src, entry, err := s.deps.Prop.Source(id, model)
	if err != nil {
		s.propagationError(w, id, err)
		return
	}
	st, err := src.StateAt(t)
	if err != nil {
		s.propagationError(w, id, err)
		return
	}
	if !transform.IsFinite(st.ECEF) {
		writeError(w, http.StatusUnprocessableEntity, "element set does not produce a finite position")
		return
	}

	writeJSON(w, http.StatusOK, satellitePositionView{
		SatellitePosition: propagation.NewSatellitePosition(id, st),
		Name:              entry.Name,
		T:                 t.Format(time.RFC3339),
		Model:             string(model),
		ECIKm:             arr(st.ECI),
		ElementAt:         entry.Epoch.UTC().Format(time.RFC3339),
	})
}

// GET /api/v1/satellites/{norad_id}/groundtrack?t=&steps=
func (s *Server) handleGroundTrack(w http.ResponseWriter, r *http.Request) {
	if !s.requireProp(w) {
		return
	}
	id, err := pathNORADID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	steps, err := queryInt(r, "steps", defaultGroundTrackSteps, 1, maxGroundTrackSteps)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      err.Error(),
			"max_points": maxGroundTrackSteps,
		})
		return
	}

	pts, err := s.deps.Prop.GroundTrack(id, t, steps)
	if err != nil {
		s.propagationError(w, id, err)
		return
	}
	for _, p := range pts {
		if !finiteAll(p.Latitude, p.Longitude, p.Altitude) {
			writeError(w, http.StatusUnprocessableEntity, "element set does not produce a finite ground track")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"norad_id": id,
		"start":    t.Format(time.RFC3339),
		"steps":    steps,
		"points":   pts,
	})
}

// GET /api/v1/satellites/{norad_id}/passes?lat=&lon=&alt=&hours=&min_el=&max_passes=&model=
func (s *Server) handlePasses(w http.ResponseWriter, r *http.Request) {
	if !s.requireProp(w) {
		return
	}
	id, err := pathNORADID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lat, err := queryFloat(r, "lat", 0, -90, 90, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lon, err := queryFloat(r, "lon", 0, -180, 180, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	alt, err := queryFloat(r, "alt", 0, -0.5, 9, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minEl, err := queryFloat(r, "min_el", 0, 0, 90, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hours, err := queryInt(r, "hours", defaultPassHours, 1, maxPassHours)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     err.Error(),
			"max_hours": maxPassHours,
		})
		return
	}
	limit, err := queryInt(r, "max_passes", 10, 1, maxPasses)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	model, err := propagation.ParseModel(r.URL.Query().Get("model"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Passes default to SGP4; the simplified model drifts too far over a day.
	if r.URL.Query().Get("model") == "" {
		model = propagation.ModelSGP4
	}

	entry, ok := s.deps.Store.Lookup(id)
	if !ok {
		if s.deps.Store.Get() == nil {
			writeError(w, http.StatusServiceUnavailable, tle.ErrNoDataset.Error())
			return
		}
		writeError(w, http.StatusNotFound, propagation.ErrUnknownSatellite.Error())
		return
	}

	ctx, span := observability.StartSpan(r.Context(), "passes.predict",
		attribute.Int("norad_id", id),
		attribute.Int("hours", hours),
		attribute.String("model", string(model)),
	)
	defer span.End()

	began := time.Now()
	results := passes.Predict(ctx, passes.Request{
		Observer:     transform.NewObserverPosition(lat, lon, alt),
		Entries:      []tle.TLEEntry{entry},
		Start:        start,
		HorizonHours: float64(hours),
		MinElevation: minEl,
		MaxPasses:    limit,
		Source: func(e tle.TLEEntry) (propagation.StateSource, error) {
			src, _, err := s.deps.Prop.Source(e.NORADID, model)
			return src, err
		},
	})
	s.logger.Debug("pass prediction complete", "norad_id", id, "hours", hours, "duration_ms", time.Since(began).Milliseconds())

	res := results[0]
	if res.Error != "" {
		writeError(w, http.StatusUnprocessableEntity, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"norad_id": id,
		"model":    model,
		"observer": map[string]float64{"lat": lat, "lon": lon, "alt_km": alt},
		"start":    start.Format(time.RFC3339),
		"hours":    hours,
		"passes":   res.Passes,
	})
}

// GET /api/v1/propagate?t=&model=
func (s *Server) handlePropagate(w http.ResponseWriter, r *http.Request) {
	if !s.requireProp(w) {
		return
	}
	t, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	model, err := propagation.ParseModel(r.URL.Query().Get("model"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, span := observability.StartSpan(r.Context(), "propagate.batch", attribute.String("model", string(model)))
	defer span.End()

	kf, err := s.deps.Prop.PropagateModel(ctx, t, model)
	if err != nil {
		if errors.Is(err, tle.ErrNoDataset) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Warn("batch propagation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "propagation failed")
		return
	}
	span.SetAttributes(attribute.Int("satellites", len(kf.Satellites)))
	writeJSON(w, http.StatusOK, kf)
}

// GET /api/v1/cache/keyframes/latest
func (s *Server) handleLatestKeyframe(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache == nil {
		writeError(w, http.StatusServiceUnavailable, "keyframe cache not configured")
		return
	}
	kf := s.deps.Cache.GetLatest()
	if kf == nil {
		writeError(w, http.StatusNotFound, "no cached keyframe")
		return
	}
	writeJSON(w, http.StatusOK, kf)
}

// GET /api/v1/cache/stats
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	if s.deps.Cache != nil {
		resp["keyframes"] = s.deps.Cache.Stats()
	}
	if s.deps.Prop != nil {
		resp["elements"] = s.deps.Prop.Elements().Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
