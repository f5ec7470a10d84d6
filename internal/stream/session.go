package stream

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/scene"
	"github.com/star/orrery/internal/timectrl"
)

const (
	minFrameInterval = 50 * time.Millisecond
	maxFrameInterval = 30 * time.Second
)

// sessionParams are the query parameters shared by the scene stream and
// the clock session.
type sessionParams struct {
	start    time.Time
	speed    float64
	paused   bool
	interval time.Duration
	request  scene.Request
}

// parseSessionParams reads start, speed, paused, step, include, sats and
// model. now supplies the default start.
func (h *Handler) parseSessionParams(r *http.Request, now time.Time) (sessionParams, error) {
	q := r.URL.Query()
	p := sessionParams{
		start:    now,
		speed:    1,
		interval: h.config.FrameInterval,
		request:  scene.Request{Comets: true, Bodies: true, Missions: true},
	}

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return p, fmt.Errorf("invalid start parameter, must be RFC 3339")
		}
		p.start = t
	}

	if v := q.Get("speed"); v != "" {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(s) || math.Abs(s) > h.config.MaxSpeed {
			return p, fmt.Errorf("invalid speed parameter, must be within ±%g", h.config.MaxSpeed)
		}
		p.speed = s
	}

	if v := q.Get("paused"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("invalid paused parameter")
		}
		p.paused = b
	}

	if v := q.Get("step"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < minFrameInterval || d > maxFrameInterval {
			return p, fmt.Errorf("invalid step parameter, must be a duration between %s and %s", minFrameInterval, maxFrameInterval)
		}
		p.interval = d
	}

	if v := q.Get("include"); v != "" {
		p.request.Comets, p.request.Bodies, p.request.Missions = false, false, false
		for _, g := range strings.Split(v, ",") {
			switch strings.TrimSpace(g) {
			case "comets":
				p.request.Comets = true
			case "bodies":
				p.request.Bodies = true
			case "missions":
				p.request.Missions = true
			case "":
			default:
				return p, fmt.Errorf("invalid include group %q", g)
			}
		}
	}

	ids, err := scene.ParseIDs(q.Get("sats"), h.config.MaxSatellites)
	if err != nil {
		return p, err
	}
	p.request.Satellites = ids

	model, err := propagation.ParseModel(q.Get("model"))
	if err != nil {
		return p, err
	}
	p.request.Model = model

	return p, nil
}

// newClock builds the session's simulation clock. Reset returns to the
// requested start.
func (p sessionParams) newClock() *timectrl.Controller {
	opts := []timectrl.Option{timectrl.WithSpeed(p.speed), timectrl.WithResetTime(p.start)}
	if p.paused {
		opts = append(opts, timectrl.WithPaused())
	}
	return timectrl.New(p.start, opts...)
}
