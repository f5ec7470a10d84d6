package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/scene"
	"github.com/star/orrery/internal/timectrl"
)

// HandleScene streams scene frames from a clock owned by this connection.
// GET /api/v1/stream/scene?start=&speed=&step=&paused=&include=&sats=&model=
func (h *Handler) HandleScene(w http.ResponseWriter, r *http.Request) {
	if h.scenes == nil {
		writeError(w, http.StatusServiceUnavailable, "scene streaming not configured")
		return
	}
	params, err := h.parseSessionParams(r, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip, release, ok := h.admit(w, r, "scene")
	if !ok {
		return
	}
	defer release()

	c, done, ok := h.openSSE(w, r, ip, "scene")
	if !ok {
		return
	}
	defer done()

	clock := params.newClock()
	prev := clock.Now()

	send := func(snap timectrl.Snapshot) error {
		f := h.scenes.Build(snap, params.request)
		f.Milestones = scene.MilestonesBetween(prev, snap.Now)
		prev = snap.Now
		data, err := json.Marshal(f)
		if err != nil {
			metrics.IncStreamErrors("marshal_error")
			return nil
		}
		return c.sendRaw(data)
	}

	if err := send(clock.Snapshot()); err != nil {
		metrics.IncStreamErrors("send_error")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	clock.AddListener(func(now time.Time) {
		snap := clock.Snapshot()
		snap.Now = now
		if err := send(snap); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("scene send error", "remote_ip", ip, "error", err)
			cancel()
		}
	})

	// Frames double as keep-alives: the interval is capped below the
	// keep-alive period.
	timectrl.Drive(ctx, timectrl.TickerScheduler{Interval: params.interval}, clock)
}
