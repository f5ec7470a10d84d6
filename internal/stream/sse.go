// Package stream serves long-lived connections: Server-Sent Events of the
// real-time satellite keyframes, SSE scene frames driven by a per-connection
// simulation clock, and an interactive WebSocket clock session.
//
// SSE messages are "data: {json}\n\n". The keyframe stream opens with a
// metadata message; scene streams open with the first frame. Keep-alive
// comments (":\n\n") are sent when no data went out for KeepaliveInterval.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/httputil"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/scene"
	"github.com/star/orrery/internal/tle"
)

// Config holds streaming settings.
type Config struct {
	MaxConcurrentPerIP int           // concurrent streams and sessions per IP (default 10)
	MaxTotal           int           // concurrent streams and sessions overall (default 1000)
	BandwidthLimit     int           // bytes per second per SSE stream, 0 for unlimited
	KeepaliveInterval  time.Duration // keep-alive and ping interval (default 30s)
	TrustProxy         bool          // read client IP from X-Forwarded-For
	FrameInterval      time.Duration // default scene frame period (default 1s)
	MaxSatellites      int           // satellites per scene (default 50)
	MaxSpeed           float64       // bound on |speed| (default 1e7)
	AllowedOrigins     []string      // WebSocket origins; empty allows any
}

func (c *Config) setDefaults() {
	if c.MaxConcurrentPerIP <= 0 {
		c.MaxConcurrentPerIP = 10
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = time.Second
	}
	if c.MaxSatellites <= 0 {
		c.MaxSatellites = 50
	}
	if c.MaxSpeed <= 0 {
		c.MaxSpeed = 1e7
	}
}

// Handler serves the stream endpoints.
type Handler struct {
	cache    *cache.KeyframeCache
	store    *tle.Store
	scenes   *scene.Builder
	config   Config
	limiter  *streamLimiter
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a stream handler. scenes may be nil when only the
// keyframe stream is served.
func NewHandler(kfCache *cache.KeyframeCache, store *tle.Store, scenes *scene.Builder, config Config, logger *slog.Logger) *Handler {
	config.setDefaults()
	h := &Handler{
		cache:   kfCache,
		store:   store,
		scenes:  scenes,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range h.config.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// admit takes a connection slot for the request's IP. On refusal it writes
// 429 and returns false; otherwise the returned func releases the slot.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, kind string) (string, func(), bool) {
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded", "kind", kind, "remote_ip", ip, "current_count", h.limiter.count(ip))
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return "", nil, false
	}
	return ip, func() { h.limiter.release(ip) }, true
}

// openSSE switches the response to an event stream. The caller must hold a
// limiter slot; the returned func records the disconnect.
func (h *Handler) openSSE(w http.ResponseWriter, r *http.Request, ip, kind string) (*client, func(), bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, nil, false
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()
	start := time.Now()
	h.logger.Info("stream connected", "kind", kind, "remote_ip", ip, "user_agent", r.Header.Get("User-Agent"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Long-lived: clear the server's WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		ctx:       r.Context(),
		w:         w,
		flusher:   flusher,
		rc:        rc,
		ip:        ip,
		logger:    h.logger,
		bandwidth: newBandwidthLimiter(h.config.BandwidthLimit),
	}

	// Jittered retry (3-7s) spreads reconnects after a restart.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.IntN(4000))
	flusher.Flush()

	done := func() {
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"kind", kind,
			"remote_ip", ip,
			"messages", c.messagesSent,
			"bytes", c.bytesSent,
			"duration_seconds", int(time.Since(start).Seconds()),
		)
	}
	return c, done, true
}

// queryInt parses an optional integer query value within [lo, hi].
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s parameter, must be %d-%d", name, lo, hi)
	}
	return n, nil
}

// HandleKeyframes streams cached real-time keyframes.
// GET /api/v1/stream/keyframes?step=5&horizon=600&trail=20
func (h *Handler) HandleKeyframes(w http.ResponseWriter, r *http.Request) {
	step, err := queryInt(r, "step", 5, 1, 60)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// horizon is a client hint; the stream runs until disconnect.
	if _, err := queryInt(r, "horizon", 600, 10, 3600); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trail, err := queryInt(r, "trail", 20, 0, 120)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip, release, ok := h.admit(w, r, "keyframes")
	if !ok {
		return
	}
	defer release()

	c, done, ok := h.openSSE(w, r, ip, "keyframes")
	if !ok {
		return
	}
	defer done()

	if ds := h.store.Get(); ds != nil {
		meta := metadataMessage{
			Type:         "metadata",
			DatasetEpoch: ds.FetchedAt.UTC().Format(time.RFC3339),
			TLEAge:       int(time.Since(ds.FetchedAt).Seconds()),
			Satellites:   len(ds.Satellites),
		}
		if err := c.sendJSON(meta); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
			return
		}
	}

	ticker := time.NewTicker(time.Duration(step) * time.Second)
	defer ticker.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case t := <-ticker.C:
			kf := h.cache.Get(t)
			if kf == nil {
				metrics.IncStreamErrors("cache_miss")
				h.logger.Debug("stream cache miss", "timestamp", h.cache.RoundToStep(t).Format(time.RFC3339), "remote_ip", ip)
				continue
			}
			var trailKFs []*propagation.Keyframe
			if trail > 0 {
				trailKFs = h.cache.GetRecent(t, trail)
			}
			data, err := json.Marshal(buildBatchMessage(kf, trailKFs))
			if err != nil {
				metrics.IncStreamErrors("marshal_error")
				h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
				continue
			}
			if err := c.sendRaw(data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// buildBatchMessage formats a keyframe as an SSE batch. With trail frames,
// each satellite carries its past ECEF positions, oldest first.
func buildBatchMessage(kf *propagation.Keyframe, trailKFs []*propagation.Keyframe) keyframeBatchMessage {
	var trails map[int][][3]float64
	if len(trailKFs) > 0 {
		trails = make(map[int][][3]float64, len(kf.Satellites))
		for _, tkf := range trailKFs {
			for _, s := range tkf.Satellites {
				trails[s.NORADID] = append(trails[s.NORADID], s.PositionECEF)
			}
		}
	}

	sats := make([]satPayload, len(kf.Satellites))
	for i, s := range kf.Satellites {
		sats[i] = satPayload{ID: s.NORADID, P: s.PositionECEF, Tr: trails[s.NORADID]}
	}
	return keyframeBatchMessage{
		Type:  "keyframe_batch",
		T:     kf.Timestamp.UTC().Format(time.RFC3339),
		Frame: "ECEF",
		Model: string(kf.Model),
		Sat:   sats,
	}
}

type metadataMessage struct {
	Type         string `json:"type"`
	DatasetEpoch string `json:"dataset_epoch"`
	TLEAge       int    `json:"tle_age_seconds"`
	Satellites   int    `json:"satellites"`
}

type keyframeBatchMessage struct {
	Type  string       `json:"type"`
	T     string       `json:"t"`
	Frame string       `json:"frame"`
	Model string       `json:"model,omitempty"`
	Sat   []satPayload `json:"sat"`
}

// satPayload positions are ECEF in km.
type satPayload struct {
	ID int          `json:"id"`
	P  [3]float64   `json:"p"`
	Tr [][3]float64 `json:"tr,omitempty"`
}
