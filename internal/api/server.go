// Package api serves the orrery HTTP interface: comet, planet, mission and
// satellite queries, TLE management, keyframe cache inspection and the
// streaming endpoints.
package api

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orrery/internal/auth"
	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/celestial"
	"github.com/star/orrery/internal/health"
	"github.com/star/orrery/internal/httputil"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/observability"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/stream"
	"github.com/star/orrery/internal/tle"
)

// Deps are the components the server routes to. Cache, Bodies, Streams,
// Fetcher and TLECache may be nil; their routes then answer 503.
type Deps struct {
	Store     *tle.Store
	TLECache  *tle.Cache
	Fetcher   *tle.Fetcher
	TLE       TLEConfig
	RateLimit RateLimitConfig
	Auth      auth.Config

	Prop    *propagation.Propagator
	Cache   *cache.KeyframeCache
	Bodies  *celestial.Provider
	Streams *stream.Handler
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	deps       Deps
	limiter    *ipLimiter
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, deps Deps) *Server {
	s := &Server{
		deps:    deps,
		limiter: newIPLimiter(deps.RateLimit),
		logger:  logger,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	// Build middleware chain: metrics -> tracing -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(deps.Auth)(handler)
	handler = loggingMiddleware(logger, deps.RateLimit.TrustProxy)(handler)
	handler = observability.Middleware(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(health.Check{Name: "tle_dataset", Fn: s.datasetReady}))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/comets", s.handleComets)
	mux.HandleFunc("GET /api/v1/comets/{id}/position", s.handleCometPosition)
	mux.HandleFunc("GET /api/v1/comets/{id}/path", s.limited(s.handleCometPath))
	mux.HandleFunc("GET /api/v1/orbits/{id}/path", s.limited(s.handleOrbitPath))

	mux.HandleFunc("GET /api/v1/bodies", s.handleBodies)
	mux.HandleFunc("GET /api/v1/bodies/{name}/position", s.handleBodyPosition)

	mux.HandleFunc("GET /api/v1/missions", s.handleMissions)
	mux.HandleFunc("GET /api/v1/missions/{id}/position", s.handleMissionPosition)
	mux.HandleFunc("GET /api/v1/missions/{id}/milestones", s.handleMissionMilestones)

	mux.HandleFunc("GET /api/v1/satellites", s.handleSatellites)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/position", s.handleSatellitePosition)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/groundtrack", s.limited(s.handleGroundTrack))
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}/passes", s.limited(s.handlePasses))

	mux.HandleFunc("GET /api/v1/tle/metadata", s.handleTLEMetadata)
	mux.HandleFunc("POST /api/v1/tle/fetch", s.limited(s.handleTLEFetch))
	mux.HandleFunc("PUT /api/v1/tle/{norad_id}", s.handleTLEReplace)

	mux.HandleFunc("GET /api/v1/propagate", s.limited(s.handlePropagate))
	mux.HandleFunc("GET /api/v1/cache/keyframes/latest", s.handleLatestKeyframe)
	mux.HandleFunc("GET /api/v1/cache/stats", s.handleCacheStats)

	if st := s.deps.Streams; st != nil {
		mux.HandleFunc("GET /api/v1/stream/scene", st.HandleScene)
		mux.HandleFunc("GET /api/v1/stream/keyframes", st.HandleKeyframes)
		mux.HandleFunc("GET /api/v1/ws/clock", st.HandleClock)
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) datasetReady() error {
	if s.deps.Store == nil || s.deps.Store.Get() == nil {
		return tle.ErrNoDataset
	}
	return nil
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(sr.ResponseWriter).Hijack()
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}

// writeJSON sends v with the given status. The header is already out when
// encoding fails, so the failure can only be logged.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encoding response failed", "component", "api", "status", status, "error", err)
	}
}

func finiteAll(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
