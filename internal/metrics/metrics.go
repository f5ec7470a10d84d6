// Package metrics exposes the service's Prometheus metrics. Collectors are
// registered on the default registry at init and updated through the small
// helper functions below so callers never touch label values directly.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orrery"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		},
		[]string{"path"},
	)

	// Propagation.
	propagationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "propagation_duration_seconds",
			Help:      "Duration of one batch propagation.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"model"},
	)

	propagationSatellites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "propagation_satellites_total",
			Help:      "Satellites propagated, by model and result.",
		},
		[]string{"model", "result"},
	)

	keplerIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kepler_solver_iterations",
			Help:      "Newton-Raphson iterations per Kepler solve.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10, 20, 50},
		},
	)

	keplerNonConverged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kepler_solver_nonconverged_total",
			Help:      "Kepler solves that hit the iteration cap.",
		},
	)

	ephemerisRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ephemeris_requests_total",
			Help:      "Celestial body position lookups, by body and result (ok, stale, error).",
		},
		[]string{"body", "result"},
	)

	// TLE dataset.
	tleDatasetSatellites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tle_dataset_satellites",
			Help:      "Satellites in the current TLE dataset.",
		},
	)

	tleDatasetAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tle_dataset_age_seconds",
			Help:      "Age of the current TLE dataset.",
		},
	)

	tleFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tle_fetch_total",
			Help:      "TLE fetch attempts by result.",
		},
		[]string{"result"},
	)

	tleReplacements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tle_replacements_total",
			Help:      "Single-satellite TLE line replacements.",
		},
	)

	// Keyframe cache.
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "cache_hits_total", Help: "Keyframe cache hits.",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "cache_misses_total", Help: "Keyframe cache misses.",
	})
	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "cache_evictions_total", Help: "Keyframes evicted from the cache.",
	})
	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "cache_entries", Help: "Keyframes currently cached.",
	})
	cacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "cache_size_bytes", Help: "Estimated keyframe cache footprint.",
	})
	cacheGracePeriod = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "cache_grace_period_active", Help: "1 while a TLE cutover rebuild is running.",
	})
	cacheRegenErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "cache_regeneration_errors_total", Help: "Failed keyframe generations.",
	})
	cacheRegenDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cache_regeneration_duration_seconds",
		Help:      "Duration of keyframe generation and cutover rebuilds.",
		Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 10, 30},
	})

	// Streams and clock sessions.
	streamConnections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "stream_connections_total", Help: "Stream connect and disconnect events.",
	}, []string{"event"})
	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "streams_active", Help: "Open SSE streams.",
	})
	streamMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "stream_messages_total", Help: "Messages sent to stream clients.",
	})
	streamBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "stream_bytes_total", Help: "Bytes sent to stream clients.",
	})
	streamErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "stream_errors_total", Help: "Stream errors by reason.",
	}, []string{"reason"})
	clockSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "clock_sessions_active", Help: "Open WebSocket clock sessions.",
	})
	clockCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "clock_commands_total", Help: "Clock commands received, by command.",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal, httpDurationSeconds, rateLimitedTotal,
		propagationDuration, propagationSatellites, keplerIterations, keplerNonConverged, ephemerisRequests,
		tleDatasetSatellites, tleDatasetAge, tleFetchTotal, tleReplacements,
		cacheHits, cacheMisses, cacheEvictions, cacheEntries, cacheSizeBytes, cacheGracePeriod, cacheRegenErrors, cacheRegenDuration,
		streamConnections, streamsActive, streamMessages, streamBytes, streamErrors, clockSessions, clockCommands,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// exactRoutes are label values used as-is.
var exactRoutes = map[string]bool{
	"/":                              true,
	"/healthz":                       true,
	"/readyz":                        true,
	"/metrics":                       true,
	"/api/v1/comets":                 true,
	"/api/v1/satellites":             true,
	"/api/v1/missions":               true,
	"/api/v1/bodies":                 true,
	"/api/v1/tle/metadata":           true,
	"/api/v1/tle/fetch":              true,
	"/api/v1/propagate":              true,
	"/api/v1/cache/keyframes/latest": true,
	"/api/v1/cache/stats":            true,
	"/api/v1/stream/scene":           true,
	"/api/v1/stream/keyframes":       true,
	"/api/v1/ws/clock":               true,
}

// paramRoutes collapse any value in a {placeholder} segment to one label.
var paramRoutes = [][]string{
	strings.Split("api/v1/comets/{id}/position", "/"),
	strings.Split("api/v1/comets/{id}/path", "/"),
	strings.Split("api/v1/orbits/{id}/path", "/"),
	strings.Split("api/v1/satellites/{norad_id}/position", "/"),
	strings.Split("api/v1/satellites/{norad_id}/groundtrack", "/"),
	strings.Split("api/v1/satellites/{norad_id}/passes", "/"),
	strings.Split("api/v1/missions/{id}/position", "/"),
	strings.Split("api/v1/missions/{id}/milestones", "/"),
	strings.Split("api/v1/bodies/{name}/position", "/"),
	strings.Split("api/v1/tle/{norad_id}", "/"),
}

// NormalizeRoute maps a request path to a bounded set of label values.
// Unknown paths (scanners, typos) all become "other".
func NormalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
outer:
	for _, pattern := range paramRoutes {
		if len(pattern) != len(segs) {
			continue
		}
		for i, p := range pattern {
			if strings.HasPrefix(p, "{") {
				if segs[i] == "" {
					continue outer
				}
				continue
			}
			if p != segs[i] {
				continue outer
			}
		}
		return "/" + strings.Join(pattern, "/")
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers flush through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets WebSocket upgrades through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(rw.ResponseWriter).Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := NormalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// IncRateLimited counts a request rejected by the rate limiter.
func IncRateLimited(path string) { rateLimitedTotal.WithLabelValues(NormalizeRoute(path)).Inc() }

// RecordPropagation records one batch propagation.
func RecordPropagation(model string, d time.Duration, success, errors int) {
	propagationDuration.WithLabelValues(model).Observe(d.Seconds())
	propagationSatellites.WithLabelValues(model, "success").Add(float64(success))
	propagationSatellites.WithLabelValues(model, "error").Add(float64(errors))
}

// ObserveKeplerSolve records the iteration count of one Kepler solve.
func ObserveKeplerSolve(iterations int, converged bool) {
	keplerIterations.Observe(float64(iterations))
	if !converged {
		keplerNonConverged.Inc()
	}
}

// ObserveEphemeris records a body lookup; result is ok, stale or error.
func ObserveEphemeris(body, result string) { ephemerisRequests.WithLabelValues(body, result).Inc() }

// SetTLEDatasetCount sets the number of satellites in the current dataset.
func SetTLEDatasetCount(n int) { tleDatasetSatellites.Set(float64(n)) }

// SetTLEDatasetAge sets the dataset age in seconds.
func SetTLEDatasetAge(seconds float64) { tleDatasetAge.Set(seconds) }

// IncTLEFetch counts a fetch attempt; result is success, error or cache.
func IncTLEFetch(result string) { tleFetchTotal.WithLabelValues(result).Inc() }

// IncTLEReplacements counts a single-satellite line replacement.
func IncTLEReplacements() { tleReplacements.Inc() }

// IncCacheHits counts a keyframe cache hit.
func IncCacheHits() { cacheHits.Inc() }

// IncCacheMisses counts a keyframe cache miss.
func IncCacheMisses() { cacheMisses.Inc() }

// AddCacheEvictions counts evicted keyframes.
func AddCacheEvictions(n int) { cacheEvictions.Add(float64(n)) }

// SetCacheEntries sets the number of cached keyframes.
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }

// SetCacheSizeBytes sets the estimated cache footprint.
func SetCacheSizeBytes(n int64) { cacheSizeBytes.Set(float64(n)) }

// SetCacheGracePeriodActive flags a running cutover rebuild.
func SetCacheGracePeriodActive(active bool) {
	if active {
		cacheGracePeriod.Set(1)
		return
	}
	cacheGracePeriod.Set(0)
}

// IncCacheRegenerationErrors counts a failed keyframe generation.
func IncCacheRegenerationErrors() { cacheRegenErrors.Inc() }

// ObserveCacheRegenerationDuration records a generation or rebuild duration.
func ObserveCacheRegenerationDuration(d time.Duration) { cacheRegenDuration.Observe(d.Seconds()) }

// IncStreamConnections counts a stream event (connect or disconnect).
func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }

// IncStreamsActive increments the open stream gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the open stream gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamMessages counts a message sent to a stream client.
func IncStreamMessages() { streamMessages.Inc() }

// AddStreamBytes counts bytes sent to stream clients.
func AddStreamBytes(n int64) { streamBytes.Add(float64(n)) }

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) { streamErrors.WithLabelValues(reason).Inc() }

// IncClockSessions increments the open clock session gauge.
func IncClockSessions() { clockSessions.Inc() }

// DecClockSessions decrements the open clock session gauge.
func DecClockSessions() { clockSessions.Dec() }

// IncClockCommand counts a clock command.
func IncClockCommand(command string) { clockCommands.WithLabelValues(command).Inc() }
