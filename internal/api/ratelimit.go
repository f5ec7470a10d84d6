package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/star/orrery/internal/httputil"
	"github.com/star/orrery/internal/metrics"
)

// RateLimitConfig bounds compute-heavy requests per client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64 // 0 disables limiting
	Burst             int
	TrustProxy        bool // read client IP from X-Forwarded-For
}

const (
	limiterIdle       = 10 * time.Minute
	limiterPruneAbove = 10000
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter keeps one token bucket per client IP.
type ipLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func newIPLimiter(cfg RateLimitConfig) *ipLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &ipLimiter{cfg: cfg, visitors: make(map[string]*visitor), now: time.Now}
}

func (l *ipLimiter) allow(ip string) bool {
	if l.cfg.RequestsPerSecond <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		if len(l.visitors) >= limiterPruneAbove {
			l.pruneLocked(now)
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// pruneLocked drops visitors idle for longer than limiterIdle.
func (l *ipLimiter) pruneLocked(now time.Time) {
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > limiterIdle {
			delete(l.visitors, ip)
		}
	}
}

// limited wraps a compute-heavy handler with the per-IP rate limit.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.ClientIP(r, s.deps.RateLimit.TrustProxy)
		if !s.limiter.allow(ip) {
			metrics.IncRateLimited(r.URL.Path)
			s.logger.Warn("rate limit exceeded", "path", r.URL.Path, "remote_ip", ip)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}
