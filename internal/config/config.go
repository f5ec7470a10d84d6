// Package config loads service settings through viper. Every key can be set
// from the environment (ORRERY_ prefix, dots become underscores, so
// cache.step is ORRERY_CACHE_STEP) or from a YAML/JSON/TOML file named by
// ORRERY_CONFIG. The environment wins over the file.
//
// Invalid values are logged at Warn and replaced by the default; only auth
// misconfiguration is fatal.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/orrery/internal/api"
	"github.com/star/orrery/internal/auth"
	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/celestial"
	"github.com/star/orrery/internal/observability"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/stream"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "ORRERY"

// Config is the complete service configuration.
type Config struct {
	HTTPAddr        string
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	Auth        auth.Config
	TLE         api.TLEConfig
	RateLimit   api.RateLimitConfig
	Propagation propagation.PropConfig
	Cache       cache.Config
	Stream      stream.Config
	Celestial   celestial.Config
	Tracing     observability.TracingConfig
}

// loader reads keys from one viper instance and reports bad values.
type loader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads the configuration. It fails only when the config file cannot
// be read or auth is misconfigured.
func Load(logger *slog.Logger) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		logger.Info("config file loaded", "path", path)
	}

	l := loader{v: v, logger: logger}

	cfg := Config{
		HTTPAddr:        l.str("http.addr", ":8080"),
		LogLevel:        l.level("log.level", slog.LevelInfo),
		ShutdownTimeout: l.seconds("http.shutdown_timeout", 5*time.Second),
	}

	var err error
	if cfg.Auth, err = l.auth(); err != nil {
		return cfg, err
	}
	cfg.TLE = l.tle()
	cfg.RateLimit = l.rateLimit()
	cfg.Propagation = l.propagation()
	cfg.Cache = l.cache(cfg.Propagation)
	cfg.Stream = l.stream(cfg.RateLimit.TrustProxy)
	cfg.Celestial = celestial.Config{VSOP87Dir: l.str("ephemeris.vsop87_dir", "")}
	cfg.Tracing = l.tracing()
	return cfg, nil
}

func (l loader) set(key string) (string, bool) {
	if !l.v.IsSet(key) {
		return "", false
	}
	raw := strings.TrimSpace(l.v.GetString(key))
	return raw, raw != ""
}

func (l loader) warn(key, raw string, def any) {
	l.logger.Warn("invalid "+envName(key)+" value, using default", "value", raw, "default", def)
}

func (l loader) str(key, def string) string {
	if raw, ok := l.set(key); ok {
		return raw
	}
	return def
}

// posInt reads an integer ≥ 1.
func (l loader) posInt(key string, def int) int {
	raw, ok := l.set(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		l.warn(key, raw, def)
		return def
	}
	return n
}

// nonNegInt reads an integer ≥ 0.
func (l loader) nonNegInt(key string, def int) int {
	raw, ok := l.set(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		l.warn(key, raw, def)
		return def
	}
	return n
}

// seconds reads a positive whole number of seconds.
func (l loader) seconds(key string, def time.Duration) time.Duration {
	n := l.posInt(key, int(def/time.Second))
	return time.Duration(n) * time.Second
}

// duration reads a Go duration string such as "250ms".
func (l loader) duration(key string, def time.Duration) time.Duration {
	raw, ok := l.set(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		l.warn(key, raw, def.String())
		return def
	}
	return d
}

func (l loader) float(key string, def, lo, hi float64) float64 {
	raw, ok := l.set(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < lo || f > hi {
		l.warn(key, raw, def)
		return def
	}
	return f
}

func (l loader) boolean(key string, def bool) bool {
	raw, ok := l.set(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		l.warn(key, raw, def)
		return def
	}
	return b
}

func (l loader) level(key string, def slog.Level) slog.Level {
	raw, ok := l.set(key)
	if !ok {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		l.warn(key, raw, def.String())
		return def
	}
	return lvl
}

// list reads a comma-separated string from the environment or a list
// from a config file.
func (l loader) list(key string, def []string) []string {
	if !l.v.IsSet(key) {
		return def
	}
	var items []string
	if s, ok := l.v.Get(key).(string); ok {
		items = strings.Split(s, ",")
	} else {
		items = l.v.GetStringSlice(key)
	}
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func (l loader) auth() (auth.Config, error) {
	cfg := auth.Config{}
	if raw, ok := l.set("auth.enabled"); ok {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, errors.New(envName("auth.enabled") + " must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}
	if cfg.Enabled {
		cfg.Token = l.str("auth.token", "")
		if cfg.Token == "" {
			return cfg, errors.New(envName("auth.token") + " is required when auth is enabled")
		}
		l.logger.Info("auth enabled")
	}
	return cfg, nil
}

func (l loader) tle() api.TLEConfig {
	cfg := api.TLEConfig{
		EnableFetch: l.boolean("tle.enable_fetch", true),
		SourceURL:   l.str("tle.source_url", ""),
		ExtraSourceURLs: l.list("tle.extra_urls", []string{
			"https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
		}),
		CacheDir: l.str("tle.cache_dir", "/tmp/orrery/tle"),
		MaxFiles: l.posInt("tle.max_files", 5),
		MaxAge:   l.seconds("tle.max_age", 24*time.Hour),
	}
	l.logger.Info("TLE config",
		"enable_fetch", cfg.EnableFetch,
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraSourceURLs,
		"cache_dir", cfg.CacheDir,
	)
	return cfg
}

func (l loader) rateLimit() api.RateLimitConfig {
	cfg := api.RateLimitConfig{
		RequestsPerSecond: l.float("ratelimit.rps", 5, 0, 10000),
		Burst:             l.posInt("ratelimit.burst", 20),
		TrustProxy:        l.boolean("http.trust_proxy", false),
	}
	l.logger.Info("rate limit config",
		"requests_per_second", cfg.RequestsPerSecond,
		"burst", cfg.Burst,
		"trust_proxy", cfg.TrustProxy,
	)
	return cfg
}

func (l loader) propagation() propagation.PropConfig {
	cfg := propagation.PropConfig{
		Workers: l.posInt("prop.workers", runtime.NumCPU()),
		Step:    l.seconds("keyframe.step", 5*time.Second),
		Horizon: l.seconds("keyframe.horizon", 600*time.Second),
		Model:   propagation.ModelSimple,
	}
	if raw, ok := l.set("prop.model"); ok {
		m, err := propagation.ParseModel(raw)
		if err != nil {
			l.warn("prop.model", raw, string(cfg.Model))
		} else {
			cfg.Model = m
		}
	}
	l.logger.Info("propagation config",
		"workers", cfg.Workers,
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
		"model", cfg.Model,
	)
	return cfg
}

func (l loader) cache(prop propagation.PropConfig) cache.Config {
	cfg := cache.Config{
		Step:        l.seconds("cache.step", prop.Step),
		Horizon:     l.seconds("cache.horizon", prop.Horizon),
		GracePeriod: l.seconds("cache.grace_period", 30*time.Second),
		Buffer:      l.seconds("cache.buffer", 60*time.Second),
	}
	l.logger.Info("cache config",
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
		"grace_period_seconds", cfg.GracePeriod.Seconds(),
		"buffer_seconds", cfg.Buffer.Seconds(),
	)
	return cfg
}

func (l loader) stream(trustProxy bool) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: l.posInt("stream.max_concurrent", 10),
		MaxTotal:           l.posInt("stream.max_total", 1000),
		BandwidthLimit:     l.nonNegInt("stream.bandwidth_limit", 1048576),
		KeepaliveInterval:  l.seconds("stream.keepalive_interval", 30*time.Second),
		TrustProxy:         trustProxy,
		FrameInterval:      l.duration("stream.frame_interval", time.Second),
		MaxSatellites:      l.posInt("stream.max_satellites", 50),
		MaxSpeed:           l.float("stream.max_speed", 1e7, 1, 1e9),
		AllowedOrigins:     l.list("stream.allowed_origins", nil),
	}
	l.logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_total", cfg.MaxTotal,
		"bandwidth_limit", cfg.BandwidthLimit,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"frame_interval", cfg.FrameInterval.String(),
		"max_satellites", cfg.MaxSatellites,
	)
	return cfg
}

func (l loader) tracing() observability.TracingConfig {
	cfg := observability.TracingConfig{
		Enabled:     l.boolean("tracing.enabled", false),
		ServiceName: l.str("tracing.service_name", "orrery"),
		Exporter:    strings.ToLower(l.str("tracing.exporter", "stdout")),
		Endpoint:    l.str("tracing.endpoint", ""),
		SampleRatio: l.float("tracing.sample_ratio", 1, 0, 1),
	}
	return cfg
}
