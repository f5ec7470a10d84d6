package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/orrery/internal/api"
	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/celestial"
	"github.com/star/orrery/internal/config"
	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/observability"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/scene"
	"github.com/star/orrery/internal/stream"
	"github.com/star/orrery/internal/tle"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}

	store := tle.NewStore()
	tleCache := tle.NewCache(cfg.TLE.CacheDir, cfg.TLE.MaxFiles)
	if ds, err := tleCache.LoadDataset("cache", logger); err != nil {
		logger.Info("no TLE cache found, starting without TLE data", "error", err)
	} else {
		store.Set(ds)
		metrics.SetTLEDatasetCount(len(ds.Satellites))
		logger.Info("loaded TLE data from cache", "count", len(ds.Satellites), "cached_at", ds.FetchedAt.Format(time.RFC3339))
	}

	var fetcher *tle.Fetcher
	if cfg.TLE.EnableFetch {
		fetcher = tle.NewFetcher(cfg.TLE.SourceURL, logger, cfg.TLE.ExtraSourceURLs...)
	}

	prop := propagation.NewPropagator(store, tle.NewElementCache(), cfg.Propagation, logger)
	kfCache := cache.NewKeyframeCache(cfg.Cache, prop, store, logger)

	eph, err := celestial.NewMeeusEphemeris(cfg.Celestial, logger)
	if err != nil {
		logger.Error("ephemeris setup failed", "error", err)
		os.Exit(1)
	}
	bodies := celestial.NewProvider(eph, logger)

	scenes := scene.NewBuilder(prop, bodies, logger)
	streams := stream.NewHandler(kfCache, store, scenes, cfg.Stream, logger)

	srv := api.NewServer(cfg.HTTPAddr, logger, api.Deps{
		Store:     store,
		TLECache:  tleCache,
		Fetcher:   fetcher,
		TLE:       cfg.TLE,
		RateLimit: cfg.RateLimit,
		Auth:      cfg.Auth,
		Prop:      prop,
		Cache:     kfCache,
		Bodies:    bodies,
		Streams:   streams,
	})

	// Start cache background worker.
	go kfCache.Start(ctx)

	if fetcher != nil {
		go func() {
			status, err := srv.RefreshTLE(ctx, false)
			if err != nil {
				logger.Warn("startup TLE fetch failed, serving cached data", "error", err)
				return
			}
			logger.Info("startup TLE fetch", "status", status)
		}()
	}

	// Background goroutine to update TLE dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetTLEDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTPAddr,
			"auth_enabled", cfg.Auth.Enabled,
			"tle_fetch_enabled", cfg.TLE.EnableFetch,
			"tracing_enabled", cfg.Tracing.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	observability.ShutdownWithTimeout(shutdownCtx, shutdownTracing, logger)

	logger.Info("server stopped")
}
