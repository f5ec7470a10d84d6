package cache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/star/orrery/internal/metrics"
	"github.com/star/orrery/internal/observability"
)

// datasetChanged reports whether the store publishes a different dataset
// than the one the cached frames were built from.
func (c *KeyframeCache) datasetChanged() bool {
	ds := c.store.Get()
	return ds != nil && ds != c.builtFrom.Load()
}

// rebuild regenerates the whole window from the current dataset into a fresh
// map and swaps it in. Reads keep hitting the old frames until the swap. The
// rebuild is bounded by the grace period; on timeout the partial map is
// still swapped in because old frames no longer match the dataset.
func (c *KeyframeCache) rebuild(ctx context.Context) {
	ds := c.store.Get()
	if ds == nil {
		return
	}

	old := c.builtFrom.Load()
	attrs := []any{"satellites", len(ds.Satellites), "fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339)}
	if old != nil {
		attrs = append(attrs, "previous_satellites", len(old.Satellites))
	}
	c.logger.Info("keyframe rebuild starting", attrs...)

	c.rebuilding.Store(true)
	metrics.SetCacheGracePeriodActive(true)
	defer func() {
		c.rebuilding.Store(false)
		metrics.SetCacheGracePeriodActive(false)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.config.GracePeriod)
	defer cancel()
	ctx, span := observability.StartSpan(ctx, "cache.rebuild",
		attribute.Int("satellites", len(ds.Satellites)))
	defer span.End()

	start := time.Now()
	from := c.RoundToStep(c.now())
	frames := c.frameCount()
	fresh := make(map[time.Time]*Entry, frames)

	for i := 0; i < frames; i++ {
		if ctx.Err() != nil {
			c.logger.Warn("keyframe rebuild interrupted", "generated", len(fresh), "frames", frames, "error", ctx.Err())
			break
		}
		target := from.Add(time.Duration(i) * c.config.Step)
		kf, err := c.prop.PropagateToTime(ctx, target)
		if err != nil {
			c.logger.Warn("rebuild propagation failed", "timestamp", target.Format(time.RFC3339), "error", err)
			metrics.IncCacheRegenerationErrors()
			continue
		}
		fresh[c.RoundToStep(kf.Timestamp)] = &Entry{Keyframe: kf, GeneratedAt: c.now()}
	}

	c.swap(fresh)
	c.builtFrom.Store(ds)
	span.SetAttributes(attribute.Int("entries", len(fresh)))

	duration := time.Since(start)
	metrics.ObserveCacheRegenerationDuration(duration)
	c.logger.Info("keyframe rebuild complete", "entries", len(fresh), "duration_ms", duration.Milliseconds())
}
