package cache

import (
	"context"
	"time"

	"github.com/star/orrery/internal/metrics"
)

// Start runs the maintenance loop until ctx is cancelled: wait for a
// dataset, fill the window, then every step extend the leading edge, evict
// the trailing edge and rebuild on dataset change.
func (c *KeyframeCache) Start(ctx context.Context) {
	if !c.waitForDataset(ctx) {
		return
	}
	c.rebuild(ctx)

	ticker := time.NewTicker(c.config.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("keyframe generator stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// waitForDataset polls the store once a second. Returns false if ctx ends
// first.
func (c *KeyframeCache) waitForDataset(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("keyframe cache waiting for TLE data")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.store.Get() != nil {
				c.logger.Info("TLE data available, filling keyframe window")
				return true
			}
		}
	}
}

func (c *KeyframeCache) frameCount() int {
	return int(c.config.Horizon/c.config.Step) + 1
}

// tick runs one maintenance iteration.
func (c *KeyframeCache) tick(ctx context.Context) {
	if c.datasetChanged() {
		c.rebuild(ctx)
		return
	}
	c.extend(ctx)
	c.evictExpired()
}

// extend generates the frame at now+horizon if it is missing.
func (c *KeyframeCache) extend(ctx context.Context) {
	target := c.RoundToStep(c.now().Add(c.config.Horizon))

	c.mu.RLock()
	_, ok := c.entries[target]
	c.mu.RUnlock()
	if ok {
		return
	}

	start := time.Now()
	kf, err := c.prop.PropagateToTime(ctx, target)
	duration := time.Since(start)
	if err != nil {
		c.logger.Warn("leading edge generation failed", "timestamp", target.Format(time.RFC3339), "error", err)
		metrics.IncCacheRegenerationErrors()
		return
	}

	c.put(kf)
	metrics.ObserveCacheRegenerationDuration(duration)
	c.logger.Debug("leading edge generated", "timestamp", target.Format(time.RFC3339), "duration_ms", duration.Milliseconds())
}
