package timectrl

import (
	"context"
	"time"
)

// Scheduler drives a host loop, calling tick with the wall time of each
// frame until ctx is cancelled.
type Scheduler interface {
	Run(ctx context.Context, tick func(wallNow time.Time))
}

// TickerScheduler fires at a fixed wall-clock interval.
type TickerScheduler struct {
	Interval time.Duration
}

// Run blocks until ctx is done.
func (s TickerScheduler) Run(ctx context.Context, tick func(wallNow time.Time)) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second / 60
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tick(now)
		}
	}
}

// Drive runs c from s until ctx is cancelled.
func Drive(ctx context.Context, s Scheduler, c *Controller) {
	s.Run(ctx, func(wallNow time.Time) { c.Tick(wallNow) })
}
