// Package timectrl owns the simulation clock: play/pause, a speed
// multiplier, explicit time jumps and the per-tick advance rule. Every other
// component is queried with a time value produced here.
package timectrl

import (
	"sync"
	"time"
)

// Clock exposes the current simulation time to read-only consumers.
type Clock interface {
	Now() time.Time
}

// Snapshot is a copy of the controller state at one instant.
type Snapshot struct {
	Now     time.Time `json:"now"`
	Running bool      `json:"running"`
	Speed   float64   `json:"speed"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithWallClock injects the wall clock used to refresh the last-tick
// reference. Tests use it to drive time deterministically.
func WithWallClock(fn func() time.Time) Option {
	return func(c *Controller) { c.wall = fn }
}

// WithResetTime fixes the time Reset returns to. Without it Reset jumps to
// the current wall-clock time.
func WithResetTime(t time.Time) Option {
	return func(c *Controller) { c.resetTo = t }
}

// WithSpeed sets the initial speed multiplier.
func WithSpeed(speed float64) Option {
	return func(c *Controller) { c.speed = speed }
}

// WithPaused starts the controller paused.
func WithPaused() Option {
	return func(c *Controller) { c.running = false }
}

// Controller is the simulation clock. It starts running at 1× unless
// configured otherwise and is safe for concurrent use.
type Controller struct {
	mu       sync.RWMutex
	now      time.Time
	running  bool
	speed    float64
	lastTick time.Time

	wall    func() time.Time
	resetTo time.Time

	listeners []func(time.Time)
}

// New creates a controller whose simulated time starts at start.
func New(start time.Time, opts ...Option) *Controller {
	c := &Controller{
		now:     start,
		running: true,
		speed:   1,
		wall:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.lastTick = c.wall()
	return c
}

// Now returns the current simulated time.
func (c *Controller) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Running reports whether time is advancing.
func (c *Controller) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Speed returns the speed multiplier.
func (c *Controller) Speed() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speed
}

// Snapshot returns the full state under one lock.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{Now: c.now, Running: c.running, Speed: c.speed}
}

// Play starts the clock without changing simulated time.
func (c *Controller) Play() {
	c.mu.Lock()
	c.running = true
	c.lastTick = c.wall()
	c.mu.Unlock()
}

// Pause stops the clock without changing simulated time.
func (c *Controller) Pause() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// Toggle flips between running and paused and returns the new state.
func (c *Controller) Toggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = !c.running
	c.lastTick = c.wall()
	return c.running
}

// SetSpeed sets the multiplier applied to wall-clock deltas. Negative
// values run time backwards.
func (c *Controller) SetSpeed(multiplier float64) {
	c.mu.Lock()
	c.speed = multiplier
	c.lastTick = c.wall()
	c.mu.Unlock()
}

// SetTime jumps to t, keeping the running state.
func (c *Controller) SetTime(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Reset returns to the reset origin at 1× and starts running.
func (c *Controller) Reset() {
	c.mu.Lock()
	origin := c.resetTo
	if origin.IsZero() {
		origin = c.wall()
	}
	c.now = origin
	c.speed = 1
	c.running = true
	c.lastTick = c.wall()
	c.mu.Unlock()
}

// AddListener registers fn to receive the simulated time after every
// Advance or Tick. Listeners run on the caller's goroutine.
func (c *Controller) AddListener(fn func(time.Time)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Advance applies one tick of wallDelta: simulated time moves by
// wallDelta × speed while running. The last-tick reference is refreshed
// either way.
func (c *Controller) Advance(wallDelta time.Duration) time.Time {
	c.mu.Lock()
	now := c.advanceLocked(wallDelta)
	c.lastTick = c.wall()
	listeners := c.listeners
	c.mu.Unlock()

	c.notify(listeners, now)
	return now
}

// Tick advances by the wall time elapsed since the previous tick.
// Backwards wall-clock steps count as zero.
func (c *Controller) Tick(wallNow time.Time) time.Time {
	c.mu.Lock()
	delta := wallNow.Sub(c.lastTick)
	if delta < 0 {
		delta = 0
	}
	now := c.advanceLocked(delta)
	c.lastTick = wallNow
	listeners := c.listeners
	c.mu.Unlock()

	c.notify(listeners, now)
	return now
}

func (c *Controller) advanceLocked(wallDelta time.Duration) time.Time {
	if c.running {
		c.now = c.now.Add(time.Duration(float64(wallDelta) * c.speed))
	}
	return c.now
}

func (c *Controller) notify(listeners []func(time.Time), now time.Time) {
	for _, fn := range listeners {
		fn(now)
	}
}
