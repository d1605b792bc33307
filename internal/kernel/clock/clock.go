// Package clock implements the universe-wide simulated-time source: a
// monotonic mapping from wall time to simulated time that supports
// pause/resume (by re-anchoring) and rescaling.
package clock

import (
	"sync"
	"time"

	"github.com/btcsuite/btclog/v2"
)

var log = btclog.Disabled

// UseLogger sets the subsystem logger for the clock package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Clock maps wall-clock reads to a simulated timeline. The timeline is
// defined by an epoch (the simulated instant corresponding to base), a wall
// anchor (base), and a scale (simulated seconds per real second). All three
// are rewritten atomically whenever the clock is paused, resumed, or
// rescaled, so Now() is a pure function of the current anchor state.
type Clock struct {
	mu sync.RWMutex

	epoch time.Time
	base  time.Time
	scale float64

	paused    bool
	pausedSim time.Time
	wallClock func() time.Time
}

// Option configures a new Clock.
type Option func(*Clock)

// WithWallClock overrides the wall-clock source, for deterministic tests.
func WithWallClock(fn func() time.Time) Option {
	return func(c *Clock) { c.wallClock = fn }
}

// New creates a Clock whose simulated time starts at epoch (default: the
// current wall time) and advances at scale simulated-seconds per real
// second (default: 1.0, i.e. real time).
func New(epoch time.Time, scale float64, opts ...Option) *Clock {
	if scale == 0 {
		scale = 1.0
	}

	c := &Clock{
		epoch:     epoch,
		scale:     scale,
		wallClock: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.base = c.wallClock()
	if c.epoch.IsZero() {
		c.epoch = c.base
	}

	return c
}

// Now returns the current simulated instant.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.nowLocked()
}

func (c *Clock) nowLocked() time.Time {
	if c.paused {
		return c.pausedSim
	}

	elapsedWall := c.wallClock().Sub(c.base)
	elapsedSim := time.Duration(float64(elapsedWall) * c.scale)

	return c.epoch.Add(elapsedSim)
}

// Elapsed returns the simulated duration that has passed since the given
// simulated instant.
func (c *Clock) Elapsed(since time.Time) time.Duration {
	return c.Now().Sub(since)
}

// Pause freezes the simulated clock at its current instant. Now() will
// return the same value until Resume is called.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return
	}

	c.pausedSim = c.nowLocked()
	c.paused = true

	log.Debugf("clock paused at sim=%s", c.pausedSim)
}

// Resume re-anchors the clock to the current wall time so that simulated
// time continues advancing from where it was paused, rather than jumping
// forward by the pause duration.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused {
		return
	}

	c.epoch = c.pausedSim
	c.base = c.wallClock()
	c.paused = false

	log.Debugf("clock resumed at sim=%s", c.epoch)
}

// Rescale changes the simulated-seconds-per-real-second factor. The current
// simulated instant is preserved by re-anchoring epoch/base, so the change
// takes effect at the next tick rather than retroactively stretching
// already-elapsed time.
func (c *Clock) Rescale(factor float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if factor == 0 {
		factor = 1.0
	}

	if !c.paused {
		c.epoch = c.nowLocked()
		c.base = c.wallClock()
	}

	c.scale = factor

	log.Debugf("clock rescaled to factor=%f", factor)
}

// Reset re-seeds the simulated timeline so that the current instant
// becomes simTime, advancing at the existing scale from here. Replay
// actors use this to seed the clock from the first archived record's
// timestamp. A paused clock stays paused, frozen at the new instant.
func (c *Clock) Reset(simTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch = simTime
	c.base = c.wallClock()

	if c.paused {
		c.pausedSim = simTime
	}

	log.Debugf("clock reset to sim=%s", simTime)
}

// ToWallDuration converts a simulated-time duration into the real-time
// duration it corresponds to at the clock's current scale. Used by actors
// to convert scheduleOnce/scheduleRecurring sim-durations into wall-clock
// timer delays.
func (c *Clock) ToWallDuration(simDuration time.Duration) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.scale == 0 {
		return simDuration
	}

	return time.Duration(float64(simDuration) / c.scale)
}

// IsPaused reports whether the clock is currently paused.
func (c *Clock) IsPaused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.paused
}
