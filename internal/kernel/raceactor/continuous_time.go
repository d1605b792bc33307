package raceactor

import (
	"time"

	"github.com/wxflow/raceway/internal/kernel/clock"
)

// ContinuousTime is the capability actor classes embed when their logic
// follows the simulated timeline: it caches the last simulated instant
// observed on message arrival, converts simulated millisecond delays
// into wall-clock milliseconds for scheduling real-world waits, and can
// re-seed the universe clock from a message's own timestamp (replay
// actors seed simulated time from the first archived record they read).
//
// The capability is bound once in OnInitialize and then touched only
// from the owning actor's message handlers, so it needs no locking of
// its own: the mailbox already guarantees one message at a time.
type ContinuousTime struct {
	clock   *clock.Clock
	lastSim time.Time
}

// Bind attaches the universe clock, normally rc.Clock inside
// OnInitialize.
func (ct *ContinuousTime) Bind(c *clock.Clock) {
	ct.clock = c
	ct.lastSim = c.Now()
}

// ObserveNow reads the current simulated instant, caches it as the
// last-seen time, and returns it. Handlers call this on message arrival.
func (ct *ContinuousTime) ObserveNow() time.Time {
	ct.lastSim = ct.clock.Now()
	return ct.lastSim
}

// LastSeen returns the simulated instant cached by the most recent
// ObserveNow or ResetClock, without advancing it.
func (ct *ContinuousTime) LastSeen() time.Time {
	return ct.lastSim
}

// ToWallTimeMillis converts a simulated delay in milliseconds into the
// wall-clock milliseconds it occupies at the clock's current scale,
// for handing to real-world timers.
func (ct *ContinuousTime) ToWallTimeMillis(simMillis int64) int64 {
	simDur := time.Duration(simMillis) * time.Millisecond
	return ct.clock.ToWallDuration(simDur).Milliseconds()
}

// ResetClock re-seeds the universe clock so that simulated time
// continues from simTime, and caches it as the last-seen instant.
func (ct *ContinuousTime) ResetClock(simTime time.Time) {
	ct.clock.Reset(simTime)
	ct.lastSim = simTime
}
