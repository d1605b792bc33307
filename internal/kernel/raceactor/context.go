package raceactor

import (
	"github.com/wxflow/raceway/internal/config"
	"github.com/wxflow/raceway/internal/kernel/bus"
	"github.com/wxflow/raceway/internal/kernel/clock"
)

// Context is handed to an actor's OnInitialize hook. It is the narrow,
// explicit handle to universe-owned facilities: actors reach the Bus,
// Clock, and their own configuration only through this value, never
// through ambient package-level state.
type Context struct {
	UniverseName string
	Bus          *bus.Bus
	Clock        *clock.Clock
	Settings     *config.Node

	// Self is the actor's own handle, populated by the kernel before
	// OnInitialize runs. Behaviors publish and schedule through it so
	// the publisher trait's state checks and write-to defaults apply.
	Self *RaceActor
}
