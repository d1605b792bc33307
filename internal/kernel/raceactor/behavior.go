package raceactor

import (
	"context"

	"github.com/wxflow/raceway/internal/kernel/bus"
)

// Behavior is the kernel-to-actor interface: a small set of hook
// functions a domain actor class implements, plus the message-handling
// partial dispatcher. Capabilities compose instead of inheriting — a
// concrete actor embeds Base and overrides only the hooks its class
// needs.
type Behavior interface {
	// OnInitialize runs once, Initializing->Initialized. rc gives access
	// to the owning Universe's Bus, Clock, and this actor's own
	// configuration sub-tree.
	OnInitialize(ctx context.Context, rc *Context) error

	// OnStart runs once, Initialized->Running.
	OnStart(ctx context.Context) error

	// OnPause runs on Running->Paused.
	OnPause(ctx context.Context) error

	// OnResume runs on Paused->Running.
	OnResume(ctx context.Context) error

	// OnTerminate runs once, *->Terminated. Termination is best-effort:
	// an error here is logged but does not prevent the transition.
	OnTerminate(ctx context.Context) error

	// HandleMessage is the partial dispatcher for bus deliveries. An
	// error here is a MessageHandlingError: it is logged and the actor
	// resumes processing its next message, it never escalates.
	HandleMessage(ctx context.Context, event bus.BusEvent) error
}

// Base provides no-op implementations of every Behavior hook so concrete
// actor classes can embed it and override only what they need.
type Base struct{}

// OnInitialize is a no-op by default.
func (Base) OnInitialize(context.Context, *Context) error { return nil }

// OnStart is a no-op by default.
func (Base) OnStart(context.Context) error { return nil }

// OnPause is a no-op by default.
func (Base) OnPause(context.Context) error { return nil }

// OnResume is a no-op by default.
func (Base) OnResume(context.Context) error { return nil }

// OnTerminate is a no-op by default.
func (Base) OnTerminate(context.Context) error { return nil }

// HandleMessage drops the message by default; actors that read-from any
// channel must override this.
func (Base) HandleMessage(context.Context, bus.BusEvent) error { return nil }

var _ Behavior = Base{}
