package master

import "errors"

// Sentinel errors for actor construction failures, lifecycle timeouts,
// and the fatal escalation that aborts a Universe.
var (
	// ErrUnknownClass is an ActorConstructionError: the configured class
	// tag has no registered factory.
	ErrUnknownClass = errors.New("master: no factory registered for actor class")

	// ErrActorFailed is an ActorConstructionError or lifecycle failure for
	// a non-optional actor, aborting the Universe.
	ErrActorFailed = errors.New("master: non-optional actor failed")

	// ErrLifecycleTimeout is a LifecycleTimeout: an actor did not
	// acknowledge a lifecycle directive within the configured window.
	ErrLifecycleTimeout = errors.New("master: actor did not acknowledge lifecycle directive in time")
)
