package driver

import "errors"

// ExitCode maps an error returned by Run onto the raced process exit
// codes: 0 normal, 1 configuration error, 2 actor
// creation/initialization failure, 3 runtime fatal.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, ErrConfiguration):
		return 1
	case errors.Is(err, ErrActorFailure):
		return 2
	default:
		return 3
	}
}

var (
	// ErrConfiguration wraps any failure to load or validate a
	// configuration file, before any actor is constructed.
	ErrConfiguration = errors.New("driver: configuration error")

	// ErrActorFailure wraps a non-optional actor's construction or
	// lifecycle failure, aggregated from the Master.
	ErrActorFailure = errors.New("driver: actor creation or initialization failure")

	// ErrRuntimeFatal wraps an unhandled supervisor escalation during
	// Start/run/Terminate.
	ErrRuntimeFatal = errors.New("driver: runtime fatal error")
)
