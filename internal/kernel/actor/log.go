package actor

import "github.com/btcsuite/btclog/v2"

// log is the package-level subsystem logger. It defaults to a disabled
// logger so the package is silent until UseLogger is called by the
// embedding binary.
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by this package. Call this
// before spawning any actors so lifecycle and mailbox events are captured
// by the caller's logging backend.
func UseLogger(logger btclog.Logger) {
	log = logger
}
