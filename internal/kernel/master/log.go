package master

import "github.com/btcsuite/btclog/v2"

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by the master package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
