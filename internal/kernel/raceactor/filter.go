package raceactor

import (
	"sync"

	"github.com/wxflow/raceway/internal/kernel/bus"
)

// PublishFilter inspects one outbound publication before it reaches the
// Bus. Returning false drops the payload; a rejection is not an error,
// the payload simply never leaves the actor.
type PublishFilter func(channel bus.Channel, payload any) bool

// filterChain is the publisher-side filter pipeline. Filters are usually
// installed from an actor's OnInitialize (built from its own
// configuration keys), but publishes can also arrive from scheduler
// timer goroutines, so reads and appends are guarded.
type filterChain struct {
	mu      sync.RWMutex
	filters []PublishFilter
}

func (fc *filterChain) add(f PublishFilter) {
	fc.mu.Lock()
	fc.filters = append(fc.filters, f)
	fc.mu.Unlock()
}

// pass runs the chain in installation order, stopping at the first
// filter that rejects.
func (fc *filterChain) pass(channel bus.Channel, payload any) bool {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	for _, f := range fc.filters {
		if !f(channel, payload) {
			return false
		}
	}

	return true
}
