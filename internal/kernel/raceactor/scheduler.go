package raceactor

import (
	"context"
	"sync"
	"time"

	"github.com/wxflow/raceway/internal/kernel/bus"
)

// CancelHandle cancels a scheduled delivery. Cancel is best-effort: a
// delivery already in flight when Cancel is called may still arrive.
type CancelHandle interface {
	Cancel()
}

type timerHandle struct {
	timer *time.Timer
}

func (h *timerHandle) Cancel() { h.timer.Stop() }

type tickerHandle struct {
	stop chan struct{}
	once sync.Once
}

func (h *tickerHandle) Cancel() {
	h.once.Do(func() { close(h.stop) })
}

// scheduler converts simulated-time delays into wall-clock timers scaled
// through the owning actor's Universe clock, delivering each firing as a
// bus event told straight to the owner's mailbox so scheduled work flows
// through the same single-threaded mailbox as everything else.
type scheduler struct {
	owner *RaceActor

	mu      sync.Mutex
	handles []CancelHandle
}

func newScheduler(owner *RaceActor) *scheduler {
	return &scheduler{owner: owner}
}

func (s *scheduler) track(h CancelHandle) CancelHandle {
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	return h
}

func (s *scheduler) cancelAll() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}

func (s *scheduler) once(simDuration time.Duration, channel bus.Channel, payload any) CancelHandle {
	wallDelay := s.owner.clock.ToWallDuration(simDuration)

	t := time.AfterFunc(wallDelay, func() {
		s.owner.Tell(context.Background(), bus.BusEvent{
			Channel: channel, Payload: payload, Sender: s.owner.name,
		})
	})

	return s.track(&timerHandle{timer: t})
}

func (s *scheduler) recurring(initial, period time.Duration, channel bus.Channel, payload any) CancelHandle {
	wallInitial := s.owner.clock.ToWallDuration(initial)
	wallPeriod := s.owner.clock.ToWallDuration(period)

	stop := make(chan struct{})
	handle := &tickerHandle{stop: stop}

	go func() {
		timer := time.NewTimer(wallInitial)
		defer timer.Stop()

		for {
			select {
			case <-stop:
				return
			case <-timer.C:
				s.owner.Tell(context.Background(), bus.BusEvent{
					Channel: channel, Payload: payload, Sender: s.owner.name,
				})
				timer.Reset(wallPeriod)
			}
		}
	}()

	return s.track(handle)
}
