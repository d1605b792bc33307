// Package master implements the Master: the supervisor that constructs
// every actor named in a Universe's configuration and drives each through
// the lifecycle phases (Initialize, Start, Pause/Resume, Terminate) under
// a strict sequential phase barrier.
package master

import (
	"context"
	"fmt"
	"time"

	"github.com/wxflow/raceway/internal/config"
	"github.com/wxflow/raceway/internal/kernel/actor"
	"github.com/wxflow/raceway/internal/kernel/bus"
	"github.com/wxflow/raceway/internal/kernel/clock"
	"github.com/wxflow/raceway/internal/kernel/raceactor"
	"github.com/wxflow/raceway/internal/kernel/remote"
)

// Options configures a Master.
type Options struct {
	// PhaseTimeout bounds how long any single actor has to acknowledge
	// Initialize/Start/Pause/Resume before it is marked Failed.
	PhaseTimeout time.Duration

	// TerminateGrace bounds how long an actor has to acknowledge
	// Terminate before the Master force-kills it.
	TerminateGrace time.Duration

	// ShowExceptions, from the universe's show-exceptions key, makes
	// every actor's message-handler failures log with full payload
	// context.
	ShowExceptions bool
}

// DefaultOptions returns the Master's default phase timeouts.
func DefaultOptions() Options {
	return Options{
		PhaseTimeout:   10 * time.Second,
		TerminateGrace: 5 * time.Second,
	}
}

type entry struct {
	spec    config.ActorSpec
	actor   *raceactor.RaceActor
	skipped bool
}

// Master owns the phased lifecycle of every actor in one Universe.
type Master struct {
	universeName string
	bus          *bus.Bus
	clock        *clock.Clock
	registry     *Registry
	opts         Options
	dlo          actor.ActorRef[actor.Message, any]

	entries []*entry
}

// New constructs a Master bound to one Universe's Bus and Clock.
func New(universeName string, b *bus.Bus, c *clock.Clock, registry *Registry, opts Options) *Master {
	return &Master{
		universeName: universeName,
		bus:          b,
		clock:        c,
		registry:     registry,
		opts:         opts,
		dlo:          newDeadLetterRef(b),
	}
}

// Actors returns every successfully created actor, in configuration order.
func (m *Master) Actors() []*raceactor.RaceActor {
	out := make([]*raceactor.RaceActor, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.skipped {
			out = append(out, e.actor)
		}
	}
	return out
}

// CreateActors resolves and constructs every local (non-remote) actor
// named in specs, in order. An optional actor whose class cannot be
// resolved is skipped with a warning; a non-optional actor in the same
// situation aborts the Universe. Remote entries are left for the remote
// package's BusConnector wiring and are not constructed here.
func (m *Master) CreateActors(ctx context.Context, specs []config.ActorSpec) error {
	for _, spec := range specs {
		if spec.IsRemote() {
			log.InfoS(ctx, "skipping local construction for remote actor entry",
				"actor", spec.Name, "remote", spec.Remote)
			m.entries = append(m.entries, &entry{spec: spec, skipped: true})
			continue
		}

		factory, ok := m.registry.Resolve(spec.Class)
		if !ok {
			if spec.Optional {
				log.WarnS(ctx, "optional actor has unknown class, skipping", ErrUnknownClass,
					"actor", spec.Name, "class", spec.Class)
				m.entries = append(m.entries, &entry{spec: spec, skipped: true})
				continue
			}
			return fmt.Errorf("%w: actor %q class %q", ErrUnknownClass, spec.Name, spec.Class)
		}

		behavior := factory()

		ra := raceactor.New(raceactor.Config{
			Name:                      spec.Name,
			Behavior:                  behavior,
			Bus:                       m.bus,
			Clock:                     m.clock,
			DLO:                       m.dlo,
			Mailbox:                   mailboxPolicy(spec),
			AcceptMessagesWhilePaused: spec.Settings.BoolOr("accept-while-paused", false),
			ShowExceptions:            m.opts.ShowExceptions,
		})

		m.entries = append(m.entries, &entry{spec: spec, actor: ra})
	}

	return nil
}

// mailboxPolicy reads an actor entry's mailbox keys: "mailbox-bound"
// caps the queue (absent or 0 leaves it unbounded), "mailbox-discipline"
// picks drop-oldest (the default) or drop-newest.
func mailboxPolicy(spec config.ActorSpec) actor.MailboxPolicy {
	policy := actor.MailboxPolicy{
		Bound: spec.Settings.IntOr("mailbox-bound", 0),
	}

	if spec.Settings.StringOr("mailbox-discipline", "drop-oldest") == "drop-newest" {
		policy.Discipline = actor.DropNewest
	}

	return policy
}

// RemoteSpecs returns every actor entry in configuration order that names
// a remote peer rather than a local class, for the Driver to wire into
// BusConnectors once they have been established.
func (m *Master) RemoteSpecs() []config.ActorSpec {
	var out []config.ActorSpec
	for _, e := range m.entries {
		if e.spec.IsRemote() {
			out = append(out, e.spec)
		}
	}
	return out
}

// WireRemote wires every remote actor entry addressed to connector's peer
// Universe into it: a read-from pattern becomes a Want (ask the peer to
// forward matching publications here); a write-to pattern becomes a
// Forward (ship local publications on that pattern to the peer). This is
// the Master's half of "an actor should not know whether its peer is
// local or remote" — the actor entry just names read-from/write-to like
// any other, and WireRemote is what turns that into BusConnector
// registrations instead of a RaceActor subscription.
func (m *Master) WireRemote(ctx context.Context, connector *remote.Connector) error {
	peer := connector.PeerUniverse()

	for _, e := range m.entries {
		if !e.spec.IsRemote() || e.spec.Remote != peer {
			continue
		}

		for _, pattern := range e.spec.ReadFrom {
			if err := connector.Want(ctx, pattern); err != nil {
				return fmt.Errorf("wire remote %q read-from %q: %w", e.spec.Name, pattern, err)
			}
		}

		for _, pattern := range e.spec.WriteTo {
			if err := connector.Forward(pattern); err != nil {
				return fmt.Errorf("wire remote %q write-to %q: %w", e.spec.Name, pattern, err)
			}
		}
	}

	return nil
}

// Initialize sends InitializeRaceActor to each created actor in order,
// waiting for each acknowledgement before advancing to the next (the
// strict sequential phase barrier). An optional actor's failure or
// timeout is logged and that actor is marked skipped for subsequent
// phases; a non-optional actor's failure aborts the Universe.
func (m *Master) Initialize(ctx context.Context) error {
	return m.runPhase(ctx, "Initialize", m.opts.PhaseTimeout, func(e *entry, phaseCtx context.Context) error {
		rc := &raceactor.Context{
			UniverseName: m.universeName,
			Bus:          m.bus,
			Clock:        m.clock,
			Settings:     e.spec.Settings,
		}

		return m.direct(phaseCtx, e, raceactor.Directive{
			Kind:        raceactor.LifecycleInitialize,
			Originator:  "master",
			RaceContext: rc,
		})
	})
}

// Start sends StartRaceActor to each actor in order.
func (m *Master) Start(ctx context.Context) error {
	return m.runPhase(ctx, "Start", m.opts.PhaseTimeout, func(e *entry, phaseCtx context.Context) error {
		return m.direct(phaseCtx, e, raceactor.Directive{Kind: raceactor.LifecycleStart, Originator: "master"})
	})
}

// Pause sends PauseRaceActor to each actor in order.
func (m *Master) Pause(ctx context.Context) error {
	return m.runPhase(ctx, "Pause", m.opts.PhaseTimeout, func(e *entry, phaseCtx context.Context) error {
		return m.direct(phaseCtx, e, raceactor.Directive{Kind: raceactor.LifecyclePause, Originator: "master"})
	})
}

// Resume sends ResumeRaceActor to each actor in order.
func (m *Master) Resume(ctx context.Context) error {
	return m.runPhase(ctx, "Resume", m.opts.PhaseTimeout, func(e *entry, phaseCtx context.Context) error {
		return m.direct(phaseCtx, e, raceactor.Directive{Kind: raceactor.LifecycleResume, Originator: "master"})
	})
}

// Terminate sends TerminateRaceActor to each actor in reverse configuration
// order. An actor that does not acknowledge within TerminateGrace is
// force-killed; termination failures never abort the sequence, matching
// the "termination is best-effort" rule.
func (m *Master) Terminate(ctx context.Context) error {
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.skipped {
			continue
		}

		phaseCtx, cancel := context.WithTimeout(ctx, m.opts.TerminateGrace)
		result := e.actor.Direct(phaseCtx, raceactor.Directive{
			Kind:       raceactor.LifecycleTerminate,
			Originator: "master",
		})
		_, err := result.Unpack()
		cancel()

		if err != nil {
			log.WarnS(ctx, "actor did not terminate in time, force-killing", err,
				"actor", e.spec.Name)
			e.actor.Stop()
		}
	}

	return nil
}

// runPhase drives one lifecycle phase across every non-skipped actor,
// honoring the strict sequential phase barrier: actor i's callback
// completes (success, failure, or timeout) before actor i+1's begins.
func (m *Master) runPhase(
	ctx context.Context,
	phaseName string,
	timeout time.Duration,
	step func(e *entry, phaseCtx context.Context) error,
) error {
	for _, e := range m.entries {
		if e.skipped {
			continue
		}

		phaseCtx, cancel := context.WithTimeout(ctx, timeout)
		err := step(e, phaseCtx)
		cancel()

		if err == nil {
			continue
		}

		if e.spec.Optional {
			log.WarnS(ctx, "optional actor failed lifecycle phase, skipping for remaining phases", err,
				"actor", e.spec.Name, "phase", phaseName)
			e.skipped = true
			continue
		}

		return fmt.Errorf("%w: actor %q phase %s: %v", ErrActorFailed, e.spec.Name, phaseName, err)
	}

	return nil
}

func (m *Master) direct(ctx context.Context, e *entry, d raceactor.Directive) error {
	result := e.actor.Direct(ctx, d)

	ok, err := result.Unpack()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLifecycleTimeout, err)
	}

	if !ok {
		return fmt.Errorf("actor %q rejected directive %s", e.spec.Name, d.Kind)
	}

	return nil
}
