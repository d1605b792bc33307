// Package raceactor implements the kernel's Actor base: the lifecycle
// state machine, mailbox dispatch, and the publisher, subscriber, and
// continuous-time capabilities every actor class shares. A concrete
// actor class supplies a Behavior; RaceActor supplies everything else.
package raceactor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/looplab/fsm"

	"github.com/wxflow/raceway/internal/kernel/actor"
	"github.com/wxflow/raceway/internal/kernel/bus"
	"github.com/wxflow/raceway/internal/kernel/clock"
)

// The nine values an Actor's state field can hold.
const (
	StateUnborn       = "unborn"
	StateInitializing = "initializing"
	StateInitialized  = "initialized"
	StateStarting     = "starting"
	StateRunning      = "running"
	StatePaused       = "paused"
	StateTerminating  = "terminating"
	StateTerminated   = "terminated"
	StateFailed       = "failed"
)

var lifecycleFSMEvents = fsm.Events{
	{Name: "construct", Src: []string{StateUnborn}, Dst: StateInitializing},
	{Name: "initialize", Src: []string{StateInitializing}, Dst: StateInitialized},
	{Name: "start", Src: []string{StateInitialized}, Dst: StateStarting},
	{Name: "started", Src: []string{StateStarting}, Dst: StateRunning},
	{Name: "pause", Src: []string{StateRunning}, Dst: StatePaused},
	{Name: "resume", Src: []string{StatePaused}, Dst: StateRunning},
	{
		Name: "terminate",
		Src: []string{
			StateUnborn, StateInitializing, StateInitialized,
			StateStarting, StateRunning, StatePaused,
		},
		Dst: StateTerminating,
	},
	{Name: "terminated", Src: []string{StateTerminating}, Dst: StateTerminated},
	{
		Name: "fail",
		Src: []string{
			StateUnborn, StateInitializing, StateInitialized,
			StateStarting, StateRunning, StatePaused, StateTerminating,
		},
		Dst: StateFailed,
	},
}

// ErrInvalidTransition is returned when a lifecycle directive arrives
// while the actor is in a state that does not accept it (e.g. Start sent
// twice).
var ErrInvalidTransition = fmt.Errorf("invalid actor lifecycle transition")

// Config configures a new RaceActor.
type Config struct {
	// Name must be unique within the owning Universe.
	Name string

	// Behavior implements the actor's class-specific logic.
	Behavior Behavior

	// Bus is the universe's publish/subscribe fabric.
	Bus *bus.Bus

	// Clock is the universe's simulated-time source.
	Clock *clock.Clock

	// AcceptMessagesWhilePaused opts this actor into the non-default
	// behavior of still dispatching bus deliveries while Paused.
	AcceptMessagesWhilePaused bool

	// ShowExceptions, from the universe's show-exceptions key, makes
	// message-handler failures log the offending payload and sender
	// alongside the error.
	ShowExceptions bool

	// PublishFilters seeds the actor's publish filter chain. Behaviors
	// add further filters at initialize time via AddPublishFilter.
	PublishFilters []PublishFilter

	// DLO receives messages this actor could not process (mailbox
	// drained after termination).
	DLO actor.ActorRef[actor.Message, any]

	// Mailbox bounds the actor's mailbox; the zero value is unbounded.
	// Lifecycle directives are system messages and are never subject to
	// the bound, so a flooded actor can still be terminated.
	Mailbox actor.MailboxPolicy

	// Wg, if non-nil, is incremented/decremented around the actor's
	// goroutine lifetime for deterministic Universe shutdown.
	Wg *sync.WaitGroup
}

// RaceActor wraps a Behavior with the lifecycle FSM, mailbox dispatch,
// and publish/subscribe bookkeeping. Every actor the Master constructs
// is one of these.
type RaceActor struct {
	name           string
	behavior       Behavior
	bus            *bus.Bus
	clock          *clock.Clock
	acceptPaused   bool
	showExceptions bool

	fsm *fsm.FSM

	writeTo  []bus.Channel
	readFrom []string
	filters  filterChain

	raw *actor.Actor[envelope, bool]
	ref actor.ActorRef[envelope, bool]

	scheduler *scheduler
}

// New constructs a RaceActor in the Unborn state, immediately advancing
// it to Initializing (construction is itself a transition). The actor's
// message-processing goroutine is started immediately; it sits idle until
// a Directive or bus delivery arrives.
func New(cfg Config) *RaceActor {
	ra := &RaceActor{
		name:           cfg.Name,
		behavior:       cfg.Behavior,
		bus:            cfg.Bus,
		clock:          cfg.Clock,
		acceptPaused:   cfg.AcceptMessagesWhilePaused,
		showExceptions: cfg.ShowExceptions,
	}

	ra.fsm = fsm.NewFSM(StateUnborn, lifecycleFSMEvents, fsm.Callbacks{})
	_ = ra.fsm.Event(context.Background(), "construct")

	for _, f := range cfg.PublishFilters {
		ra.filters.add(f)
	}

	actorCfg := actor.ActorConfig[envelope, bool]{
		ID:       cfg.Name,
		Behavior: ra,
		DLO:      cfg.DLO,
		Mailbox:  cfg.Mailbox,
		Wg:       cfg.Wg,
	}

	ra.raw = actor.NewActor(actorCfg)
	ra.raw.Start()
	ra.ref = ra.raw.Ref()

	ra.scheduler = newScheduler(ra)

	return ra
}

// Name returns the actor's unique name.
func (ra *RaceActor) Name() string { return ra.name }

// State returns the actor's current lifecycle state.
func (ra *RaceActor) State() string { return ra.fsm.Current() }

// Tell exposes the raw mailbox ref so the Master's BusConnector glue and
// self-scheduling can enqueue bus deliveries directly.
func (ra *RaceActor) Tell(ctx context.Context, event bus.BusEvent) {
	ra.ref.Tell(ctx, busEventEnvelope(event))
}

// ID satisfies actor.BaseActorRef so a RaceActor can itself be handed
// anywhere a bus.Subscriber is expected (self-scheduling, loopback tests).
func (ra *RaceActor) ID() string { return ra.name }

// subscriberRef adapts this actor's mailbox to bus.Subscriber via
// MapInputRef, translating a raw BusEvent into this actor's envelope type.
// This is the actor package's message-adapter pattern, reused verbatim for
// the one bridging job the kernel needs it for.
func (ra *RaceActor) subscriberRef() bus.Subscriber {
	return actor.NewMapInputRef[bus.BusEvent, envelope](ra.ref, busEventEnvelope)
}

// Direct sends a lifecycle directive and blocks for the actor's
// acknowledgement. The Master uses this for every phase transition.
func (ra *RaceActor) Direct(ctx context.Context, d Directive) fn.Result[bool] {
	return ra.ref.Ask(ctx, lifecycleEnvelope(d)).Await(ctx)
}

// Stop cancels the actor's processing goroutine immediately, without
// running the Terminate lifecycle callback. Used only for force-kill after
// a Terminate grace period expires.
func (ra *RaceActor) Stop() {
	ra.scheduler.cancelAll()
	ra.raw.Stop()
}

// Receive implements actor.ActorBehavior, dispatching each envelope to the
// lifecycle machinery or to the user Behavior's HandleMessage.
func (ra *RaceActor) Receive(ctx context.Context, env envelope) fn.Result[bool] {
	if env.kind == envelopeLifecycle {
		return fn.Ok(ra.handleDirective(ctx, env.directive))
	}

	return fn.Ok(ra.handleBusEvent(ctx, env.event))
}

func (ra *RaceActor) handleDirective(ctx context.Context, d Directive) bool {
	switch d.Kind {
	case LifecycleInitialize:
		return ra.runTransition(ctx, "initialize", func() error {
			return ra.onInitialize(ctx, d.RaceContext)
		})

	case LifecycleStart:
		if err := ra.fsm.Event(ctx, "start"); err != nil {
			log.WarnS(ctx, "actor rejected start directive", err, "actor", ra.name)
			return false
		}

		if err := ra.behavior.OnStart(ctx); err != nil {
			log.ErrorS(ctx, "actor OnStart failed", err, "actor", ra.name)
			_ = ra.fsm.Event(ctx, "fail")
			return false
		}

		_ = ra.fsm.Event(ctx, "started")
		return true

	case LifecyclePause:
		return ra.runTransition(ctx, "pause", func() error {
			return ra.behavior.OnPause(ctx)
		})

	case LifecycleResume:
		return ra.runTransition(ctx, "resume", func() error {
			return ra.behavior.OnResume(ctx)
		})

	case LifecycleTerminate:
		return ra.terminate(ctx)

	default:
		return false
	}
}

// runTransition performs a simple single-step FSM event guarded by the
// given callback: the event fires first (so the callback observes its
// destination state), and a callback error does not roll the FSM back —
// a failing lifecycle callback is fatal for the actor and lands it in
// Failed via the subsequent "fail" event.
func (ra *RaceActor) runTransition(ctx context.Context, eventName string, cb func() error) bool {
	if err := ra.fsm.Event(ctx, eventName); err != nil {
		log.WarnS(ctx, "actor rejected lifecycle directive", err,
			"actor", ra.name, "event", eventName)
		return false
	}

	if err := cb(); err != nil {
		log.ErrorS(ctx, "actor lifecycle callback failed", err,
			"actor", ra.name, "event", eventName)
		_ = ra.fsm.Event(ctx, "fail")
		return false
	}

	return true
}

func (ra *RaceActor) onInitialize(ctx context.Context, rc *Context) error {
	if rc != nil {
		rc.Self = ra
	}

	if rc != nil && rc.Settings != nil {
		ra.readFrom = rc.Settings.StringListOr("read-from", nil)
		writeTo := rc.Settings.StringListOr("write-to", nil)
		for _, ch := range writeTo {
			ra.writeTo = append(ra.writeTo, bus.Channel(ch))
		}
	}

	if err := ra.behavior.OnInitialize(ctx, rc); err != nil {
		return err
	}

	for _, pattern := range ra.readFrom {
		if _, err := ra.bus.Subscribe(ra.subscriberRef(), pattern); err != nil {
			return fmt.Errorf("subscribe %q: %w", pattern, err)
		}
	}

	return nil
}

func (ra *RaceActor) terminate(ctx context.Context) bool {
	if ra.fsm.Current() == StateTerminated {
		return true
	}

	if err := ra.fsm.Event(ctx, "terminate"); err != nil {
		log.WarnS(ctx, "actor rejected terminate directive", err, "actor", ra.name)
		return false
	}

	ra.scheduler.cancelAll()
	ra.bus.UnsubscribeAll(ra.subscriberRef())

	// Termination is best-effort: a failing OnTerminate is logged but
	// never blocks the transition to Terminated.
	if err := ra.behavior.OnTerminate(ctx); err != nil {
		log.WarnS(ctx, "actor OnTerminate reported an error", err, "actor", ra.name)
	}

	_ = ra.fsm.Event(ctx, "terminated")

	return true
}

func (ra *RaceActor) handleBusEvent(ctx context.Context, event bus.BusEvent) bool {
	state := ra.fsm.Current()

	accepts := state == StateRunning || (state == StatePaused && ra.acceptPaused)
	if !accepts {
		log.WarnS(ctx, "dropping bus delivery, actor not accepting user messages",
			ErrInvalidTransition, "actor", ra.name, "state", state,
			"channel", string(event.Channel))
		return false
	}

	if err := ra.behavior.HandleMessage(ctx, event); err != nil {
		if ra.showExceptions {
			log.ErrorS(ctx, "actor message handler failed, resuming", err,
				"actor", ra.name, "state", state,
				"channel", string(event.Channel),
				"sender", event.Sender,
				"payload", fmt.Sprintf("%+v", event.Payload))
		} else {
			log.ErrorS(ctx, "actor message handler failed, resuming", err,
				"actor", ra.name, "state", state,
				"channel", string(event.Channel))
		}
	}

	return true
}

// AddPublishFilter appends f to this actor's publish filter chain.
// Behaviors typically call this from OnInitialize, building filters from
// their own configuration keys.
func (ra *RaceActor) AddPublishFilter(f PublishFilter) {
	ra.filters.add(f)
}

// Publish publishes payload on channel as this actor, provided the actor
// has reached Initialized or later. A publish attempted before that is
// silently dropped with a warning, per the publisher trait's contract.
// The publish filter chain runs first; a filtered payload never reaches
// the Bus and is not an error.
func (ra *RaceActor) Publish(ctx context.Context, channel bus.Channel, payload any) {
	switch ra.fsm.Current() {
	case StateUnborn, StateInitializing:
		log.WarnS(ctx, "dropping publish from non-initialized actor",
			ErrInvalidTransition, "actor", ra.name, "channel", string(channel))
		return
	}

	if !ra.filters.pass(channel, payload) {
		log.DebugS(ctx, "publish filtered",
			"actor", ra.name, "channel", string(channel))
		return
	}

	ra.bus.Publish(ctx, channel, payload, ra.name)
}

// PublishDefault publishes payload on this actor's first configured
// write-to channel.
func (ra *RaceActor) PublishDefault(ctx context.Context, payload any) {
	if len(ra.writeTo) == 0 {
		log.WarnS(ctx, "PublishDefault called with no write-to channels configured",
			ErrInvalidTransition, "actor", ra.name)
		return
	}

	ra.Publish(ctx, ra.writeTo[0], payload)
}

// ScheduleOnce arranges for payload to be delivered to this actor as a bus
// event on the given channel after simDuration of simulated time, converted
// to wall time through the universe Clock. The returned handle cancels the
// scheduled delivery; cancellation is best-effort.
func (ra *RaceActor) ScheduleOnce(simDuration time.Duration, channel bus.Channel, payload any) CancelHandle {
	return ra.scheduler.once(simDuration, channel, payload)
}

// ScheduleRecurring arranges for payload to be delivered repeatedly, first
// after initial simulated duration and then every period thereafter.
func (ra *RaceActor) ScheduleRecurring(initial, period time.Duration, channel bus.Channel, payload any) CancelHandle {
	return ra.scheduler.recurring(initial, period, channel, payload)
}
