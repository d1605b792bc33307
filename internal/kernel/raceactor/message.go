package raceactor

import (
	"github.com/wxflow/raceway/internal/kernel/actor"
	"github.com/wxflow/raceway/internal/kernel/bus"
)

// LifecycleKind names one of the Master's lifecycle directives.
type LifecycleKind int

const (
	// LifecycleInitialize corresponds to InitializeRaceActor.
	LifecycleInitialize LifecycleKind = iota
	// LifecycleStart corresponds to StartRaceActor.
	LifecycleStart
	// LifecyclePause corresponds to PauseRaceActor.
	LifecyclePause
	// LifecycleResume corresponds to ResumeRaceActor.
	LifecycleResume
	// LifecycleTerminate corresponds to TerminateRaceActor.
	LifecycleTerminate
)

// String renders the directive kind for logging.
func (k LifecycleKind) String() string {
	switch k {
	case LifecycleInitialize:
		return "Initialize"
	case LifecycleStart:
		return "Start"
	case LifecyclePause:
		return "Pause"
	case LifecycleResume:
		return "Resume"
	case LifecycleTerminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

// Directive is a single lifecycle message sent by the Master. Originator
// names the actor or component that requested the transition (the Master
// itself, for ordinary phase advancement); RaceContext is populated only
// for Initialize.
type Directive struct {
	Kind        LifecycleKind
	Originator  string
	RaceContext *Context
}

// envelopeKind distinguishes the two message flavors that can land in a
// RaceActor's single mailbox: lifecycle directives from the Master, and
// bus deliveries routed through the actor's subscriptions.
type envelopeKind int

const (
	envelopeLifecycle envelopeKind = iota
	envelopeBusEvent
)

// envelope is the sole message type a RaceActor's underlying actor.Actor
// ever sees. Both lifecycle directives and bus deliveries are funneled
// through it so the kernel's single-threading guarantee — no two messages
// for the same actor in flight at once — covers lifecycle transitions too,
// not just user traffic.
type envelope struct {
	actor.BaseMessage

	kind      envelopeKind
	directive Directive
	event     bus.BusEvent
}

// MessageType implements actor.Message.
func (e envelope) MessageType() string {
	if e.kind == envelopeLifecycle {
		return "Lifecycle:" + e.directive.Kind.String()
	}
	return "BusEvent:" + string(e.event.Channel)
}

// IsSystemMessage marks lifecycle directives as kernel traffic: a bounded
// mailbox's drop discipline applies only to bus deliveries, never to the
// Master's directives.
func (e envelope) IsSystemMessage() bool {
	return e.kind == envelopeLifecycle
}

func lifecycleEnvelope(d Directive) envelope {
	return envelope{kind: envelopeLifecycle, directive: d}
}

func busEventEnvelope(e bus.BusEvent) envelope {
	return envelope{kind: envelopeBusEvent, event: e}
}
