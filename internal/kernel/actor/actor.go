package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ActorConfig assembles one Actor.
type ActorConfig[M Message, R any] struct {
	// ID is the actor's unique identifier (its configured name, for
	// RaceActors).
	ID string

	// Behavior processes each dequeued message.
	Behavior ActorBehavior[M, R]

	// DLO receives messages that could not be delivered: pushed after
	// termination, drained at shutdown, or dropped by a bounded
	// mailbox's discipline. Nil means such messages vanish silently.
	DLO ActorRef[Message, any]

	// Mailbox bounds the actor's queue; the zero value is unbounded.
	Mailbox MailboxPolicy

	// Wg, when non-nil, tracks the dispatch goroutine's lifetime:
	// Add(1) at Start, Done when the loop exits. The Universe blocks on
	// it for deterministic shutdown.
	Wg *sync.WaitGroup
}

// Actor owns one mailbox and one dispatch goroutine. The kernel's
// single-threading guarantee lives here: Receive is only ever invoked from
// that goroutine, one envelope at a time, in arrival order.
type Actor[M Message, R any] struct {
	id       string
	behavior ActorBehavior[M, R]
	mb       *mailbox[M, R]
	dlo      ActorRef[Message, any]
	wg       *sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once

	ref ActorRef[M, R]
}

// NewActor builds an Actor. The dispatch goroutine does not run until
// Start is called.
func NewActor[M Message, R any](cfg ActorConfig[M, R]) *Actor[M, R] {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Actor[M, R]{
		id:       cfg.ID,
		behavior: cfg.Behavior,
		mb:       newMailbox[M, R](cfg.Mailbox),
		dlo:      cfg.DLO,
		wg:       cfg.Wg,
		ctx:      ctx,
		cancel:   cancel,
	}
	a.ref = &mailboxRef[M, R]{actor: a}

	return a
}

// Start launches the dispatch loop. Safe to call more than once; only the
// first call has any effect.
func (a *Actor[M, R]) Start() {
	a.startOnce.Do(func() {
		log.DebugS(a.ctx, "starting actor", "actor_id", a.id)

		if a.wg != nil {
			a.wg.Add(1)
		}
		go a.dispatch()
	})
}

// Stop cancels the actor's context, which unwinds the dispatch loop: the
// mailbox is closed, the backlog is drained to the DLO, and any pending
// Ask promises complete with ErrActorTerminated.
func (a *Actor[M, R]) Stop() {
	a.stopOnce.Do(a.cancel)
}

// Ref returns the actor's Tell/Ask reference.
func (a *Actor[M, R]) Ref() ActorRef[M, R] { return a.ref }

// TellRef narrows Ref to fire-and-forget, for handing out as a bus
// subscriber.
func (a *Actor[M, R]) TellRef() TellOnlyRef[M] { return a.ref }

// dispatch is the actor's single processing goroutine.
func (a *Actor[M, R]) dispatch() {
	if a.wg != nil {
		defer a.wg.Done()
	}

	for {
		env, ok := a.mb.pop(a.ctx)
		if !ok {
			break
		}

		a.processOne(env)
	}

	a.mb.close()

	drained := 0
	for _, env := range a.mb.drain() {
		drained++
		a.toDeadLetters(env)
	}

	log.DebugS(a.ctx, "actor dispatch loop exited",
		"actor_id", a.id, "drained", drained)
}

func (a *Actor[M, R]) processOne(env envelope[M, R]) {
	// Tell traffic runs under the actor's own context only: once
	// enqueued, a fire-and-forget message is not retractable by its
	// sender. Ask traffic additionally respects the asker's deadline.
	procCtx := a.ctx
	if env.promise != nil && env.callerCtx != nil {
		var cancel context.CancelFunc
		procCtx, cancel = joinContexts(a.ctx, env.callerCtx)
		defer cancel()
	}

	log.TraceS(procCtx, "actor processing message",
		"actor_id", a.id, "msg_type", env.msg.MessageType(),
		"is_ask", env.promise != nil)

	result := a.behavior.Receive(procCtx, env.msg)

	if env.promise != nil {
		env.promise.Complete(result)
	}
}

func (a *Actor[M, R]) toDeadLetters(env envelope[M, R]) {
	if env.promise != nil {
		env.promise.Complete(fn.Err[R](ErrActorTerminated))
	}

	if a.dlo != nil {
		a.dlo.Tell(context.Background(), env.msg)
	}
}

// joinContexts derives a context that cancels when either parent does, so
// an Ask's behavior invocation observes both actor shutdown and the
// asker's deadline. The returned cancel must be called to release the
// AfterFunc registration.
func joinContexts(actorCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(actorCtx)
	stop := context.AfterFunc(callerCtx, cancel)

	return ctx, func() {
		stop()
		cancel()
	}
}

// isSystem classifies msg at enqueue time: system messages bypass bounded
// mailbox disciplines.
func isSystem[M Message](msg M) bool {
	sm, ok := any(msg).(SystemMessage)
	return ok && sm.IsSystemMessage()
}

// mailboxRef is the concrete ActorRef handed out by Actor.Ref.
type mailboxRef[M Message, R any] struct {
	actor *Actor[M, R]
}

// ID returns the actor's identifier.
func (r *mailboxRef[M, R]) ID() string { return r.actor.id }

// Tell enqueues msg fire-and-forget. A message refused because the actor
// terminated goes to the DLO; a message evicted by the mailbox's drop
// discipline does too.
func (r *mailboxRef[M, R]) Tell(ctx context.Context, msg M) {
	env := envelope[M, R]{msg: msg, callerCtx: ctx, system: isSystem(msg)}

	dropped, accepted := r.actor.mb.push(env)

	if dropped != nil {
		log.DebugS(ctx, "mailbox discipline dropped a message",
			"actor_id", r.actor.id,
			"msg_type", dropped.msg.MessageType(),
			"discipline", r.actor.mb.policy.Discipline.String())
		r.actor.toOverflow(dropped)
	}

	if !accepted && dropped == nil {
		log.DebugS(ctx, "tell to terminated actor, routing to DLO",
			"actor_id", r.actor.id, "msg_type", msg.MessageType())
		r.actor.toDeadLetters(env)
	}
}

// Ask enqueues msg and returns a Future for the behavior's result.
func (r *mailboxRef[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	promise := NewPromise[R]()
	env := envelope[M, R]{
		msg:       msg,
		promise:   promise,
		callerCtx: ctx,
		system:    isSystem(msg),
	}

	dropped, accepted := r.actor.mb.push(env)

	if dropped != nil {
		r.actor.toOverflow(dropped)
	}

	if !accepted {
		if dropped != nil {
			// The ask itself was the DropNewest victim.
			promise.Complete(fn.Err[R](ErrMailboxOverflow))
		} else {
			promise.Complete(fn.Err[R](ErrActorTerminated))
		}
	}

	return promise.Future()
}

// toOverflow reroutes a discipline victim: its promise (if it was an Ask)
// fails with ErrMailboxOverflow and the message itself goes to the DLO.
func (a *Actor[M, R]) toOverflow(env *envelope[M, R]) {
	if env.promise != nil {
		env.promise.Complete(fn.Err[R](ErrMailboxOverflow))
	}

	if a.dlo != nil {
		a.dlo.Tell(context.Background(), env.msg)
	}
}

var _ ActorRef[Message, any] = (*mailboxRef[Message, any])(nil)
