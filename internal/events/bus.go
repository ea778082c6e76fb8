// Package events provides the process-wide event bus used to fan out
// workflow, job, and log activity to observers (chiefly the WebSocket
// hub in internal/api). Unlike a typical fire-and-forget broadcast
// bus, this one is non-lossy: a full queue blocks the publisher rather
// than dropping the event, because every Build/Job/WebhookEvent must
// stay observable from its first progress event through its terminal
// state.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies the type of an event. The set is closed: Publish
// rejects any kind not in validKinds.
type Kind string

// The closed set of event kinds the bus will accept.
const (
	KindAgentStatusChanged    Kind = "agent-status-changed"
	KindAgentStarted          Kind = "agent-started"
	KindAgentStopped          Kind = "agent-stopped"
	KindJobCreated            Kind = "job-created"
	KindJobStarted            Kind = "job-started"
	KindJobProgress           Kind = "job-progress"
	KindJobCompleted          Kind = "job-completed"
	KindJobFailed             Kind = "job-failed"
	KindJobCancelled          Kind = "job-cancelled"
	KindWorkflowPhaseStarted  Kind = "workflow-phase-started"
	KindWorkflowPhaseComplete Kind = "workflow-phase-completed"
	KindLogEntry              Kind = "log-entry"
	KindMetricUpdate          Kind = "metric-update"
	KindSystemStatus          Kind = "system-status"

	// kindAll is the wildcard subscription kind: a subscriber registered
	// under kindAll receives every event regardless of its Kind.
	kindAll Kind = "*"
)

var validKinds = map[Kind]bool{
	KindAgentStatusChanged:    true,
	KindAgentStarted:          true,
	KindAgentStopped:          true,
	KindJobCreated:            true,
	KindJobStarted:            true,
	KindJobProgress:           true,
	KindJobCompleted:          true,
	KindJobFailed:             true,
	KindJobCancelled:          true,
	KindWorkflowPhaseStarted:  true,
	KindWorkflowPhaseComplete: true,
	KindLogEntry:              true,
	KindMetricUpdate:          true,
	KindSystemStatus:          true,
}

// ErrUnknownKind is returned by Publish for a Kind outside the closed set.
var ErrUnknownKind = errors.New("events: unknown event kind")

// ErrNotStarted is returned by Publish when the bus has not been started.
var ErrNotStarted = errors.New("events: bus not started")

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.New("events: bus already started")

// Event is a single occurrence published to the bus.
type Event struct {
	Kind    Kind           `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
	AgentID string         `json:"agent_id,omitempty"`
	JobID   string         `json:"job_id,omitempty"`
	At      time.Time      `json:"at"`
}

// Subscriber receives events of the kind it was registered for, in
// publication order. A Subscriber that panics is logged and skipped;
// it does not affect delivery to other subscribers.
type Subscriber func(Event)

type subscription struct {
	id int
	fn Subscriber
}

// Bus is the single process-wide event broker. Zero value is not
// usable; construct with New.
type Bus struct {
	logger *slog.Logger
	queue  chan Event

	mu      sync.RWMutex
	subs    map[Kind][]subscription
	nextSub int

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Bus with the given bounded queue capacity. The bus is
// inert until Start is called.
func New(logger *slog.Logger, queueBound int) *Bus {
	if queueBound <= 0 {
		queueBound = 256
	}
	return &Bus{
		logger: logger,
		queue:  make(chan Event, queueBound),
		subs:   make(map[Kind][]subscription),
	}
}

// Start spawns the dispatcher goroutine. Calling Start twice returns
// ErrAlreadyStarted.
func (b *Bus) Start() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.mu.Unlock()

	go b.dispatchLoop()
	return nil
}

// Stop signals the dispatcher to drain remaining queued events and
// halt, then blocks until it has done so.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	stopCh := b.stopCh
	doneCh := b.doneCh
	b.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (b *Bus) dispatchLoop() {
	defer close(b.doneCh)
	for {
		select {
		case e := <-b.queue:
			b.deliver(e)
		case <-b.stopCh:
			for {
				select {
				case e := <-b.queue:
					b.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(e Event) {
	b.mu.RLock()
	targets := append(append([]subscription(nil), b.subs[e.Kind]...), b.subs[kindAll]...)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.invoke(sub.fn, e)
	}
}

// invoke calls a subscriber, recovering from panics so one failing
// subscriber cannot poison delivery to the rest.
func (b *Bus) invoke(fn Subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			if b.logger != nil {
				b.logger.Error("event subscriber panicked",
					"kind", e.Kind, "recover", fmt.Sprint(r))
			}
		}
	}()
	fn(e)
}

// Publish enqueues an event for dispatch. It blocks if the queue is
// saturated — backpressure is propagated to the caller rather than
// dropping the event. Returns ctx.Err() if ctx is cancelled while
// waiting, or ErrNotStarted if the bus has not been started.
//
// Publish only transfers the event onto the queue; the actual
// subscriber invocation happens on the dispatcher goroutine. That
// means it is safe to call from any goroutine, including one that
// must not block on anything else, without risking deadlock against
// the dispatcher itself.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if !validKinds[e.Kind] {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}

	b.mu.RLock()
	started := b.started
	b.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	select {
	case b.queue <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn to receive every event of the given kind, in
// publication order. It returns an unsubscribe function.
//
// Subscriber lists are mutated only under the bus's lock, satisfying
// the "runtime mutation must be guarded" requirement even though in
// practice subscriptions are set up once at startup.
func (b *Bus) Subscribe(kind Kind, fn Subscriber) (unsubscribe func()) {
	return b.subscribe(kind, fn)
}

// SubscribeAll registers fn to receive every event regardless of kind.
// Used by the WebSocket hub to mirror the full event stream to clients.
func (b *Bus) SubscribeAll(fn Subscriber) (unsubscribe func()) {
	return b.subscribe(kindAll, fn)
}

func (b *Bus) subscribe(kind Kind, fn Subscriber) func() {
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[kind] = append(b.subs[kind], subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[kind]
		for i, s := range list {
			if s.id == id {
				b.subs[kind] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions across all kinds.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, list := range b.subs {
		n += len(list)
	}
	return n
}
