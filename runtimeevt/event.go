// Package runtimeevt stands in for "Event, reservation, and messaging
// primitives of the host runtime" (spec.md §1, §6 Outbound): a
// one-shot trigger-once-read-many signal with an optional poison flag,
// plus a continuation scheduler so a waiter never parks a physical
// thread inside analysis (§5 Event-based cooperation, §9 Coroutine
// control flow). Built the way the teacher coordinates readers and
// writers without blocking a shared thread in network/peer.go's
// keepRead/keepWrite (signal + error channels, nothing parked inside a
// syscall) and sync.go's condition-variable state wait.
package runtimeevt

import (
	"sync"
	"sync/atomic"
)

// Event is a one-shot signal: it starts untriggered, is triggered
// exactly once (optionally poisoned), and any number of waiters can
// observe the trigger either by blocking on Wait or by registering a
// Continuation that runs when the event fires.
type Event struct {
	once      sync.Once
	done      chan struct{}
	poisoned  atomic.Bool
	initGuard sync.Once
}

// NewEvent returns a new, untriggered Event.
func NewEvent() *Event {
	e := &Event{}
	e.ensure()
	return e
}

func (e *Event) ensure() {
	e.initGuard.Do(func() {
		e.done = make(chan struct{})
	})
}

// Trigger fires the event. Firing an already-fired event is a no-op —
// Trigger is idempotent, matching §5 "cancellation propagates by
// triggering those events" where multiple code paths may race to
// cancel the same operation.
func (e *Event) Trigger(poisoned bool) {
	e.ensure()
	e.once.Do(func() {
		if poisoned {
			e.poisoned.Store(true)
		}
		close(e.done)
	})
}

// Poison triggers the event in the poisoned state — the cancellation
// path of §5: "cancellation propagates by triggering those events with
// a poisoned flag."
func (e *Event) Poison() { e.Trigger(true) }

// Fire triggers the event in the non-poisoned state.
func (e *Event) Fire() { e.Trigger(false) }

// Wait blocks until the event fires, returning whether it was
// poisoned. Analysis code itself must never call Wait (§5: "the
// physical thread is never parked inside analysis") — it exists for
// the boundary where a caller outside the analyzer (a test, or the
// physical mapper) needs a synchronous join.
func (e *Event) Wait() (poisoned bool) {
	e.ensure()
	<-e.done
	return e.poisoned.Load()
}

// Ready reports whether the event has already fired, without blocking.
func (e *Event) Ready() bool {
	e.ensure()
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Poisoned reports whether the event fired poisoned. Only meaningful
// once Ready() is true.
func (e *Event) Poisoned() bool { return e.poisoned.Load() }

// Chan exposes the underlying channel for select-based composition.
func (e *Event) Chan() <-chan struct{} {
	e.ensure()
	return e.done
}

// Continuation schedules fn to run once e fires, without blocking the
// calling goroutine — the "schedules a continuation keyed on the
// event" behavior of §5. fn receives whether the event was poisoned.
func (e *Event) Continuation(fn func(poisoned bool)) {
	e.ensure()
	go func() {
		<-e.done
		fn(e.poisoned.Load())
	}()
}

// Merge returns an Event that fires once every event in evts has
// fired; it is poisoned if any constituent event was poisoned. This is
// `merge_events` of §6 Outbound.
func Merge(evts ...*Event) *Event {
	out := NewEvent()
	if len(evts) == 0 {
		out.Fire()
		return out
	}
	var remaining atomic.Int64
	remaining.Store(int64(len(evts)))
	var anyPoison atomic.Bool
	for _, e := range evts {
		e.Continuation(func(poisoned bool) {
			if poisoned {
				anyPoison.Store(true)
			}
			if remaining.Add(-1) == 0 {
				out.Trigger(anyPoison.Load())
			}
		})
	}
	return out
}

// Set is an accumulating collection of events, used where the spec
// names "a set of applied-events"/"ready_events" a caller must wait on
// or signal — collected incrementally during analysis and merged once
// at the boundary.
type Set struct {
	mu   sync.Mutex
	evts []*Event
}

func (s *Set) Add(e *Event) {
	if e == nil {
		return
	}
	s.mu.Lock()
	s.evts = append(s.evts, e)
	s.mu.Unlock()
}

func (s *Set) Merge() *Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Merge(s.evts...)
}

func (s *Set) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, len(s.evts))
	copy(out, s.evts)
	return out
}

// Runtime is the Outbound contract §6 names for the host runtime's
// event/messaging/deferred-task primitives.
type Runtime interface {
	CreateEvent() *Event
	TriggerEvent(e *Event, poison bool)
	MergeEvents(evts ...*Event) *Event
	IssueDeferredTask(fn func(), preconditions ...*Event)
	SendMessage(target AddressSpace, payload []byte) error
}

// AddressSpace names a node in the distributed runtime (§4.3
// Distribution: "owner address space").
type AddressSpace uint64

// LocalRuntime is an in-process Runtime implementation sufficient to
// drive and test the analyzer without a real distributed host runtime.
type LocalRuntime struct {
	Self AddressSpace

	mu       sync.Mutex
	inbox    map[AddressSpace][][]byte
	handlers map[AddressSpace]func([]byte)
}

func NewLocalRuntime(self AddressSpace) *LocalRuntime {
	return &LocalRuntime{
		Self:     self,
		inbox:    make(map[AddressSpace][][]byte),
		handlers: make(map[AddressSpace]func([]byte)),
	}
}

func (r *LocalRuntime) CreateEvent() *Event { return NewEvent() }

func (r *LocalRuntime) TriggerEvent(e *Event, poison bool) { e.Trigger(poison) }

func (r *LocalRuntime) MergeEvents(evts ...*Event) *Event { return Merge(evts...) }

// IssueDeferredTask runs fn once every precondition event has fired,
// without blocking the caller — the "continuation scheduled through
// the runtime's deferred-task mechanism" of §9.
func (r *LocalRuntime) IssueDeferredTask(fn func(), preconditions ...*Event) {
	if len(preconditions) == 0 {
		go fn()
		return
	}
	Merge(preconditions...).Continuation(func(bool) { fn() })
}

// RegisterHandler installs a handler for messages sent to addr.
func (r *LocalRuntime) RegisterHandler(addr AddressSpace, handler func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[addr] = handler
}

func (r *LocalRuntime) SendMessage(target AddressSpace, payload []byte) error {
	r.mu.Lock()
	handler := r.handlers[target]
	r.mu.Unlock()
	if handler != nil {
		go handler(payload)
	}
	return nil
}
