// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gogpu/compute/backend"
)

// EventCallback is invoked exactly once when an event's operation
// completes. err is nil on success, or the terminal error when the
// operation failed (including submission failures).
type EventCallback func(ev *Event, err error)

// Event represents the eventual outcome of one asynchronous backend
// operation. It is created together with a [Resolver] by the component
// issuing the operation; any number of subscribers can then register
// interest with [Event.Subscribe] or wait with [Event.Wait].
//
// An Event resolves exactly once, either with an error (failed
// submission, failed wait) or successfully when the backend signals
// completion of the attached native wait handle. Subscribers registered
// before or after resolution are each notified exactly once,
// asynchronously, on the execution context captured at subscription
// time, never inline and never on the goroutine performing the
// backend wait.
//
// Event is safe for concurrent use from multiple goroutines.
type Event struct {
	mu sync.Mutex

	// queue is the command queue this event is associated with.
	// Diagnostic association only; may be nil.
	queue *Queue

	// handle is the backend-native wait handle. Immutable once attached.
	handle backend.WaitHandle

	err      error
	resolved bool

	// waiting is true while the completion waiter goroutine is active.
	waiting bool

	// waitRequested is set when Wait is called before a handle exists,
	// so attach knows to start the waiter even with no subscribers.
	waitRequested bool

	// pending holds subscribers awaiting delivery, in subscription order.
	pending []*Subscription

	// done is closed when the event resolves.
	done chan struct{}

	// released is true once the native handle has been (or is being)
	// released, by the waiter or by Release.
	released bool
}

// Resolver is the one-shot resolution capability for an Event. It is
// returned by [NewEvent] to the component issuing the operation, which
// must consume it exactly once: either [Resolver.Resolve] when the
// operation finished (or failed) without producing a native wait
// handle, or [Resolver.Attach] when submission succeeded and the
// backend produced one. Reusing a consumed Resolver panics.
type Resolver struct {
	ev       *Event
	consumed atomic.Bool
}

// NewEvent constructs an unresolved event associated with queue (which
// may be nil for internal or failure-only events), together with its
// one-shot Resolver.
func NewEvent(queue *Queue) (*Event, *Resolver) {
	ev := &Event{
		queue: queue,
		done:  make(chan struct{}),
	}
	return ev, &Resolver{ev: ev}
}

// Resolve consumes the resolver and resolves the event immediately with
// err. A non-nil err reports a failed submission: no native wait ever
// happens and every present and future subscriber receives err. A nil
// err marks an operation that completed synchronously.
func (r *Resolver) Resolve(err error) {
	r.consume()
	r.ev.resolve(err)
}

// Attach consumes the resolver and records the backend-native wait
// handle for the event. The handle is immutable for the rest of the
// event's life; the completion waiter blocks on it once the first
// subscriber arrives. Attach panics if handle is nil.
func (r *Resolver) Attach(handle backend.WaitHandle) {
	if handle == nil {
		panic("compute: attach of nil wait handle")
	}
	r.consume()
	r.ev.attach(handle)
}

// consume flips the one-shot flag. Double use is a bug in the issuing
// collaborator, not a runtime condition.
func (r *Resolver) consume() {
	if !r.consumed.CompareAndSwap(false, true) {
		panic("compute: resolver used twice")
	}
}

// Queue returns the command queue this event is associated with, or nil.
func (e *Event) Queue() *Queue {
	return e.queue
}

// Resolved reports whether the event has resolved.
func (e *Event) Resolved() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolved
}

// Err returns the terminal error, or nil. Before resolution it returns
// nil; use Done or Wait to distinguish pending from succeeded.
func (e *Event) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// NativeHandle returns the backend-native wait handle, or nil if none
// was attached. Intended for collaborators that chain backend
// operations on the same handle.
func (e *Event) NativeHandle() backend.WaitHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle
}

// Done returns a channel that is closed when the event resolves.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the event resolves or ctx is done. It returns the
// event's terminal error (nil on success), or ctx.Err() if the context
// expires first. Waiting starts the completion waiter if it is not
// already running.
func (e *Event) Wait(ctx context.Context) error {
	e.mu.Lock()
	if !e.resolved {
		e.waitRequested = true
	}
	e.startWaiterLocked()
	e.mu.Unlock()

	select {
	case <-e.done:
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a one-shot completion callback, delivered on the
// package's default dispatcher. See [Event.SubscribeOn].
func (e *Event) Subscribe(cb EventCallback) *Subscription {
	return e.SubscribeOn(nil, cb)
}

// SubscribeOn registers a one-shot completion callback delivered on
// exec (nil selects the package default dispatcher). The executor is
// the captured execution context: the callback runs on it, never inline
// within SubscribeOn and never on the backend wait goroutine.
//
// If the event is already resolved the callback is scheduled
// immediately (still asynchronously). Otherwise it joins the pending
// list and fires, in subscription order relative to other subscribers
// on the same executor, once the event resolves. Each subscriber's
// callback fires exactly once.
//
// SubscribeOn panics if cb is nil.
func (e *Event) SubscribeOn(exec Executor, cb EventCallback) *Subscription {
	if cb == nil {
		panic("compute: subscribe with nil callback")
	}
	if exec == nil {
		exec = defaultExecutor()
	}
	s := &Subscription{ev: e, exec: exec, cb: cb}

	e.mu.Lock()
	if e.resolved {
		e.mu.Unlock()
		s.deliver()
		return s
	}
	e.pending = append(e.pending, s)
	e.startWaiterLocked()
	e.mu.Unlock()
	return s
}

// attach records the native wait handle. If subscribers or waiters
// queued up before submission finished, the waiter starts now on their
// behalf.
func (e *Event) attach(handle backend.WaitHandle) {
	e.mu.Lock()
	if e.handle != nil {
		e.mu.Unlock()
		panic("compute: wait handle attached twice")
	}
	if e.resolved {
		e.mu.Unlock()
		panic("compute: wait handle attached to resolved event")
	}
	if e.released {
		// Release already ran, so no waiter can ever consume this
		// handle. Free it and fail the event so queued subscribers
		// still drain.
		e.mu.Unlock()
		handle.Release()
		e.resolve(ErrReleased)
		return
	}
	e.handle = handle
	if len(e.pending) > 0 || e.waitRequested {
		e.startWaiterLocked()
	}
	e.mu.Unlock()
}

// startWaiterLocked spawns the completion waiter goroutine if the event
// is unresolved, has a handle, and no waiter is active yet. Callers
// must hold e.mu.
func (e *Event) startWaiterLocked() {
	if e.waiting || e.resolved || e.released || e.handle == nil {
		return
	}
	e.waiting = true
	go e.runWaiter(e.handle)
}

// runWaiter is the completion waiter: it performs the one blocking
// backend wait for this event on its own goroutine, releases the native
// handle, and resolves the event. The goroutine itself keeps the event
// reachable for the duration of the wait. Callbacks are never invoked
// here; resolve hands them to their captured executors.
func (e *Event) runWaiter(handle backend.WaitHandle) {
	err := handle.Wait()

	// The waiter owns the handle exclusively once started; release it
	// before resolution so no subscriber ever observes a live handle on
	// a resolved event.
	e.mu.Lock()
	e.released = true
	e.mu.Unlock()
	handle.Release()

	if err != nil {
		Logger().Warn("compute: backend wait failed", "error", err)
	}
	e.resolve(err)
}

// resolve performs the single terminal transition and drains the
// pending list in FIFO order, scheduling each delivery on the
// subscriber's captured executor. Resolving twice is an invariant
// violation and panics.
func (e *Event) resolve(err error) {
	e.mu.Lock()
	if e.resolved {
		e.mu.Unlock()
		panic("compute: event resolved twice")
	}
	e.resolved = true
	e.err = err
	e.waiting = false
	pending := e.pending
	e.pending = nil
	close(e.done)
	e.mu.Unlock()

	for _, s := range pending {
		s.deliver()
	}
}

// Release frees the event's native wait handle if no completion waiter
// ever consumed it (the waiter releases the handle itself right after
// the backend wait returns). Release is idempotent and safe to call
// from a finalizing collaborator; it is a no-op while a waiter is
// active or when no handle was attached. After Release no waiter can
// start for this event; a handle attached later is freed on arrival and
// the event resolves with [ErrReleased].
func (e *Event) Release() {
	e.mu.Lock()
	if e.waiting || e.released {
		e.mu.Unlock()
		return
	}
	e.released = true
	h := e.handle
	e.mu.Unlock()

	if h != nil {
		h.Release()
	}
}

// Subscription is one pending notification request: a callback plus the
// execution context captured when it was registered.
type Subscription struct {
	ev   *Event
	exec Executor
	cb   EventCallback

	// state: 0 pending, 1 delivered, 2 cancelled.
	state atomic.Int32
}

const (
	subPending int32 = iota
	subDelivered
	subCancelled
)

// Cancel withdraws the subscription. It reports whether the callback
// was still undelivered: after a true return the callback will never
// run; after false it either already ran or is about to.
func (s *Subscription) Cancel() bool {
	if !s.state.CompareAndSwap(subPending, subCancelled) {
		return false
	}

	// Drop the entry from the pending list so long-lived events do not
	// accumulate cancelled subscriptions.
	e := s.ev
	e.mu.Lock()
	for i, p := range e.pending {
		if p == s {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	return true
}

// deliver schedules the one-shot callback on the captured executor.
// The scheduled closure re-checks the state so a Cancel that raced the
// resolution still suppresses delivery.
func (s *Subscription) deliver() {
	s.exec.Schedule(func() {
		if s.state.CompareAndSwap(subPending, subDelivered) {
			s.cb(s.ev, s.ev.Err())
		}
	})
}
