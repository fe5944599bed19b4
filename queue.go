// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"fmt"
	"sync"

	"github.com/gogpu/compute/backend"
)

// Queue is a command queue on a context's device. Asynchronous
// operations are enqueued against a queue and report completion through
// the [Event] they return. Queue is safe for concurrent use.
type Queue struct {
	ctx *Context
	id  backend.QueueID

	mu       sync.Mutex
	released bool
}

// Flush submits any batched work without waiting for it.
func (q *Queue) Flush() error {
	dev, err := q.backendDevice()
	if err != nil {
		return err
	}
	return dev.FlushQueue(q.id)
}

// Finish returns an event that resolves once all work previously
// submitted to the queue has drained. It never blocks; use
// [Event.Wait] or [Event.Subscribe] on the result.
func (q *Queue) Finish() *Event {
	ev, res := NewEvent(q)

	dev, err := q.backendDevice()
	if err != nil {
		res.Resolve(err)
		return ev
	}
	handle, err := dev.FinishQueue(q.id)
	if err != nil {
		res.Resolve(fmt.Errorf("compute: finish queue: %w", err))
		return ev
	}
	res.Attach(handle)
	return ev
}

// Release destroys the queue. Release is idempotent; enqueueing on a
// released queue fails with ErrReleased.
func (q *Queue) Release() {
	q.mu.Lock()
	if q.released {
		q.mu.Unlock()
		return
	}
	q.released = true
	q.mu.Unlock()

	if dev, err := q.ctx.device(); err == nil {
		dev.DestroyQueue(q.id)
	}
}

// backendDevice validates the queue and returns the device session.
func (q *Queue) backendDevice() (backend.Device, error) {
	q.mu.Lock()
	released := q.released
	q.mu.Unlock()
	if released {
		return nil, ErrReleased
	}
	return q.ctx.device()
}
