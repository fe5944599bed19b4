// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/compute/backend"
)

// Buffer is a device memory allocation. Data moves between host and
// device through the enqueue methods, each of which returns an [Event]
// tracking the transfer. Buffer is safe for concurrent use, though
// overlapping writes from multiple goroutines are the caller's problem
// to order.
type Buffer struct {
	ctx   *Context
	id    backend.BufferID
	size  uint64
	usage BufferUsage

	mu       sync.Mutex
	released bool
}

// Size returns the buffer capacity in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the usage flags the buffer was created with.
func (b *Buffer) Usage() BufferUsage { return b.usage }

// EnqueueWrite submits an asynchronous copy of data into the buffer at
// offset. The returned event resolves when the copy has completed on
// the device; submission failures resolve it with the error instead.
// data must remain unmodified until the event resolves.
func (b *Buffer) EnqueueWrite(q *Queue, offset uint64, data []byte) *Event {
	ev, res := NewEvent(q)

	dev, err := b.validate(q, offset, uint64(len(data)))
	if err != nil {
		res.Resolve(err)
		return ev
	}
	handle, err := dev.EnqueueWriteBuffer(q.id, b.id, offset, data)
	if err != nil {
		res.Resolve(fmt.Errorf("compute: write buffer: %w", err))
		return ev
	}
	res.Attach(handle)
	return ev
}

// EnqueueRead submits an asynchronous copy of len(dst) bytes from the
// buffer at offset into dst. dst must stay valid and unread until the
// returned event resolves.
func (b *Buffer) EnqueueRead(q *Queue, offset uint64, dst []byte) *Event {
	ev, res := NewEvent(q)

	dev, err := b.validate(q, offset, uint64(len(dst)))
	if err != nil {
		res.Resolve(err)
		return ev
	}
	handle, err := dev.EnqueueReadBuffer(q.id, b.id, offset, dst)
	if err != nil {
		res.Resolve(fmt.Errorf("compute: read buffer: %w", err))
		return ev
	}
	res.Attach(handle)
	return ev
}

// Write is the synchronous form of EnqueueWrite: it blocks until the
// transfer completes or ctx is done.
func (b *Buffer) Write(ctx context.Context, q *Queue, offset uint64, data []byte) error {
	return b.EnqueueWrite(q, offset, data).Wait(ctx)
}

// Read is the synchronous form of EnqueueRead.
func (b *Buffer) Read(ctx context.Context, q *Queue, offset uint64, dst []byte) error {
	return b.EnqueueRead(q, offset, dst).Wait(ctx)
}

// Release destroys the buffer. Release is idempotent. Transfers still
// in flight keep their device resources alive through their wait
// handles; new enqueues fail with ErrReleased.
func (b *Buffer) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	b.mu.Unlock()

	if dev, err := b.ctx.device(); err == nil {
		dev.DestroyBuffer(b.id)
	}
}

// validate checks queue, lifetime, and range before an enqueue.
func (b *Buffer) validate(q *Queue, offset, length uint64) (backend.Device, error) {
	if q == nil {
		return nil, ErrNilQueue
	}
	b.mu.Lock()
	released := b.released
	b.mu.Unlock()
	if released {
		return nil, ErrReleased
	}
	if offset > b.size || length > b.size-offset {
		return nil, fmt.Errorf("%w: %d bytes at offset %d in %d-byte buffer", ErrOutOfRange, length, offset, b.size)
	}
	return q.backendDevice()
}
