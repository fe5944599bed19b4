// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/compute/backend"
)

// Kernel is one entry point of a compiled program with its bound
// arguments. Arguments are set by binding index and persist across
// dispatches until rebound. Kernel is safe for concurrent use, but
// argument binding and dispatch of the same kernel from multiple
// goroutines need external ordering to be meaningful.
type Kernel struct {
	ctx  *Context
	id   backend.KernelID
	name string

	mu       sync.Mutex
	released bool
}

// Name returns the kernel entry point name.
func (k *Kernel) Name() string { return k.name }

// SetBuffer binds buf at the given argument index.
func (k *Kernel) SetBuffer(index uint32, buf *Buffer) error {
	if buf == nil {
		return fmt.Errorf("%w: nil buffer for argument %d", ErrInvalidSize, index)
	}
	return k.setArg(index, backend.KernelArg{Kind: backend.ArgBuffer, Buffer: buf.id})
}

// SetImage binds img at the given argument index.
func (k *Kernel) SetImage(index uint32, img *Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image for argument %d", ErrInvalidSize, index)
	}
	return k.setArg(index, backend.KernelArg{Kind: backend.ArgImage, Image: img.id})
}

// SetData binds raw bytes as a uniform value at the given argument
// index. The bytes are copied.
func (k *Kernel) SetData(index uint32, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty data for argument %d", ErrInvalidSize, index)
	}
	return k.setArg(index, backend.KernelArg{Kind: backend.ArgData, Data: data})
}

// SetUint32 binds a single uint32 uniform at the given argument index.
func (k *Kernel) SetUint32(index uint32, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return k.SetData(index, buf[:])
}

// SetInt32 binds a single int32 uniform at the given argument index.
func (k *Kernel) SetInt32(index uint32, v int32) error {
	return k.SetUint32(index, uint32(v))
}

// SetFloat32 binds a single float32 uniform at the given argument index.
func (k *Kernel) SetFloat32(index uint32, v float32) error {
	return k.SetUint32(index, math.Float32bits(v))
}

func (k *Kernel) setArg(index uint32, arg backend.KernelArg) error {
	k.mu.Lock()
	released := k.released
	k.mu.Unlock()
	if released {
		return ErrReleased
	}
	dev, err := k.ctx.device()
	if err != nil {
		return err
	}
	if err := dev.SetKernelArg(k.id, index, arg); err != nil {
		return fmt.Errorf("compute: set kernel argument %d: %w", index, err)
	}
	return nil
}

// Enqueue dispatches the kernel on q with the given workgroup counts
// per dimension (use 1 for unused dimensions). local is advisory;
// backends with compile-time workgroup sizes ignore it. The returned
// event resolves when the dispatch completes on the device.
func (k *Kernel) Enqueue(q *Queue, global, local [3]uint32) *Event {
	ev, res := NewEvent(q)

	if q == nil {
		res.Resolve(ErrNilQueue)
		return ev
	}
	if global[0] == 0 || global[1] == 0 || global[2] == 0 {
		res.Resolve(fmt.Errorf("%w: workgroup counts %v must be positive", ErrInvalidDimensions, global))
		return ev
	}
	k.mu.Lock()
	released := k.released
	k.mu.Unlock()
	if released {
		res.Resolve(ErrReleased)
		return ev
	}
	dev, err := q.backendDevice()
	if err != nil {
		res.Resolve(err)
		return ev
	}

	handle, err := dev.EnqueueKernel(q.id, k.id, global, local)
	if err != nil {
		res.Resolve(fmt.Errorf("compute: dispatch %s: %w", k.name, err))
		return ev
	}
	res.Attach(handle)
	return ev
}

// Release destroys the kernel. Release is idempotent.
func (k *Kernel) Release() {
	k.mu.Lock()
	if k.released {
		k.mu.Unlock()
		return
	}
	k.released = true
	k.mu.Unlock()

	if dev, err := k.ctx.device(); err == nil {
		dev.DestroyKernel(k.id)
	}
}
