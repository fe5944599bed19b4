// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package wgpu

import (
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// fenceWaitSlice is the per-iteration timeout passed to the HAL fence
// wait. Waiting in slices keeps the call responsive to device loss.
const fenceWaitSlice = 100 * time.Millisecond

// fenceHandle tracks a fence signalled by a queue submission. It
// implements backend.WaitHandle.
type fenceHandle struct {
	dev   hal.Device
	fence hal.Fence
	value uint64

	// after runs once the fence signals, before Wait returns. Used
	// for staging readback copies.
	after func() error

	// cleanup releases resources tied to the submission. Runs on both
	// Wait completion and Release.
	cleanup func()
}

// Wait blocks until the fence reaches the submitted value, then runs
// the readback step if one is attached.
func (f *fenceHandle) Wait() error {
	for {
		ok, err := f.dev.Wait(f.fence, f.value, fenceWaitSlice)
		if err != nil {
			return fmt.Errorf("wgpu: fence wait: %w", err)
		}
		if ok {
			break
		}
	}
	if f.after != nil {
		if err := f.after(); err != nil {
			return err
		}
	}
	return nil
}

// Release destroys the fence and any submission-scoped resources.
func (f *fenceHandle) Release() {
	if f.cleanup != nil {
		f.cleanup()
		f.cleanup = nil
	}
	if f.fence != nil {
		f.dev.DestroyFence(f.fence)
		f.fence = nil
	}
}
