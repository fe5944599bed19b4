// Package compute provides an object-model binding over native GPU
// compute backends for Go.
//
// # Overview
//
// compute wraps a low-level GPU compute API (devices, command queues,
// memory buffers, images, programs, kernels) in a small set of plain Go
// objects, and turns the backend's one-shot "wait for hardware
// operation" primitive into reusable completion events with callback
// subscription, cross-goroutine delivery, and context-based waiting.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/compute"
//	    _ "github.com/gogpu/compute/backend/wgpu" // enables the wgpu backend
//	)
//
//	ctx, err := compute.NewContext(compute.DeviceTypeGPU)
//	if err != nil {
//	    // no usable device
//	}
//	defer ctx.Close()
//
//	q, _ := ctx.NewQueue()
//	buf, _ := ctx.NewBuffer(1024, compute.BufferReadWrite)
//
//	ev := buf.EnqueueWrite(q, 0, data)
//	ev.Subscribe(func(ev *compute.Event, err error) {
//	    // runs exactly once, off the caller's stack, when the write lands
//	})
//
// # Architecture
//
// The library is organized into:
//   - Public API: Event, Resolver, Dispatcher, Registry, Context, Queue,
//     Buffer, Image, Program, Kernel
//   - backend/: the compute backend interface and factory registry
//   - backend/wgpu/: a WebGPU compute backend via gogpu/wgpu
//
// Backends register themselves on import and are selected through
// backend.Default(), or explicitly with NewContextOn.
//
// # Completion Events
//
// Every asynchronous operation returns an *Event. Submission failures
// travel through the event too: subscribers receive a non-nil error and
// no hardware wait ever happens. Callbacks are delivered asynchronously
// on the execution context captured at subscription time, in
// subscription order, exactly once each. Subscribing after completion
// still yields exactly one asynchronous callback.
//
// # Concurrency
//
// Events may be subscribed to from any goroutine. The single blocking
// backend wait per in-flight event is confined to one dedicated
// goroutine; subscriber callbacks never run on it.
package compute

// Version information
const (
	// Version is the current version of the library
	Version = "0.2.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 2

	// VersionPatch is the patch version
	VersionPatch = 0
)
