package compute

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gogpu/compute/backend"
)

// TestNewContextOnValidation verifies factory validation.
func TestNewContextOnValidation(t *testing.T) {
	if _, err := NewContextOn(nil, DeviceTypeGPU); !errors.Is(err, ErrNoBackend) {
		t.Errorf("nil backend: err = %v, want ErrNoBackend", err)
	}

	b := newMockBackend()
	if _, err := NewContextOn(b, DeviceTypeCPU); !errors.Is(err, ErrNoDevice) {
		t.Errorf("unmatched type: err = %v, want ErrNoDevice", err)
	}
}

// TestContextClose verifies operating on a closed context fails.
func TestContextClose(t *testing.T) {
	ctx, _ := newTestContext(t)
	ctx.Close()
	ctx.Close() // idempotent

	if _, err := ctx.NewQueue(); !errors.Is(err, ErrContextClosed) {
		t.Errorf("NewQueue on closed context: err = %v, want ErrContextClosed", err)
	}
	if _, err := ctx.NewBuffer(16, BufferReadWrite); !errors.Is(err, ErrContextClosed) {
		t.Errorf("NewBuffer on closed context: err = %v, want ErrContextClosed", err)
	}
}

// TestContextDeviceInfo verifies discovery metadata passthrough.
func TestContextDeviceInfo(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	dev := ctx.Device()
	if dev.Name() != "mock device" {
		t.Errorf("Name() = %q", dev.Name())
	}
	if dev.Type() != DeviceTypeGPU {
		t.Errorf("Type() = %v, want GPU", dev.Type())
	}
	if dev.MaxBufferSize() == 0 {
		t.Error("MaxBufferSize() = 0")
	}
}

// TestBufferValidation verifies factory and enqueue validation.
func TestBufferValidation(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	if _, err := ctx.NewBuffer(0, BufferReadWrite); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("zero size: err = %v, want ErrInvalidSize", err)
	}
	if _, err := ctx.NewBuffer(2<<20, BufferReadWrite); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("oversized: err = %v, want ErrInvalidSize", err)
	}

	buf, err := ctx.NewBuffer(16, BufferReadWrite)
	if err != nil {
		t.Fatalf("NewBuffer() error: %v", err)
	}

	// Nil queue fails through the event, not synchronously.
	ev := buf.EnqueueWrite(nil, 0, make([]byte, 4))
	if err := ev.Wait(context.Background()); !errors.Is(err, ErrNilQueue) {
		t.Errorf("nil queue: err = %v, want ErrNilQueue", err)
	}

	q, err := ctx.NewQueue()
	if err != nil {
		t.Fatalf("NewQueue() error: %v", err)
	}
	ev = buf.EnqueueWrite(q, 12, make([]byte, 8))
	if err := ev.Wait(context.Background()); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("out of range: err = %v, want ErrOutOfRange", err)
	}

	// An offset near the uint64 maximum must not wrap the range check.
	ev = buf.EnqueueWrite(q, math.MaxUint64-3, make([]byte, 8))
	if err := ev.Wait(context.Background()); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("overflowing offset: err = %v, want ErrOutOfRange", err)
	}
	ev = buf.EnqueueRead(q, math.MaxUint64, make([]byte, 8))
	if err := ev.Wait(context.Background()); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("overflowing read offset: err = %v, want ErrOutOfRange", err)
	}
}

// TestBufferRoundTrip writes then reads back through events.
func TestBufferRoundTrip(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	q, err := ctx.NewQueue()
	if err != nil {
		t.Fatalf("NewQueue() error: %v", err)
	}
	buf, err := ctx.NewBuffer(16, BufferReadWrite)
	if err != nil {
		t.Fatalf("NewBuffer() error: %v", err)
	}
	defer buf.Release()

	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := buf.Write(context.Background(), q, 4, src); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	dst := make([]byte, 8)
	if err := buf.Read(context.Background(), q, 4, dst); err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if !bytes.Equal(dst, src) {
		t.Errorf("read back %v, want %v", dst, src)
	}
}

// TestBufferReleased verifies enqueueing on a released buffer fails.
func TestBufferReleased(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	q, _ := ctx.NewQueue()
	buf, err := ctx.NewBuffer(16, BufferReadWrite)
	if err != nil {
		t.Fatalf("NewBuffer() error: %v", err)
	}
	buf.Release()
	buf.Release() // idempotent

	ev := buf.EnqueueWrite(q, 0, make([]byte, 4))
	if err := ev.Wait(context.Background()); !errors.Is(err, ErrReleased) {
		t.Errorf("released buffer: err = %v, want ErrReleased", err)
	}
}

// TestSubmissionFailure verifies backend submission errors surface
// through the event to every subscriber.
func TestSubmissionFailure(t *testing.T) {
	ctx, b := newTestContext(t)
	defer ctx.Close()

	q, _ := ctx.NewQueue()
	buf, err := ctx.NewBuffer(16, BufferReadWrite)
	if err != nil {
		t.Fatalf("NewBuffer() error: %v", err)
	}

	submitErr := errors.New("queue exploded")
	b.dev.mu.Lock()
	b.dev.submitErr = submitErr
	b.dev.mu.Unlock()

	ev := buf.EnqueueWrite(q, 0, make([]byte, 4))
	if err := ev.Wait(context.Background()); !errors.Is(err, submitErr) {
		t.Errorf("Wait() = %v, want %v", err, submitErr)
	}

	got := make(chan error, 1)
	ev.Subscribe(func(_ *Event, err error) { got <- err })
	select {
	case err := <-got:
		if !errors.Is(err, submitErr) {
			t.Errorf("subscriber err = %v, want %v", err, submitErr)
		}
	case <-time.After(testTimeout):
		t.Fatal("subscriber never delivered")
	}
}

// TestQueueFinish verifies Finish produces a resolvable event.
func TestQueueFinish(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	q, err := ctx.NewQueue()
	if err != nil {
		t.Fatalf("NewQueue() error: %v", err)
	}
	if err := q.Flush(); err != nil {
		t.Errorf("Flush() error: %v", err)
	}

	ev := q.Finish()
	if ev.Queue() != q {
		t.Error("finish event should be associated with its queue")
	}
	if err := ev.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error: %v", err)
	}

	q.Release()
	if err := q.Flush(); !errors.Is(err, ErrReleased) {
		t.Errorf("Flush on released queue: err = %v, want ErrReleased", err)
	}
	ev = q.Finish()
	if err := ev.Wait(context.Background()); !errors.Is(err, ErrReleased) {
		t.Errorf("Finish on released queue: err = %v, want ErrReleased", err)
	}
}

// TestProgramAndKernel verifies the program build and dispatch path.
func TestProgramAndKernel(t *testing.T) {
	ctx, b := newTestContext(t)
	defer ctx.Close()

	if _, err := ctx.BuildProgram("", nil); err == nil {
		t.Error("empty source should fail")
	}

	prog, err := ctx.BuildProgram("@compute fn main() {}", &BuildOptions{Label: "test"})
	if err != nil {
		t.Fatalf("BuildProgram() error: %v", err)
	}
	defer prog.Release()

	if _, err := prog.Kernel(""); err == nil {
		t.Error("empty kernel name should fail")
	}
	k, err := prog.Kernel("main")
	if err != nil {
		t.Fatalf("Kernel() error: %v", err)
	}
	defer k.Release()
	if k.Name() != "main" {
		t.Errorf("Name() = %q, want main", k.Name())
	}

	buf, err := ctx.NewBuffer(64, BufferReadWrite)
	if err != nil {
		t.Fatalf("NewBuffer() error: %v", err)
	}
	if err := k.SetBuffer(0, buf); err != nil {
		t.Errorf("SetBuffer() error: %v", err)
	}
	if err := k.SetUint32(1, 42); err != nil {
		t.Errorf("SetUint32() error: %v", err)
	}
	if err := k.SetFloat32(2, 1.5); err != nil {
		t.Errorf("SetFloat32() error: %v", err)
	}
	if err := k.SetBuffer(0, nil); err == nil {
		t.Error("nil buffer argument should fail")
	}

	q, _ := ctx.NewQueue()
	ev := k.Enqueue(q, [3]uint32{4, 1, 1}, [3]uint32{64, 1, 1})
	if err := ev.Wait(context.Background()); err != nil {
		t.Fatalf("dispatch Wait() error: %v", err)
	}
	b.dev.mu.Lock()
	dispatches := b.dev.dispatches
	b.dev.mu.Unlock()
	if dispatches != 1 {
		t.Errorf("dispatches = %d, want 1", dispatches)
	}

	ev = k.Enqueue(q, [3]uint32{0, 1, 1}, [3]uint32{})
	if err := ev.Wait(context.Background()); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("zero workgroups: err = %v, want ErrInvalidDimensions", err)
	}
}

// TestRegistrySharing verifies contexts are cached per device type and
// closed with the registry.
func TestRegistrySharing(t *testing.T) {
	backend.Register("mock", func() backend.Backend { return newMockBackend() })
	defer backend.Unregister("mock")

	r := NewRegistry()
	c1, err := r.Context(DeviceTypeGPU)
	if err != nil {
		t.Fatalf("Context() error: %v", err)
	}
	c2, err := r.Context(DeviceTypeGPU)
	if err != nil {
		t.Fatalf("second Context() error: %v", err)
	}
	if c1 != c2 {
		t.Error("same device type should share one context")
	}

	r.Close()
	if _, err := r.Context(DeviceTypeGPU); !errors.Is(err, ErrContextClosed) {
		t.Errorf("Context after Close: err = %v, want ErrContextClosed", err)
	}
	if _, err := c1.NewQueue(); !errors.Is(err, ErrContextClosed) {
		t.Errorf("context should be closed with registry: err = %v", err)
	}
}
