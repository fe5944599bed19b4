package compute

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/compute/backend"
)

// mockHandle is a backend.WaitHandle with a controllable wait.
type mockHandle struct {
	waitErr error

	// block, when non-nil, stalls Wait until closed.
	block chan struct{}

	waits    atomic.Int32
	releases atomic.Int32
}

func (h *mockHandle) Wait() error {
	h.waits.Add(1)
	if h.block != nil {
		<-h.block
	}
	return h.waitErr
}

func (h *mockHandle) Release() {
	h.releases.Add(1)
}

// mockDevice implements backend.Device against host memory.
type mockDevice struct {
	mu     sync.Mutex
	nextID uint64

	queues   map[backend.QueueID]struct{}
	buffers  map[backend.BufferID][]byte
	programs map[backend.ProgramID]string
	kernels  map[backend.KernelID]*mockKernel

	// submitErr, when set, fails every enqueue at submission.
	submitErr error

	dispatches int
	closed     bool
}

type mockKernel struct {
	entry string
	args  map[uint32]backend.KernelArg
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		nextID:   1,
		queues:   make(map[backend.QueueID]struct{}),
		buffers:  make(map[backend.BufferID][]byte),
		programs: make(map[backend.ProgramID]string),
		kernels:  make(map[backend.KernelID]*mockKernel),
	}
}

func (d *mockDevice) newID() uint64 {
	id := d.nextID
	d.nextID++
	return id
}

func (d *mockDevice) Info() backend.DeviceInfo {
	return backend.DeviceInfo{
		Name:             "mock device",
		Type:             backend.DeviceTypeGPU,
		MaxWorkgroupSize: [3]uint32{256, 256, 64},
		MaxBufferSize:    1 << 20,
	}
}

func (d *mockDevice) CreateQueue() (backend.QueueID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := backend.QueueID(d.newID())
	d.queues[id] = struct{}{}
	return id, nil
}

func (d *mockDevice) DestroyQueue(q backend.QueueID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.queues, q)
}

func (d *mockDevice) FlushQueue(q backend.QueueID) error {
	return d.checkQueue(q)
}

func (d *mockDevice) FinishQueue(q backend.QueueID) (backend.WaitHandle, error) {
	if err := d.checkQueue(q); err != nil {
		return nil, err
	}
	return d.handle()
}

func (d *mockDevice) checkQueue(q backend.QueueID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.queues[q]; !ok {
		return fmt.Errorf("mock: unknown queue %d", q)
	}
	return nil
}

func (d *mockDevice) handle() (backend.WaitHandle, error) {
	d.mu.Lock()
	err := d.submitErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &mockHandle{}, nil
}

func (d *mockDevice) CreateBuffer(size uint64, usage backend.BufferUsage) (backend.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := backend.BufferID(d.newID())
	d.buffers[id] = make([]byte, size)
	return id, nil
}

func (d *mockDevice) DestroyBuffer(b backend.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, b)
}

func (d *mockDevice) EnqueueWriteBuffer(q backend.QueueID, b backend.BufferID, offset uint64, data []byte) (backend.WaitHandle, error) {
	if err := d.checkQueue(q); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if buf, ok := d.buffers[b]; ok {
		copy(buf[offset:], data)
	}
	d.mu.Unlock()
	return d.handle()
}

func (d *mockDevice) EnqueueReadBuffer(q backend.QueueID, b backend.BufferID, offset uint64, dst []byte) (backend.WaitHandle, error) {
	if err := d.checkQueue(q); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if buf, ok := d.buffers[b]; ok {
		copy(dst, buf[offset:])
	}
	d.mu.Unlock()
	return d.handle()
}

func (d *mockDevice) CreateImage(desc *backend.ImageDescriptor) (backend.ImageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return backend.ImageID(d.newID()), nil
}

func (d *mockDevice) DestroyImage(img backend.ImageID) {}

func (d *mockDevice) EnqueueWriteImage(q backend.QueueID, img backend.ImageID, data []byte) (backend.WaitHandle, error) {
	if err := d.checkQueue(q); err != nil {
		return nil, err
	}
	return d.handle()
}

func (d *mockDevice) EnqueueReadImage(q backend.QueueID, img backend.ImageID, dst []byte) (backend.WaitHandle, error) {
	if err := d.checkQueue(q); err != nil {
		return nil, err
	}
	return d.handle()
}

func (d *mockDevice) BuildProgram(source string, opts *backend.BuildOptions) (backend.ProgramID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := backend.ProgramID(d.newID())
	d.programs[id] = source
	return id, nil
}

func (d *mockDevice) DestroyProgram(p backend.ProgramID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.programs, p)
}

func (d *mockDevice) CreateKernel(p backend.ProgramID, name string) (backend.KernelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.programs[p]; !ok {
		return backend.InvalidID, fmt.Errorf("mock: unknown program %d", p)
	}
	id := backend.KernelID(d.newID())
	d.kernels[id] = &mockKernel{entry: name, args: make(map[uint32]backend.KernelArg)}
	return id, nil
}

func (d *mockDevice) DestroyKernel(k backend.KernelID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.kernels, k)
}

func (d *mockDevice) SetKernelArg(k backend.KernelID, index uint32, arg backend.KernelArg) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	kr, ok := d.kernels[k]
	if !ok {
		return fmt.Errorf("mock: unknown kernel %d", k)
	}
	kr.args[index] = arg
	return nil
}

func (d *mockDevice) EnqueueKernel(q backend.QueueID, k backend.KernelID, global, local [3]uint32) (backend.WaitHandle, error) {
	if err := d.checkQueue(q); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if _, ok := d.kernels[k]; !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("mock: unknown kernel %d", k)
	}
	d.dispatches++
	d.mu.Unlock()
	return d.handle()
}

func (d *mockDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

// mockBackend implements backend.Backend over mockDevice.
type mockBackend struct {
	dev         *mockDevice
	initialized bool
	closes      int
}

func newMockBackend() *mockBackend {
	return &mockBackend{dev: newMockDevice()}
}

func (b *mockBackend) Name() string { return "mock" }

func (b *mockBackend) Init() error {
	b.initialized = true
	return nil
}

func (b *mockBackend) Close() { b.closes++ }

func (b *mockBackend) Devices() []backend.DeviceInfo {
	return []backend.DeviceInfo{b.dev.Info()}
}

func (b *mockBackend) OpenDevice(t backend.DeviceType) (backend.Device, error) {
	if t != backend.DeviceTypeAny && t != backend.DeviceTypeGPU {
		return nil, backend.ErrBackendNotAvailable
	}
	return b.dev, nil
}

// newTestContext opens a context on a fresh mock backend.
func newTestContext(t *testing.T) (*Context, *mockBackend) {
	t.Helper()
	b := newMockBackend()
	if err := b.Init(); err != nil {
		t.Fatalf("init mock backend: %v", err)
	}
	ctx, err := NewContextOn(b, DeviceTypeGPU)
	if err != nil {
		t.Fatalf("NewContextOn() error: %v", err)
	}
	return ctx, b
}
