// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package wgpu

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/backend"
)

// Backend is a compute backend over WebGPU via the gogpu/wgpu HAL.
// It implements the backend.Backend interface.
//
// Backend is safe for concurrent use from multiple goroutines.
type Backend struct {
	mu sync.RWMutex

	instance hal.Instance
	adapters []hal.ExposedAdapter

	initialized bool
}

// NewBackend creates a new wgpu compute backend.
// The backend must be initialized with Init() before use.
func NewBackend() *Backend {
	return &Backend{}
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return backend.BackendWGPU
}

// SetLogger routes this package's logging through l.
// Called by compute.SetLogger propagation.
func (b *Backend) SetLogger(l *slog.Logger) {
	setLogger(l)
}

// Init initializes the backend: it creates a HAL instance and
// enumerates the available GPU adapters.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	halBackend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("%w: vulkan HAL backend missing", ErrNoAdapter)
	}

	instance, err := halBackend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return ErrNoAdapter
	}

	b.instance = instance
	b.adapters = adapters
	b.initialized = true

	slogger().Info("wgpu: backend initialized", "adapters", len(adapters))
	return nil
}

// Close releases the HAL instance.
// The backend should not be used after Close is called.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return
	}

	b.adapters = nil
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
	b.initialized = false

	slogger().Debug("wgpu: backend closed")
}

// Devices enumerates the available compute devices.
func (b *Backend) Devices() []backend.DeviceInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	infos := make([]backend.DeviceInfo, 0, len(b.adapters))
	for i := range b.adapters {
		infos = append(infos, adapterInfo(&b.adapters[i]))
	}
	return infos
}

// OpenDevice opens a session on the first adapter matching t.
func (b *Backend) OpenDevice(t backend.DeviceType) (backend.Device, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return nil, ErrNotInitialized
	}

	selected := selectAdapter(b.adapters, t)
	if selected == nil {
		return nil, fmt.Errorf("%w: no %s adapter", backend.ErrBackendNotAvailable, t)
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		return nil, fmt.Errorf("wgpu: open adapter %q: %w", selected.Info.Name, err)
	}

	info := adapterInfo(selected)
	info.MaxBufferSize = limits.MaxBufferSize
	info.MaxWorkgroupSize = [3]uint32{
		limits.MaxComputeWorkgroupSizeX,
		limits.MaxComputeWorkgroupSizeY,
		limits.MaxComputeWorkgroupSizeZ,
	}

	slogger().Info("wgpu: device opened", "adapter", selected.Info.Name)
	return newDevice(openDev.Device, openDev.Queue, info, true), nil
}

// OpenProvidedDevice wraps an externally owned HAL device and queue
// (for example shared from a gogpu application) in a device session.
// The session does not destroy the device on Close.
//
// provider must expose HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue, the gpucontext provider convention.
func (b *Backend) OpenProvidedDevice(provider any) (backend.Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProviderIncompatible
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProviderIncompatible)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProviderIncompatible)
	}

	info := backend.DeviceInfo{
		Name: "shared",
		Type: backend.DeviceTypeGPU,
	}

	slogger().Debug("wgpu: using shared GPU device")
	return newDevice(device, queue, info, false), nil
}

// adapterInfo converts HAL adapter metadata to a backend.DeviceInfo.
func adapterInfo(a *hal.ExposedAdapter) backend.DeviceInfo {
	return backend.DeviceInfo{
		Name: a.Info.Name,
		Type: deviceType(a.Info.DeviceType),
	}
}

// deviceType maps HAL device classes onto backend device types.
func deviceType(t gputypes.DeviceType) backend.DeviceType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU:
		return backend.DeviceTypeGPU
	default:
		return backend.DeviceTypeAny
	}
}

// selectAdapter picks the best adapter for the requested device type.
// Discrete GPUs win over integrated ones.
func selectAdapter(adapters []hal.ExposedAdapter, want backend.DeviceType) *hal.ExposedAdapter {
	var fallback *hal.ExposedAdapter
	for i := range adapters {
		a := &adapters[i]
		if want != backend.DeviceTypeAny && deviceType(a.Info.DeviceType) != want {
			continue
		}
		if a.Info.DeviceType == gputypes.DeviceTypeDiscreteGPU {
			return a
		}
		if fallback == nil {
			fallback = a
		}
	}
	return fallback
}
