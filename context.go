// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/compute/backend"
)

// Context owns one open device session and is the factory for every
// resource created on it: queues, buffers, images, and programs. A
// Context is obtained from NewContext (default backend), NewContextOn
// (explicit backend), NewContextFromProvider (device shared with a
// running application), or through a [Registry].
//
// Closing the context releases the device session and invalidates all
// resources created from it. Context is safe for concurrent use.
type Context struct {
	mu sync.Mutex

	backend backend.Backend
	dev     backend.Device

	// ownsBackend is set when the context initialized the backend
	// itself and must close it again.
	ownsBackend bool
	closed      bool
}

// NewContext opens a device of the given type on the default backend.
func NewContext(t DeviceType) (*Context, error) {
	b, err := backend.InitDefault()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoBackend, err)
	}
	ctx, err := newContext(b, t, true)
	if err != nil {
		b.Close()
		return nil, err
	}
	return ctx, nil
}

// NewContextOn opens a device of the given type on an explicit,
// already initialized backend. The caller keeps ownership of b.
func NewContextOn(b backend.Backend, t DeviceType) (*Context, error) {
	if b == nil {
		return nil, ErrNoBackend
	}
	return newContext(b, t, false)
}

func newContext(b backend.Backend, t DeviceType, owns bool) (*Context, error) {
	propagateLogger(b)

	dev, err := b.OpenDevice(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}

	info := dev.Info()
	Logger().Info("compute: context opened",
		"device", info.Name, "type", info.Type.String())

	return &Context{backend: b, dev: dev, ownsBackend: owns}, nil
}

// providerOpener is implemented by backends that can wrap an externally
// owned device instead of opening their own.
type providerOpener interface {
	OpenProvidedDevice(provider any) (backend.Device, error)
}

// NewContextFromProvider opens a context on a device shared by a
// running gogpu application, so compute work and rendering use the
// same GPU device. The context does not own the device; closing it
// leaves the provider's device alive.
func NewContextFromProvider(provider gpucontext.DeviceProvider) (*Context, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil device provider", ErrNoDevice)
	}

	b := backend.Default()
	if b == nil {
		return nil, ErrNoBackend
	}
	propagateLogger(b)

	po, ok := b.(providerOpener)
	if !ok {
		return nil, fmt.Errorf("%w: backend %q cannot share devices", ErrNoBackend, b.Name())
	}
	dev, err := po.OpenProvidedDevice(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDevice, err)
	}

	Logger().Info("compute: context opened on shared device")
	return &Context{backend: b, dev: dev}, nil
}

// Device returns the discovery metadata of the context's device.
func (c *Context) Device() *Device {
	return &Device{info: c.dev.Info()}
}

// device returns the open session, or an error once the context is
// closed. Resource proxies call this before every backend operation.
func (c *Context) device() (backend.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	return c.dev, nil
}

// NewQueue creates a command queue on the context's device.
func (c *Context) NewQueue() (*Queue, error) {
	dev, err := c.device()
	if err != nil {
		return nil, err
	}
	id, err := dev.CreateQueue()
	if err != nil {
		return nil, fmt.Errorf("compute: create queue: %w", err)
	}
	return &Queue{ctx: c, id: id}, nil
}

// NewBuffer allocates a device buffer of size bytes.
func (c *Context) NewBuffer(size uint64, usage BufferUsage) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: zero-size buffer", ErrInvalidSize)
	}
	dev, err := c.device()
	if err != nil {
		return nil, err
	}
	if maxSize := dev.Info().MaxBufferSize; maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%w: %d exceeds device limit %d", ErrInvalidSize, size, maxSize)
	}
	id, err := dev.CreateBuffer(size, usage)
	if err != nil {
		return nil, fmt.Errorf("compute: create buffer: %w", err)
	}
	return &Buffer{ctx: c, id: id, size: size, usage: usage}, nil
}

// NewImage allocates a 2D image.
func (c *Context) NewImage(desc *ImageDescriptor) (*Image, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: image dimensions must be positive", ErrInvalidDimensions)
	}
	dev, err := c.device()
	if err != nil {
		return nil, err
	}
	id, err := dev.CreateImage(&backend.ImageDescriptor{
		Width:  desc.Width,
		Height: desc.Height,
		Format: desc.Format,
		Usage:  desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("compute: create image: %w", err)
	}
	return &Image{ctx: c, id: id, desc: *desc}, nil
}

// BuildProgram compiles source into an executable program. Kernels are
// instantiated from the program's entry points via [Program.Kernel].
func (c *Context) BuildProgram(source string, opts *BuildOptions) (*Program, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: empty program source", ErrInvalidSize)
	}
	dev, err := c.device()
	if err != nil {
		return nil, err
	}
	var bopts *backend.BuildOptions
	if opts != nil {
		bopts = &backend.BuildOptions{Label: opts.Label}
	}
	id, err := dev.BuildProgram(source, bopts)
	if err != nil {
		return nil, fmt.Errorf("compute: build program: %w", err)
	}
	return &Program{ctx: c, id: id}, nil
}

// Close releases the device session and, when the context initialized
// the backend itself, the backend too. Close is idempotent. Resources
// created from the context must not be used afterwards.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	dev := c.dev
	c.mu.Unlock()

	dev.Close()
	if c.ownsBackend {
		c.backend.Close()
	}
	Logger().Debug("compute: context closed")
}

// ImageDescriptor describes a 2D image created via [Context.NewImage].
type ImageDescriptor = backend.ImageDescriptor

// BuildOptions configures program compilation.
type BuildOptions = backend.BuildOptions
