// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package wgpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/internal/shadercache"
)

// copyPitchAlignment is the BytesPerRow alignment required for
// texture-to-buffer copies (WebGPU and DX12 mandate 256).
const copyPitchAlignment = 256

// device is an open session on one HAL device. It implements
// backend.Device.
//
// Thread Safety: device is safe for concurrent use from multiple
// goroutines. All resource operations are protected by a mutex.
type device struct {
	mu    sync.RWMutex
	hal   hal.Device
	queue hal.Queue
	info  backend.DeviceInfo

	// owned reports whether this session owns the HAL device and must
	// destroy it on Close. Shared devices stay alive for their owner.
	owned  bool
	closed bool

	nextID atomic.Uint64

	queues   map[backend.QueueID]struct{}
	buffers  map[backend.BufferID]*bufferRes
	images   map[backend.ImageID]*imageRes
	programs map[backend.ProgramID]*programRes
	kernels  map[backend.KernelID]*kernelRes

	shaders *shadercache.Cache
}

type bufferRes struct {
	buf   hal.Buffer
	size  uint64
	usage backend.BufferUsage
}

type imageRes struct {
	tex  hal.Texture
	desc backend.ImageDescriptor
}

type programRes struct {
	spirv []uint32
	label string
}

type kernelRes struct {
	entry  string
	module hal.ShaderModule

	args []backend.KernelArg

	// Pipeline state, rebuilt when the argument shape changes.
	signature string
	bgLayout  hal.BindGroupLayout
	layout    hal.PipelineLayout
	pipeline  hal.ComputePipeline
}

// newDevice wraps a HAL device and queue in a compute session.
func newDevice(halDev hal.Device, queue hal.Queue, info backend.DeviceInfo, owned bool) *device {
	d := &device{
		hal:      halDev,
		queue:    queue,
		info:     info,
		owned:    owned,
		queues:   make(map[backend.QueueID]struct{}),
		buffers:  make(map[backend.BufferID]*bufferRes),
		images:   make(map[backend.ImageID]*imageRes),
		programs: make(map[backend.ProgramID]*programRes),
		kernels:  make(map[backend.KernelID]*kernelRes),
		shaders:  shadercache.New(shadercache.DefaultCapacity),
	}
	d.nextID.Store(1)
	return d
}

// newID allocates the next resource identifier.
func (d *device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// Info returns the device description.
func (d *device) Info() backend.DeviceInfo {
	return d.info
}

// === Queues ===

func (d *device) CreateQueue() (backend.QueueID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return backend.InvalidID, ErrDeviceClosed
	}

	// HAL devices expose a single hardware queue; every QueueID aliases
	// it. Separate IDs still give callers independent lifetimes.
	id := backend.QueueID(d.newID())
	d.queues[id] = struct{}{}
	return id, nil
}

func (d *device) DestroyQueue(q backend.QueueID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.queues, q)
}

// FlushQueue is a no-op: queue writes and submissions reach the device
// immediately on this HAL.
func (d *device) FlushQueue(q backend.QueueID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checkQueueLocked(q)
}

// FinishQueue signals a fence behind all previously submitted work and
// returns a handle tracking it.
func (d *device) FinishQueue(q backend.QueueID) (backend.WaitHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkQueueLocked(q); err != nil {
		return nil, err
	}
	return d.signalFenceLocked(nil, nil, nil)
}

func (d *device) checkQueueLocked(q backend.QueueID) error {
	if d.closed {
		return ErrDeviceClosed
	}
	if _, ok := d.queues[q]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownQueue, q)
	}
	return nil
}

// signalFenceLocked creates a fence, submits cmdBufs (nil submits an
// empty batch, fencing all prior work), and wraps the fence in a
// handle. after and cleanup are forwarded to the handle.
func (d *device) signalFenceLocked(cmdBufs []hal.CommandBuffer, after func() error, cleanup func()) (backend.WaitHandle, error) {
	fence, err := d.hal.CreateFence()
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, fmt.Errorf("wgpu: create fence: %w", err)
	}
	if err := d.queue.Submit(cmdBufs, fence, 1); err != nil {
		d.hal.DestroyFence(fence)
		if cleanup != nil {
			cleanup()
		}
		return nil, fmt.Errorf("wgpu: submit: %w", err)
	}
	return &fenceHandle{dev: d.hal, fence: fence, value: 1, after: after, cleanup: cleanup}, nil
}

// === Buffers ===

func (d *device) CreateBuffer(size uint64, usage backend.BufferUsage) (backend.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return backend.InvalidID, ErrDeviceClosed
	}
	if size == 0 {
		return backend.InvalidID, fmt.Errorf("wgpu: zero-size buffer")
	}
	if d.info.MaxBufferSize > 0 && size > d.info.MaxBufferSize {
		return backend.InvalidID, fmt.Errorf("wgpu: buffer size %d exceeds device limit %d", size, d.info.MaxBufferSize)
	}

	buf, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("compute_buffer_%d", d.nextID.Load()),
		Size:  size,
		Usage: bufferUsageFlags(usage),
	})
	if err != nil {
		return backend.InvalidID, fmt.Errorf("wgpu: create buffer: %w", err)
	}

	id := backend.BufferID(d.newID())
	d.buffers[id] = &bufferRes{buf: buf, size: size, usage: usage}
	return id, nil
}

func (d *device) DestroyBuffer(b backend.BufferID) {
	d.mu.Lock()
	res, ok := d.buffers[b]
	delete(d.buffers, b)
	d.mu.Unlock()

	if ok {
		d.hal.DestroyBuffer(res.buf)
	}
}

// bufferUsageFlags maps the portable usage flags onto HAL buffer usage.
// Every buffer is a storage buffer so kernels can bind it; host access
// adds the transfer flags.
func bufferUsageFlags(usage backend.BufferUsage) gputypes.BufferUsage {
	flags := gputypes.BufferUsageStorage
	if usage&backend.BufferHostWrite != 0 {
		flags |= gputypes.BufferUsageCopyDst
	}
	if usage&backend.BufferHostRead != 0 {
		flags |= gputypes.BufferUsageCopySrc
	}
	return flags
}

func (d *device) EnqueueWriteBuffer(q backend.QueueID, b backend.BufferID, offset uint64, data []byte) (backend.WaitHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkQueueLocked(q); err != nil {
		return nil, err
	}
	res, ok := d.buffers[b]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBuffer, b)
	}
	if offset > res.size || uint64(len(data)) > res.size-offset {
		return nil, fmt.Errorf("wgpu: write of %d bytes at offset %d exceeds buffer size %d", len(data), offset, res.size)
	}

	d.queue.WriteBuffer(res.buf, offset, data)

	// The HAL guarantees queue writes land before any later submission,
	// so fence the write to give the caller a real completion point.
	return d.signalFenceLocked(nil, nil, nil)
}

func (d *device) EnqueueReadBuffer(q backend.QueueID, b backend.BufferID, offset uint64, dst []byte) (backend.WaitHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkQueueLocked(q); err != nil {
		return nil, err
	}
	res, ok := d.buffers[b]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBuffer, b)
	}
	size := uint64(len(dst))
	if offset > res.size || size > res.size-offset {
		return nil, fmt.Errorf("wgpu: read of %d bytes at offset %d exceeds buffer size %d", len(dst), offset, res.size)
	}
	if size == 0 {
		return d.signalFenceLocked(nil, nil, nil)
	}

	// Device-local storage is not host-visible: copy through a MapRead
	// staging buffer, then read it back once the fence signals.
	staging, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: "compute_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}

	encoder, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "compute_read"})
	if err != nil {
		d.hal.DestroyBuffer(staging)
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("compute_read"); err != nil {
		d.hal.DestroyBuffer(staging)
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(res.buf, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		d.hal.DestroyBuffer(staging)
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}

	after := func() error {
		if err := d.queue.ReadBuffer(staging, 0, dst); err != nil {
			return fmt.Errorf("wgpu: readback: %w", err)
		}
		return nil
	}
	cleanup := func() {
		d.hal.FreeCommandBuffer(cmdBuf)
		d.hal.DestroyBuffer(staging)
	}
	return d.signalFenceLocked([]hal.CommandBuffer{cmdBuf}, after, cleanup)
}

// === Images ===

func (d *device) CreateImage(desc *backend.ImageDescriptor) (backend.ImageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return backend.InvalidID, ErrDeviceClosed
	}
	if desc.Width == 0 || desc.Height == 0 {
		return backend.InvalidID, fmt.Errorf("wgpu: zero image dimension")
	}
	if _, err := formatBytesPerPixel(desc.Format); err != nil {
		return backend.InvalidID, err
	}

	tex, err := d.hal.CreateTexture(&hal.TextureDescriptor{
		Label:         fmt.Sprintf("compute_image_%d", d.nextID.Load()),
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return backend.InvalidID, fmt.Errorf("wgpu: create texture: %w", err)
	}

	id := backend.ImageID(d.newID())
	d.images[id] = &imageRes{tex: tex, desc: *desc}
	return id, nil
}

func (d *device) DestroyImage(img backend.ImageID) {
	d.mu.Lock()
	res, ok := d.images[img]
	delete(d.images, img)
	d.mu.Unlock()

	if ok {
		d.hal.DestroyTexture(res.tex)
	}
}

func (d *device) EnqueueWriteImage(q backend.QueueID, img backend.ImageID, data []byte) (backend.WaitHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkQueueLocked(q); err != nil {
		return nil, err
	}
	res, ok := d.images[img]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownImage, img)
	}
	bpp, err := formatBytesPerPixel(res.desc.Format)
	if err != nil {
		return nil, err
	}
	want := uint64(res.desc.Width) * uint64(res.desc.Height) * uint64(bpp)
	if uint64(len(data)) != want {
		return nil, fmt.Errorf("wgpu: image data is %d bytes, want %d", len(data), want)
	}

	d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  res.tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: 0, Y: 0, Z: 0},
			Aspect:   gputypes.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  res.desc.Width * bpp,
			RowsPerImage: res.desc.Height,
		},
		&hal.Extent3D{Width: res.desc.Width, Height: res.desc.Height, DepthOrArrayLayers: 1},
	)

	return d.signalFenceLocked(nil, nil, nil)
}

func (d *device) EnqueueReadImage(q backend.QueueID, img backend.ImageID, dst []byte) (backend.WaitHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkQueueLocked(q); err != nil {
		return nil, err
	}
	res, ok := d.images[img]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownImage, img)
	}
	bpp, err := formatBytesPerPixel(res.desc.Format)
	if err != nil {
		return nil, err
	}
	w, h := res.desc.Width, res.desc.Height
	want := uint64(w) * uint64(h) * uint64(bpp)
	if uint64(len(dst)) != want {
		return nil, fmt.Errorf("wgpu: image buffer is %d bytes, want %d", len(dst), want)
	}

	// Texture-to-buffer copies require 256-byte row alignment; copy to
	// an aligned staging buffer, then strip the padding after the wait.
	bytesPerRow := w * bpp
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ uint32(copyPitchAlignment-1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(h)

	staging, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: "compute_image_staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}

	encoder, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "compute_image_read"})
	if err != nil {
		d.hal.DestroyBuffer(staging)
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("compute_image_read"); err != nil {
		d.hal.DestroyBuffer(staging)
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	encoder.CopyTextureToBuffer(res.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: res.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		d.hal.DestroyBuffer(staging)
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}

	after := func() error {
		readback := make([]byte, stagingSize)
		if err := d.queue.ReadBuffer(staging, 0, readback); err != nil {
			return fmt.Errorf("wgpu: readback: %w", err)
		}
		for row := uint32(0); row < h; row++ {
			src := readback[uint64(row)*uint64(alignedBytesPerRow):]
			copy(dst[uint64(row)*uint64(bytesPerRow):uint64(row+1)*uint64(bytesPerRow)], src[:bytesPerRow])
		}
		return nil
	}
	cleanup := func() {
		d.hal.FreeCommandBuffer(cmdBuf)
		d.hal.DestroyBuffer(staging)
	}
	return d.signalFenceLocked([]hal.CommandBuffer{cmdBuf}, after, cleanup)
}

// formatBytesPerPixel returns the pixel stride of the formats this
// backend uploads and reads back.
func formatBytesPerPixel(f gputypes.TextureFormat) (uint32, error) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4, nil
	case gputypes.TextureFormatR8Unorm:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: texture format %v", backend.ErrUnsupported, f)
	}
}

// === Programs ===

func (d *device) BuildProgram(source string, opts *backend.BuildOptions) (backend.ProgramID, error) {
	if source == "" {
		return backend.InvalidID, fmt.Errorf("wgpu: empty program source")
	}

	code, err := d.compileWGSL(source)
	if err != nil {
		return backend.InvalidID, err
	}

	label := ""
	if opts != nil {
		label = opts.Label
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return backend.InvalidID, ErrDeviceClosed
	}
	id := backend.ProgramID(d.newID())
	d.programs[id] = &programRes{spirv: code, label: label}
	return id, nil
}

func (d *device) DestroyProgram(p backend.ProgramID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.programs, p)
}

// === Kernels ===

func (d *device) CreateKernel(p backend.ProgramID, name string) (backend.KernelID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return backend.InvalidID, ErrDeviceClosed
	}
	prog, ok := d.programs[p]
	if !ok {
		return backend.InvalidID, fmt.Errorf("%w: %d", ErrUnknownProgram, p)
	}
	if name == "" {
		return backend.InvalidID, fmt.Errorf("wgpu: empty kernel entry point")
	}

	label := prog.label
	if label == "" {
		label = "compute_kernel"
	}
	module, err := d.createShaderModule(label+"_"+name, prog.spirv)
	if err != nil {
		return backend.InvalidID, fmt.Errorf("wgpu: create shader module: %w", err)
	}

	id := backend.KernelID(d.newID())
	d.kernels[id] = &kernelRes{entry: name, module: module}
	return id, nil
}

func (d *device) DestroyKernel(k backend.KernelID) {
	d.mu.Lock()
	res, ok := d.kernels[k]
	delete(d.kernels, k)
	d.mu.Unlock()

	if ok {
		d.destroyKernelState(res)
		d.hal.DestroyShaderModule(res.module)
	}
}

// destroyKernelState tears down the cached pipeline objects.
func (d *device) destroyKernelState(res *kernelRes) {
	if res.pipeline != nil {
		d.hal.DestroyComputePipeline(res.pipeline)
		res.pipeline = nil
	}
	if res.layout != nil {
		d.hal.DestroyPipelineLayout(res.layout)
		res.layout = nil
	}
	if res.bgLayout != nil {
		d.hal.DestroyBindGroupLayout(res.bgLayout)
		res.bgLayout = nil
	}
	res.signature = ""
}

func (d *device) SetKernelArg(k backend.KernelID, index uint32, arg backend.KernelArg) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	res, ok := d.kernels[k]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownKernel, k)
	}

	switch arg.Kind {
	case backend.ArgBuffer:
		if _, ok := d.buffers[arg.Buffer]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownBuffer, arg.Buffer)
		}
	case backend.ArgImage:
		// Storage texture bindings are not exposed by the HAL yet.
		return fmt.Errorf("%w: image kernel arguments", backend.ErrUnsupported)
	case backend.ArgData:
		if len(arg.Data) == 0 {
			return fmt.Errorf("wgpu: empty data argument")
		}
		arg.Data = append([]byte(nil), arg.Data...)
	default:
		return fmt.Errorf("wgpu: unknown argument kind %d", arg.Kind)
	}

	for uint32(len(res.args)) <= index {
		res.args = append(res.args, backend.KernelArg{})
	}
	res.args[index] = arg
	return nil
}

func (d *device) EnqueueKernel(q backend.QueueID, k backend.KernelID, global, local [3]uint32) (backend.WaitHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkQueueLocked(q); err != nil {
		return nil, err
	}
	res, ok := d.kernels[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKernel, k)
	}
	if len(res.args) == 0 {
		return nil, ErrNoArguments
	}
	if global[0] == 0 || global[1] == 0 || global[2] == 0 {
		return nil, fmt.Errorf("wgpu: zero workgroup count %v", global)
	}
	// local is advisory: workgroup sizes are fixed in WGSL at compile
	// time, so the dispatch only consumes the workgroup counts.
	_ = local

	if err := d.ensurePipelineLocked(res); err != nil {
		return nil, err
	}

	// Per-dispatch resources: a uniform buffer per data argument and
	// one bind group over the current bindings.
	var uniformBufs []hal.Buffer
	teardown := func() {
		for _, ub := range uniformBufs {
			d.hal.DestroyBuffer(ub)
		}
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(res.args))
	for i, arg := range res.args {
		switch arg.Kind {
		case backend.ArgBuffer:
			bres, ok := d.buffers[arg.Buffer]
			if !ok {
				teardown()
				return nil, fmt.Errorf("%w: %d (argument %d)", ErrUnknownBuffer, arg.Buffer, i)
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  uint32(i),
				Resource: gputypes.BufferBinding{Buffer: bres.buf.NativeHandle(), Offset: 0, Size: bres.size},
			})
		case backend.ArgData:
			ub, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
				Label: "compute_uniform",
				Size:  uint64(len(arg.Data)),
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				teardown()
				return nil, fmt.Errorf("wgpu: create uniform buffer: %w", err)
			}
			uniformBufs = append(uniformBufs, ub)
			d.queue.WriteBuffer(ub, 0, arg.Data)
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  uint32(i),
				Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: uint64(len(arg.Data))},
			})
		default:
			teardown()
			return nil, fmt.Errorf("wgpu: argument %d is not set", i)
		}
	}

	bg, err := d.hal.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "compute_bind",
		Layout:  res.bgLayout,
		Entries: entries,
	})
	if err != nil {
		teardown()
		return nil, fmt.Errorf("wgpu: create bind group: %w", err)
	}

	encoder, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "compute_dispatch"})
	if err != nil {
		d.hal.DestroyBindGroup(bg)
		teardown()
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("compute_dispatch"); err != nil {
		d.hal.DestroyBindGroup(bg)
		teardown()
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "compute_dispatch"})
	pass.SetPipeline(res.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(global[0], global[1], global[2])
	pass.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		d.hal.DestroyBindGroup(bg)
		teardown()
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}

	slogger().Debug("wgpu: kernel dispatched",
		"kernel", res.entry, "workgroups", global, "bindings", len(entries))

	cleanup := func() {
		d.hal.FreeCommandBuffer(cmdBuf)
		d.hal.DestroyBindGroup(bg)
		teardown()
	}
	return d.signalFenceLocked([]hal.CommandBuffer{cmdBuf}, nil, cleanup)
}

// ensurePipelineLocked builds the bind group layout, pipeline layout,
// and compute pipeline for the kernel's current argument shape. The
// pipeline is cached until the shape changes.
func (d *device) ensurePipelineLocked(res *kernelRes) error {
	sig := argSignature(res.args, d.bufferWritableLocked)
	if res.pipeline != nil && res.signature == sig {
		return nil
	}
	d.destroyKernelState(res)

	layoutEntries := make([]gputypes.BindGroupLayoutEntry, 0, len(res.args))
	for i, arg := range res.args {
		entry := gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
		}
		switch arg.Kind {
		case backend.ArgBuffer:
			bres, ok := d.buffers[arg.Buffer]
			if !ok {
				return fmt.Errorf("%w: %d (argument %d)", ErrUnknownBuffer, arg.Buffer, i)
			}
			bindingType := gputypes.BufferBindingTypeStorage
			if bres.usage&backend.BufferWrite == 0 {
				bindingType = gputypes.BufferBindingTypeReadOnlyStorage
			}
			entry.Buffer = &gputypes.BufferBindingLayout{Type: bindingType}
		case backend.ArgData:
			entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
		default:
			return fmt.Errorf("wgpu: argument %d is not set", i)
		}
		layoutEntries = append(layoutEntries, entry)
	}

	bgLayout, err := d.hal.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   res.entry + "_bgl",
		Entries: layoutEntries,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create bind group layout: %w", err)
	}

	layout, err := d.hal.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            res.entry + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		d.hal.DestroyBindGroupLayout(bgLayout)
		return fmt.Errorf("wgpu: create pipeline layout: %w", err)
	}

	pipeline, err := d.hal.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  res.entry,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     res.module,
			EntryPoint: res.entry,
		},
	})
	if err != nil {
		d.hal.DestroyPipelineLayout(layout)
		d.hal.DestroyBindGroupLayout(bgLayout)
		return fmt.Errorf("wgpu: create compute pipeline: %w", err)
	}

	res.bgLayout = bgLayout
	res.layout = layout
	res.pipeline = pipeline
	res.signature = sig
	return nil
}

// argSignature encodes the argument shape a pipeline was built for.
// Buffer access mode matters, since it selects the binding type; data
// size does not.
func argSignature(args []backend.KernelArg, writable func(backend.BufferID) bool) string {
	sig := make([]byte, len(args))
	for i, arg := range args {
		switch arg.Kind {
		case backend.ArgBuffer:
			if writable(arg.Buffer) {
				sig[i] = 'B'
			} else {
				sig[i] = 'b'
			}
		case backend.ArgImage:
			sig[i] = 'I'
		case backend.ArgData:
			sig[i] = 'D'
		default:
			sig[i] = '?'
		}
	}
	return string(sig)
}

// bufferWritableLocked reports whether the buffer bound at id allows
// shader writes. Callers must hold d.mu.
func (d *device) bufferWritableLocked(id backend.BufferID) bool {
	res, ok := d.buffers[id]
	return ok && res.usage&backend.BufferWrite != 0
}

// === Lifecycle ===

// Close releases all resources created on the session. An owned HAL
// device is destroyed; shared devices are left to their owner.
func (d *device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true

	for id, res := range d.kernels {
		d.destroyKernelState(res)
		d.hal.DestroyShaderModule(res.module)
		delete(d.kernels, id)
	}
	for id, res := range d.images {
		d.hal.DestroyTexture(res.tex)
		delete(d.images, id)
	}
	for id, res := range d.buffers {
		d.hal.DestroyBuffer(res.buf)
		delete(d.buffers, id)
	}
	for id := range d.programs {
		delete(d.programs, id)
	}
	for id := range d.queues {
		delete(d.queues, id)
	}

	if d.owned {
		d.hal.Destroy()
	}

	slogger().Debug("wgpu: device session closed")
}
