package backend

import (
	"errors"

	"github.com/gogpu/gputypes"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrUnsupported is returned for operations the backend cannot perform.
	ErrUnsupported = errors.New("backend: operation not supported")
)

// WaitHandle is a backend-native completion token. The only operations
// the binding layer performs on it are the single blocking Wait and the
// final Release; everything else about it is opaque.
//
// Wait blocks the calling goroutine until the associated backend
// operation has completed, and returns a non-nil error only for
// backend-level wait failures. Release frees the underlying native
// object; it must be called exactly once, after Wait has returned or
// when the handle will never be waited on.
type WaitHandle interface {
	Wait() error
	Release()
}

// DeviceType selects a class of compute device.
type DeviceType uint32

const (
	// DeviceTypeAny matches any device.
	DeviceTypeAny DeviceType = iota

	// DeviceTypeGPU matches discrete or integrated GPUs.
	DeviceTypeGPU

	// DeviceTypeCPU matches CPU (software) devices.
	DeviceTypeCPU

	// DeviceTypeAccelerator matches dedicated compute accelerators.
	DeviceTypeAccelerator
)

// String returns the device type name.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeGPU:
		return "gpu"
	case DeviceTypeCPU:
		return "cpu"
	case DeviceTypeAccelerator:
		return "accelerator"
	default:
		return "any"
	}
}

// DeviceInfo describes one compute device exposed by a backend.
type DeviceInfo struct {
	// Name is the device name (e.g., "NVIDIA GeForce RTX 3080").
	Name string

	// Vendor is the device vendor.
	Vendor string

	// Type is the device class.
	Type DeviceType

	// MaxComputeUnits is the number of parallel compute units.
	MaxComputeUnits uint32

	// MaxWorkgroupSize is the maximum workgroup size in each dimension.
	MaxWorkgroupSize [3]uint32

	// MaxBufferSize is the maximum buffer allocation in bytes.
	MaxBufferSize uint64

	// Extensions lists backend-specific capability strings.
	Extensions []string
}

// HasExtension reports whether the device advertises the named extension.
func (d *DeviceInfo) HasExtension(name string) bool {
	for _, ext := range d.Extensions {
		if ext == name {
			return true
		}
	}
	return false
}

// BufferUsage specifies how a buffer may be used. Flags combine with
// bitwise OR.
type BufferUsage uint32

const (
	// BufferRead allows kernels to read the buffer.
	BufferRead BufferUsage = 1 << iota

	// BufferWrite allows kernels to write the buffer.
	BufferWrite

	// BufferHostRead allows reading the buffer back to the host.
	BufferHostRead

	// BufferHostWrite allows writing host data into the buffer.
	BufferHostWrite
)

// BufferReadWrite is the common full-access configuration.
const BufferReadWrite = BufferRead | BufferWrite | BufferHostRead | BufferHostWrite

// Opaque resource identifiers. IDs are device-session-scoped and become
// invalid after the corresponding Destroy call.
type (
	QueueID   uint64
	BufferID  uint64
	ImageID   uint64
	ProgramID uint64
	KernelID  uint64
)

// InvalidID is the zero value of every ID type; no live resource has it.
const InvalidID = 0

// ImageDescriptor describes a 2D image.
type ImageDescriptor struct {
	// Width and Height are the image dimensions in pixels.
	Width, Height uint32

	// Format is the pixel format.
	Format gputypes.TextureFormat

	// Usage specifies host/kernel access, as for buffers.
	Usage BufferUsage
}

// BuildOptions configures program compilation.
type BuildOptions struct {
	// Label is an optional debug label attached to compiled artifacts.
	Label string
}

// ArgKind discriminates KernelArg payloads.
type ArgKind uint32

const (
	// ArgBuffer binds a buffer object.
	ArgBuffer ArgKind = iota

	// ArgImage binds an image object.
	ArgImage

	// ArgData binds raw bytes as a uniform value.
	ArgData
)

// KernelArg is one kernel argument binding.
type KernelArg struct {
	Kind   ArgKind
	Buffer BufferID
	Image  ImageID
	Data   []byte
}

// Backend is a compute backend: a provider of devices the binding layer
// opens sessions on. Backends must be registered via Register() and are
// selected via Get() or Default().
type Backend interface {
	// Name returns the backend identifier (e.g., "wgpu").
	Name() string

	// Init initializes the backend.
	// This should be called before any other operations.
	Init() error

	// Close releases all backend resources.
	// The backend should not be used after Close is called.
	Close()

	// Devices enumerates the available compute devices.
	Devices() []DeviceInfo

	// OpenDevice opens a session on the first device matching t.
	// Returns ErrBackendNotAvailable if no device matches.
	OpenDevice(t DeviceType) (Device, error)
}

// Device is an open session on one compute device. All methods are safe
// for concurrent use.
//
// Every Enqueue* method either returns a WaitHandle for the submitted
// operation, or an error when submission itself failed; never both.
// The caller owns the returned handle.
type Device interface {
	// Info returns the device description.
	Info() DeviceInfo

	// CreateQueue creates a command queue on the device.
	CreateQueue() (QueueID, error)

	// DestroyQueue releases a command queue.
	DestroyQueue(q QueueID)

	// FlushQueue submits any batched work on q without waiting.
	FlushQueue(q QueueID) error

	// FinishQueue returns a handle that completes when all work
	// previously submitted to q has drained.
	FinishQueue(q QueueID) (WaitHandle, error)

	// CreateBuffer allocates a device buffer of size bytes.
	CreateBuffer(size uint64, usage BufferUsage) (BufferID, error)

	// DestroyBuffer releases a buffer.
	DestroyBuffer(b BufferID)

	// EnqueueWriteBuffer copies data into b at offset via q.
	EnqueueWriteBuffer(q QueueID, b BufferID, offset uint64, data []byte) (WaitHandle, error)

	// EnqueueReadBuffer copies len(dst) bytes from b at offset into dst
	// via q. dst must remain valid until the handle completes.
	EnqueueReadBuffer(q QueueID, b BufferID, offset uint64, dst []byte) (WaitHandle, error)

	// CreateImage allocates a 2D image.
	CreateImage(desc *ImageDescriptor) (ImageID, error)

	// DestroyImage releases an image.
	DestroyImage(img ImageID)

	// EnqueueWriteImage copies tightly packed pixel data into img via q.
	EnqueueWriteImage(q QueueID, img ImageID, data []byte) (WaitHandle, error)

	// EnqueueReadImage copies img into dst via q.
	EnqueueReadImage(q QueueID, img ImageID, dst []byte) (WaitHandle, error)

	// BuildProgram compiles source into an executable program.
	BuildProgram(source string, opts *BuildOptions) (ProgramID, error)

	// DestroyProgram releases a program.
	DestroyProgram(p ProgramID)

	// CreateKernel instantiates the named entry point of a program.
	CreateKernel(p ProgramID, name string) (KernelID, error)

	// DestroyKernel releases a kernel.
	DestroyKernel(k KernelID)

	// SetKernelArg binds arg at index for subsequent dispatches of k.
	SetKernelArg(k KernelID, index uint32, arg KernelArg) error

	// EnqueueKernel dispatches k on q with the given workgroup counts.
	// local is advisory; backends whose workgroup size is fixed at
	// compile time may ignore it.
	EnqueueKernel(q QueueID, k KernelID, global, local [3]uint32) (WaitHandle, error)

	// Close releases the device session and all resources created on it.
	Close()
}
