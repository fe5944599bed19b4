package compute

import "github.com/gogpu/compute/backend"

// DeviceType selects a class of compute device.
type DeviceType = backend.DeviceType

// Device type selectors.
const (
	DeviceTypeAny         = backend.DeviceTypeAny
	DeviceTypeGPU         = backend.DeviceTypeGPU
	DeviceTypeCPU         = backend.DeviceTypeCPU
	DeviceTypeAccelerator = backend.DeviceTypeAccelerator
)

// BufferUsage specifies how a buffer may be used.
type BufferUsage = backend.BufferUsage

// Buffer usage flags.
const (
	BufferRead      = backend.BufferRead
	BufferWrite     = backend.BufferWrite
	BufferHostRead  = backend.BufferHostRead
	BufferHostWrite = backend.BufferHostWrite

	// BufferReadWrite is the common full-access configuration.
	BufferReadWrite = backend.BufferReadWrite
)

// DeviceInfo describes one compute device.
type DeviceInfo = backend.DeviceInfo

// Devices enumerates the compute devices of the default backend.
func Devices() ([]DeviceInfo, error) {
	b, err := backend.InitDefault()
	if err != nil {
		return nil, err
	}
	return b.Devices(), nil
}
