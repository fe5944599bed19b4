package compute

// Device is the discovery metadata of an opened compute device.
type Device struct {
	info DeviceInfo
}

// Name returns the device name.
func (d *Device) Name() string { return d.info.Name }

// Vendor returns the device vendor, when the backend reports one.
func (d *Device) Vendor() string { return d.info.Vendor }

// Type returns the device class.
func (d *Device) Type() DeviceType { return d.info.Type }

// MaxWorkgroupSize returns the maximum workgroup size per dimension.
func (d *Device) MaxWorkgroupSize() [3]uint32 { return d.info.MaxWorkgroupSize }

// MaxBufferSize returns the maximum buffer allocation in bytes.
// Zero means the backend did not report a limit.
func (d *Device) MaxBufferSize() uint64 { return d.info.MaxBufferSize }

// HasExtension reports whether the device advertises the named
// backend-specific extension.
func (d *Device) HasExtension(name string) bool { return d.info.HasExtension(name) }

// Info returns the raw device description.
func (d *Device) Info() DeviceInfo { return d.info }
