// Package backend defines the compute backend interface and the
// registry through which backends are discovered.
//
// A backend exposes devices; an open Device session carries the actual
// resource and dispatch operations. Asynchronous operations return an
// opaque [WaitHandle], the one-shot backend-native completion token
// the compute package's event subsystem blocks on.
//
// Backends register themselves from init() functions:
//
//	import _ "github.com/gogpu/compute/backend/wgpu"
//
// and are then reachable through Get("wgpu") or Default().
package backend
