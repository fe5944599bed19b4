package wgpu

import (
	"github.com/gogpu/compute/backend"
)

// init registers the wgpu backend on package import.
// This enables automatic backend selection via backend.Default().
//
// To use the wgpu backend, import this package:
//
//	import _ "github.com/gogpu/compute/backend/wgpu"
func init() {
	backend.Register(backend.BackendWGPU, func() backend.Backend {
		return NewBackend()
	})
}
