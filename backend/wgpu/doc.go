// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package wgpu provides a compute backend over WebGPU via gogpu/wgpu.
//
// Kernels are WGSL compute shaders; sources are compiled to SPIR-V with
// gogpu/naga and cached by source hash. Completion tokens are HAL
// fences: the backend submits each operation with a fresh fence and the
// returned wait handle blocks in hal.Device.Wait until the fence
// signals.
//
// To use the wgpu backend, import this package:
//
//	import _ "github.com/gogpu/compute/backend/wgpu"
package wgpu
