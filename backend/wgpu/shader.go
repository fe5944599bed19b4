// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package wgpu

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/internal/shadercache"
)

// compileWGSL compiles WGSL source to SPIR-V words, consulting the
// cache first. The returned slice is shared and must not be mutated.
func (d *device) compileWGSL(source string) ([]uint32, error) {
	key := shadercache.Hash(source)
	if code, ok := d.shaders.Get(key); ok {
		slogger().Debug("wgpu: shader cache hit", "hash", key)
		return code, nil
	}

	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("wgpu: compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	d.shaders.Put(key, code)
	slogger().Debug("wgpu: shader compiled", "hash", key, "words", len(code))
	return code, nil
}

// createShaderModule wraps compiled SPIR-V in a HAL shader module.
func (d *device) createShaderModule(label string, code []uint32) (hal.ShaderModule, error) {
	return d.hal.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: code},
	})
}
