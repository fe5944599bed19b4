package wgpu

import "errors"

// Package errors for the wgpu backend.
var (
	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("wgpu: backend not initialized")

	// ErrNoAdapter is returned when no usable GPU adapter is found.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter available")

	// ErrDeviceClosed is returned when operating on a closed device session.
	ErrDeviceClosed = errors.New("wgpu: device closed")

	// ErrUnknownQueue is returned when a queue ID is not recognized.
	ErrUnknownQueue = errors.New("wgpu: unknown queue")

	// ErrUnknownBuffer is returned when a buffer ID is not recognized.
	ErrUnknownBuffer = errors.New("wgpu: unknown buffer")

	// ErrUnknownImage is returned when an image ID is not recognized.
	ErrUnknownImage = errors.New("wgpu: unknown image")

	// ErrUnknownProgram is returned when a program ID is not recognized.
	ErrUnknownProgram = errors.New("wgpu: unknown program")

	// ErrUnknownKernel is returned when a kernel ID is not recognized.
	ErrUnknownKernel = errors.New("wgpu: unknown kernel")

	// ErrNoArguments is returned when a kernel is dispatched with no
	// arguments bound.
	ErrNoArguments = errors.New("wgpu: kernel has no arguments bound")

	// ErrProviderIncompatible is returned when an external device
	// provider does not expose HAL types.
	ErrProviderIncompatible = errors.New("wgpu: provider does not expose HAL device")
)
