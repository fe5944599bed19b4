package compute

import "errors"

// Package errors.
var (
	// ErrNoBackend is returned when no compute backend is registered or
	// none of the registered backends can be initialized.
	ErrNoBackend = errors.New("compute: no backend available")

	// ErrNoDevice is returned when no device of the requested type exists.
	ErrNoDevice = errors.New("compute: no device of requested type")

	// ErrContextClosed is returned when operating on a closed context.
	ErrContextClosed = errors.New("compute: context closed")

	// ErrReleased is returned when operating on a released object.
	ErrReleased = errors.New("compute: object released")

	// ErrInvalidSize is returned when a buffer size or data length is invalid.
	ErrInvalidSize = errors.New("compute: invalid size")

	// ErrInvalidDimensions is returned when image dimensions are invalid.
	ErrInvalidDimensions = errors.New("compute: invalid dimensions")

	// ErrOutOfRange is returned when an offset/length pair exceeds an
	// object's extent.
	ErrOutOfRange = errors.New("compute: offset out of range")

	// ErrNilQueue is returned when an enqueue operation is given a nil queue.
	ErrNilQueue = errors.New("compute: nil queue")
)
