package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrUnsupported indicates a scheme, format or operation is not supported
	ErrUnsupported = errors.New("unsupported")

	// ErrCorrupt indicates a media file is present but cannot be probed
	ErrCorrupt = errors.New("corrupt file")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrDeviceMissing indicates the backing device is not mounted
	ErrDeviceMissing = errors.New("device missing")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPermission indicates a permission error
	ErrPermission = errors.New("permission denied")

	// ErrTimeout indicates a bounded wait expired
	ErrTimeout = errors.New("timed out")

	// ErrShutdown indicates the library is closing and rejected the call
	ErrShutdown = errors.New("shutting down")
)
