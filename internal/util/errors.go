package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrToolMissing indicates an external tool (rsync, ssh) is not on PATH
	ErrToolMissing = errors.New("required tool not found")
)
