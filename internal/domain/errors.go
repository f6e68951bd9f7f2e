package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound       = errors.New("domain: not found")
	ErrConflict       = errors.New("domain: conflict")
	ErrClosed         = errors.New("domain: store closed")
	ErrNotInitialized = errors.New("domain: store not initialized")
	ErrInvalidScope   = errors.New("domain: scope components must be non-empty")
)
