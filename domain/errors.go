package domain

import "errors"

// Usage errors. These are returned before any state is mutated.
var (
	// ErrAlreadyActive is returned when a second incident is started while one is active
	ErrAlreadyActive = errors.New("emergency response already active")
	// ErrInvalidState is returned when an operation is not allowed from the current status
	ErrInvalidState = errors.New("emergency response not in a valid state for this operation")
	// ErrInvalidConfig is returned when an audio configuration fails validation
	ErrInvalidConfig = errors.New("invalid audio configuration")
)

// ErrContextBuild is returned when a dispatcher context cannot be assembled
// for a category the taxonomy does not know.
var ErrContextBuild = errors.New("failed to build dispatcher context")

// Collaborator failures. Adapters wrap these so callers can use errors.Is.
var (
	ErrInitialization = errors.New("audio initialization failed")
	ErrDevice         = errors.New("audio device error")
	ErrTransport      = errors.New("dispatcher transport error")
	ErrStorage        = errors.New("call record storage error")
	ErrNotFound       = errors.New("record not found")
)
