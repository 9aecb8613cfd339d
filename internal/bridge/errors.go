package bridge

import "errors"

// Sentinel errors for bridge operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrTimeout is returned when an awaited bridge event does not arrive
	// within its bound.
	ErrTimeout = errors.New("bridge: timed out waiting for event")
)
