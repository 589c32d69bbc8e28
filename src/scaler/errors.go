package scaler

import "errors"

// The controller maps each of these error kinds to a distinct process
// exit status so external automation can branch on the failure mode.
// Wrap them with fmt.Errorf("%w: ...") to add context
var (
	// ErrInvalidInput indicates a malformed operation, service name or
	// delta. Raised before any external call
	ErrInvalidInput = errors.New("invalid input")
	// ErrCapacityUnavailable indicates the reader exhausted its retries
	// without obtaining a desired count
	ErrCapacityUnavailable = errors.New("capacity unavailable")
	// ErrCapacityOutOfRange indicates the planned capacity fell outside
	// the allowed range. Raised before any mutation
	ErrCapacityOutOfRange = errors.New("capacity out of range")
	// ErrApplyFailed indicates the desired count update failed. The
	// external state may or may not have changed, a verify run reports
	// the actual state
	ErrApplyFailed = errors.New("capacity update failed")
	// ErrHealthCheckFailed indicates the fleet did not converge within
	// the verification budget. The new desired count is in place
	ErrHealthCheckFailed = errors.New("health check failed")
	// ErrLockHeld indicates another invocation holds the scaling lock
	// for the service. Nothing was mutated
	ErrLockHeld = errors.New("scaling lock held")
)
