package controller

import (
	"errors"

	"github.com/capacityops/capacity-controller/src/scaler"
)

// Exit statuses reported to the invoking process. The mapping is part
// of the contract, external automation branches on these values
const (
	ExitOK                  = 0
	ExitFailure             = 1
	ExitInvalidInput        = 2
	ExitCapacityUnavailable = 3
	ExitCapacityOutOfRange  = 4
	ExitApplyFailed         = 5
	ExitHealthCheckFailed   = 6
	ExitLockHeld            = 7
)

// ExitCode maps a controller run result to its process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, scaler.ErrInvalidInput):
		return ExitInvalidInput
	case errors.Is(err, scaler.ErrCapacityUnavailable):
		return ExitCapacityUnavailable
	case errors.Is(err, scaler.ErrCapacityOutOfRange):
		return ExitCapacityOutOfRange
	case errors.Is(err, scaler.ErrApplyFailed):
		return ExitApplyFailed
	case errors.Is(err, scaler.ErrHealthCheckFailed):
		return ExitHealthCheckFailed
	case errors.Is(err, scaler.ErrLockHeld):
		return ExitLockHeld
	}
	return ExitFailure
}
