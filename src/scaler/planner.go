package scaler

import "fmt"

const (
	// MinCapacity is the floor for a scale-down, a service is never
	// scaled to zero by this path
	MinCapacity = 1
	// MaxCapacity is the ceiling for a scale-up
	MaxCapacity = 10
)

// PlanCapacity computes the new desired count for the request given the
// current desired count.
//
// Scaling up past MaxCapacity fails with ErrCapacityOutOfRange before
// any mutation happens. Scaling down clamps at MinCapacity rather than
// failing, so a down from an already-minimal service is a no-op update.
// Verify requests never reach the planner.
func PlanCapacity(request ScalingRequest, currentCapacity int) (int, error) {

	switch request.Operation {
	case OperationUp:
		planned := currentCapacity + request.Delta
		if planned > MaxCapacity {
			return 0, fmt.Errorf(
				"%w: %d exceeds maximum capacity %d",
				ErrCapacityOutOfRange, planned, MaxCapacity,
			)
		}
		return planned, nil

	case OperationDown:
		planned := currentCapacity - request.Delta
		if planned < MinCapacity {
			planned = MinCapacity
		}
		return planned, nil
	}

	return 0, fmt.Errorf("%w: operation %q cannot be planned", ErrInvalidInput, request.Operation)
}
