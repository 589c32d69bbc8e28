package orchestrator

import (
	"context"
	"errors"

	"github.com/capacityops/capacity-controller/src/interfaces"
)

// ErrMockQuery is returned by the mock for simulated query failures
var ErrMockQuery = errors.New("simulated query failure")

// Mock implements a scripted orchestrator for tests
type Mock struct {
	DesiredCount   int
	RunningCount   int
	UnhealthyCount int

	// DescribeFailures fails the first N DescribeService calls
	DescribeFailures int
	// ListFailures fails the first N ListRunningTasks calls
	ListFailures int
	// UpdateFailure fails every UpdateDesiredCount call
	UpdateFailure bool
	// ConvergeAfter snaps the running count to the desired count once
	// DescribeService has been called that many times. Zero disables
	// convergence
	ConvergeAfter int

	DescribeCalls int
	ListCalls     int
	// UpdatedCounts records every desired count applied
	UpdatedCounts []int
}

// NewMock creates a new instance of the mock orchestrator
func NewMock() *Mock {
	return &Mock{}
}

// DescribeService returns the scripted task counts for the service
func (orc *Mock) DescribeService(
	ctx context.Context,
	cluster string,
	service string,
) (interfaces.ServiceStatus, error) {
	orc.DescribeCalls++

	if orc.DescribeCalls <= orc.DescribeFailures {
		return interfaces.ServiceStatus{}, ErrMockQuery
	}

	if orc.ConvergeAfter > 0 && orc.DescribeCalls >= orc.ConvergeAfter {
		orc.RunningCount = orc.DesiredCount
	}

	return interfaces.ServiceStatus{
		DesiredCount: orc.DesiredCount,
		RunningCount: orc.RunningCount,
	}, nil
}

// ListRunningTasks returns the scripted running and unhealthy counts
func (orc *Mock) ListRunningTasks(
	ctx context.Context,
	cluster string,
	service string,
) (int, int, error) {
	orc.ListCalls++

	if orc.ListCalls <= orc.ListFailures {
		return 0, 0, ErrMockQuery
	}

	return orc.RunningCount, orc.UnhealthyCount, nil
}

// UpdateDesiredCount records the applied desired count
func (orc *Mock) UpdateDesiredCount(
	ctx context.Context,
	cluster string,
	service string,
	count int,
) error {
	if orc.UpdateFailure {
		return errors.New("simulated update failure")
	}

	orc.DesiredCount = count
	orc.UpdatedCounts = append(orc.UpdatedCounts, count)
	return nil
}
