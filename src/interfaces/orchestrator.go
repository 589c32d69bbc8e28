package interfaces

import "context"

// ServiceStatus holds the task counts the orchestration platform reports
// for a single service
type ServiceStatus struct {
	// DesiredCount is the target number of running tasks
	DesiredCount int
	// RunningCount is the number of tasks currently executing
	RunningCount int
	// PendingCount is the number of tasks being started
	PendingCount int
}

// Orchestrator defines the behaviour of the platform that runs tasks for
// a service and reports their state
type Orchestrator interface {
	// DescribeService returns the current task counts for the service
	// in the given cluster
	DescribeService(ctx context.Context, cluster string, service string) (ServiceStatus, error)
	// ListRunningTasks returns the number of running tasks for the
	// service and how many of those fail their health check
	ListRunningTasks(ctx context.Context, cluster string, service string) (running int, unhealthy int, err error)
	// UpdateDesiredCount sets the target number of running tasks for
	// the service. The call is single-shot, retrying a mutating call
	// risks overlapping scaling actions
	UpdateDesiredCount(ctx context.Context, cluster string, service string, count int) error
}
