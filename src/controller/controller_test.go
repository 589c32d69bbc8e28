package controller

import (
	"context"
	"errors"
	"io/ioutil"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/capacityops/capacity-controller/runtime/mock"
	"github.com/capacityops/capacity-controller/src/orchestrator"
	"github.com/capacityops/capacity-controller/src/scaler"
)

// noopClock advances a fake time source on every sleep so retry and
// poll loops run instantly
type noopClock struct {
	current time.Time
}

func (clock *noopClock) now() time.Time {
	return clock.current
}

func (clock *noopClock) sleep(d time.Duration) {
	clock.current = clock.current.Add(d)
}

func newTestController(t *testing.T, mockOrchestrator *orchestrator.Mock) *Controller {
	t.Helper()

	logrus.SetOutput(ioutil.Discard)

	service, err := New(
		Config{
			Cluster: "test-cluster",
		},
		mockOrchestrator,
		nil,
		logrus.WithFields(logrus.Fields{}),
	)
	if err != nil {
		t.Fatalf("unexpected failure to create controller: %s", err)
	}

	clock := &noopClock{current: time.Unix(0, 0)}
	service.reader.SetSleep(clock.sleep)
	service.verifier.SetClock(clock.now, clock.sleep)
	return service
}

func TestRunScaleUp(t *testing.T) {

	// Scenario: current=2, delta=3, the fleet converges on 5
	mockOrchestrator := orchestrator.NewMock()
	mockOrchestrator.DesiredCount = 2
	mockOrchestrator.RunningCount = 2
	mockOrchestrator.ConvergeAfter = 3

	service := newTestController(t, mockOrchestrator)

	err := service.Run(context.Background(), "up", "worker", "3")
	if err != nil {
		t.Errorf("unexpected failure to scale up: %s", err)
	}

	if len(mockOrchestrator.UpdatedCounts) != 1 || mockOrchestrator.UpdatedCounts[0] != 5 {
		t.Errorf("expected a single update to 5, received %v", mockOrchestrator.UpdatedCounts)
	}
}

func TestRunScaleDownClampsToMinimum(t *testing.T) {

	// Scenario: current=1, delta=5, the plan clamps to 1 and the
	// update is a no-op
	mockOrchestrator := orchestrator.NewMock()
	mockOrchestrator.DesiredCount = 1
	mockOrchestrator.RunningCount = 1

	service := newTestController(t, mockOrchestrator)

	err := service.Run(context.Background(), "down", "worker", "5")
	if err != nil {
		t.Errorf("unexpected failure to scale down: %s", err)
	}

	if len(mockOrchestrator.UpdatedCounts) != 1 || mockOrchestrator.UpdatedCounts[0] != 1 {
		t.Errorf("expected a single update to 1, received %v", mockOrchestrator.UpdatedCounts)
	}
}

func TestRunScaleUpOutOfRange(t *testing.T) {

	// Scenario: current=9, delta=5 plans 14 which exceeds the ceiling,
	// nothing may be mutated
	mockOrchestrator := orchestrator.NewMock()
	mockOrchestrator.DesiredCount = 9
	mockOrchestrator.RunningCount = 9

	service := newTestController(t, mockOrchestrator)

	err := service.Run(context.Background(), "up", "worker", "5")
	if !errors.Is(err, scaler.ErrCapacityOutOfRange) {
		t.Errorf("expected capacity out of range, received %v", err)
	}

	if len(mockOrchestrator.UpdatedCounts) != 0 {
		t.Errorf("expected no updates, received %v", mockOrchestrator.UpdatedCounts)
	}
}

func TestRunReaderExhaustion(t *testing.T) {

	// Scenario: every capacity query fails, planner and apply are
	// never reached
	mockOrchestrator := orchestrator.NewMock()
	mockOrchestrator.DescribeFailures = 100

	service := newTestController(t, mockOrchestrator)

	err := service.Run(context.Background(), "up", "worker", "1")
	if !errors.Is(err, scaler.ErrCapacityUnavailable) {
		t.Errorf("expected capacity unavailable, received %v", err)
	}

	if mockOrchestrator.DescribeCalls != 5 {
		t.Errorf("expected 5 query attempts, received %d", mockOrchestrator.DescribeCalls)
	}
	if len(mockOrchestrator.UpdatedCounts) != 0 {
		t.Errorf("expected no updates, received %v", mockOrchestrator.UpdatedCounts)
	}
}

func TestRunApplyFailure(t *testing.T) {

	mockOrchestrator := orchestrator.NewMock()
	mockOrchestrator.DesiredCount = 2
	mockOrchestrator.RunningCount = 2
	mockOrchestrator.UpdateFailure = true

	service := newTestController(t, mockOrchestrator)

	err := service.Run(context.Background(), "up", "worker", "1")
	if !errors.Is(err, scaler.ErrApplyFailed) {
		t.Errorf("expected apply failure, received %v", err)
	}
}

func TestRunHealthCheckTimeout(t *testing.T) {

	// Scenario: the update lands but the fleet never reaches the new
	// desired count within the budget
	mockOrchestrator := orchestrator.NewMock()
	mockOrchestrator.DesiredCount = 4
	mockOrchestrator.RunningCount = 4

	service := newTestController(t, mockOrchestrator)

	err := service.Run(context.Background(), "up", "worker", "1")
	if !errors.Is(err, scaler.ErrHealthCheckFailed) {
		t.Errorf("expected health check failure, received %v", err)
	}

	// The capacity change itself was applied
	if len(mockOrchestrator.UpdatedCounts) != 1 || mockOrchestrator.UpdatedCounts[0] != 5 {
		t.Errorf("expected a single update to 5, received %v", mockOrchestrator.UpdatedCounts)
	}
}

func TestRunVerifyOnly(t *testing.T) {

	mockOrchestrator := orchestrator.NewMock()
	mockOrchestrator.DesiredCount = 3
	mockOrchestrator.RunningCount = 3

	service := newTestController(t, mockOrchestrator)

	err := service.Run(context.Background(), "verify", "worker", "")
	if err != nil {
		t.Errorf("unexpected failure to verify: %s", err)
	}

	// Verify runs never read, plan or apply. The single query comes
	// from the verifier itself
	if len(mockOrchestrator.UpdatedCounts) != 0 {
		t.Errorf("expected no updates, received %v", mockOrchestrator.UpdatedCounts)
	}
	if mockOrchestrator.DescribeCalls != 1 {
		t.Errorf("expected 1 query, received %d", mockOrchestrator.DescribeCalls)
	}
}

func TestRunVerifyOnlyUnhealthy(t *testing.T) {

	mockOrchestrator := orchestrator.NewMock()
	mockOrchestrator.DesiredCount = 5
	mockOrchestrator.RunningCount = 4

	service := newTestController(t, mockOrchestrator)

	err := service.Run(context.Background(), "verify", "worker", "")
	if !errors.Is(err, scaler.ErrHealthCheckFailed) {
		t.Errorf("expected health check failure, received %v", err)
	}
}

func TestRunInvalidInput(t *testing.T) {

	mockOrchestrator := orchestrator.NewMock()

	service := newTestController(t, mockOrchestrator)

	err := service.Run(context.Background(), "restart", "worker", "1")
	if !errors.Is(err, scaler.ErrInvalidInput) {
		t.Errorf("expected invalid input, received %v", err)
	}
	if mockOrchestrator.DescribeCalls != 0 {
		t.Errorf("expected no external calls, received %d", mockOrchestrator.DescribeCalls)
	}
}

func TestRunLockHeld(t *testing.T) {

	logrus.SetOutput(ioutil.Discard)

	mockOrchestrator := orchestrator.NewMock()
	mockOrchestrator.DesiredCount = 2
	mockOrchestrator.RunningCount = 2

	// Another invocation already holds the lock for this service
	otherLock, err := mock.NewRedisLock("other-invocation")
	if err != nil {
		t.Fatalf("unexpected failure to create mock Redis: %s", err)
	}
	_, err = otherLock.Acquire("capacity_lock.test-cluster.worker", 360)
	if err != nil {
		t.Fatalf("unexpected failure to acquire lock: %s", err)
	}

	service, err := New(
		Config{
			Cluster: "test-cluster",
		},
		mockOrchestrator,
		otherLock,
		logrus.WithFields(logrus.Fields{}),
	)
	if err != nil {
		t.Fatalf("unexpected failure to create controller: %s", err)
	}
	clock := &noopClock{current: time.Unix(0, 0)}
	service.reader.SetSleep(clock.sleep)
	service.verifier.SetClock(clock.now, clock.sleep)

	err = service.Run(context.Background(), "up", "worker", "1")
	if !errors.Is(err, scaler.ErrLockHeld) {
		t.Errorf("expected lock held, received %v", err)
	}
	if len(mockOrchestrator.UpdatedCounts) != 0 {
		t.Errorf("expected no updates while locked, received %v", mockOrchestrator.UpdatedCounts)
	}
}

func TestRunWithLock(t *testing.T) {

	logrus.SetOutput(ioutil.Discard)

	mockOrchestrator := orchestrator.NewMock()
	mockOrchestrator.DesiredCount = 2
	mockOrchestrator.RunningCount = 2
	mockOrchestrator.ConvergeAfter = 2

	mockLock, err := mock.NewRedisLock("this-invocation")
	if err != nil {
		t.Fatalf("unexpected failure to create mock Redis: %s", err)
	}

	service, err := New(
		Config{
			Cluster: "test-cluster",
		},
		mockOrchestrator,
		mockLock,
		logrus.WithFields(logrus.Fields{}),
	)
	if err != nil {
		t.Fatalf("unexpected failure to create controller: %s", err)
	}
	clock := &noopClock{current: time.Unix(0, 0)}
	service.reader.SetSleep(clock.sleep)
	service.verifier.SetClock(clock.now, clock.sleep)

	err = service.Run(context.Background(), "up", "worker", "1")
	if err != nil {
		t.Errorf("unexpected failure to scale with lock: %s", err)
	}

	// The lock must be released again, a follow-up acquire succeeds
	acquired, err := mockLock.Acquire("capacity_lock.test-cluster.worker", 360)
	if err != nil {
		t.Errorf("unexpected failure to re-acquire lock: %s", err)
	}
	if !acquired {
		t.Errorf("expected the lock to be free after the run")
	}
}
