package scaler

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/capacityops/capacity-controller/src/interfaces"
)

const (
	// DefaultPollInterval is the fixed cadence between health polls.
	// It bounds the load on the orchestration API while keeping
	// detection latency small relative to the verification budget
	DefaultPollInterval = time.Second * 5
	// DefaultVerifyTimeout is the total budget for the fleet to
	// converge on the desired count
	DefaultVerifyTimeout = time.Second * 300
)

// Verifier polls the live task state of a service until the running
// count matches the desired count and every running task is healthy, or
// the timeout elapses
type Verifier struct {
	orchestrator interfaces.Orchestrator
	pollInterval time.Duration
	timeout      time.Duration

	// now and sleep are swapped out in tests so the poll loop runs
	// without real delays
	now   func() time.Time
	sleep func(time.Duration)

	logger *logrus.Entry
}

// NewVerifier creates a new instance of the health verifier
func NewVerifier(
	orchestrator interfaces.Orchestrator,
	pollInterval time.Duration,
	timeout time.Duration,
	logger *logrus.Entry,
) (*Verifier, error) {

	if orchestrator == nil {
		return nil, errors.New("an orchestrator must be provided")
	}

	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}

	return &Verifier{
		orchestrator: orchestrator,
		pollInterval: pollInterval,
		timeout:      timeout,
		now:          time.Now,
		sleep:        time.Sleep,
		logger: logger.WithFields(logrus.Fields{
			"subservice": "verifier",
		}),
	}, nil
}

// SetClock replaces the time source and poll sleep so tests can
// simulate time without real delays
func (verifier *Verifier) SetClock(now func() time.Time, sleep func(time.Duration)) {
	verifier.now = now
	verifier.sleep = sleep
}

// VerifyHealth reports whether the service fleet converged within the
// budget. The timeout is cooperative, checked once per poll tick.
//
// A failed query during polling is an infrastructure hiccup, not an
// unhealthy fleet, so it skips the tick instead of terminating the loop
func (verifier *Verifier) VerifyHealth(
	ctx context.Context,
	cluster string,
	service string,
) bool {

	logger := verifier.logger.WithFields(logrus.Fields{
		"cluster": cluster,
		"service": service,
	})

	start := verifier.now()
	for {
		if ctx.Err() != nil {
			logger.WithFields(logrus.Fields{
				"error": ctx.Err(),
			}).Warning("Verification cancelled")
			return false
		}

		elapsed := verifier.now().Sub(start)
		if elapsed >= verifier.timeout {
			logger.WithFields(logrus.Fields{
				"elapsed": elapsed,
				"timeout": verifier.timeout,
			}).Error("Fleet did not converge within budget")
			return false
		}

		if verifier.poll(ctx, cluster, service, logger) {
			return true
		}

		verifier.sleep(verifier.pollInterval)
	}
}

// poll performs a single health observation and reports whether the
// fleet is healthy
func (verifier *Verifier) poll(
	ctx context.Context,
	cluster string,
	service string,
	logger *logrus.Entry,
) bool {

	status, err := verifier.orchestrator.DescribeService(ctx, cluster, service)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error": err,
		}).Warning("Transient query failure, skipping tick")
		return false
	}

	// The count comparison is cheap, the task-health query is not, so
	// counts are checked first. Matching counts do not imply health,
	// the unhealthy check must still pass in the same tick
	if status.RunningCount != status.DesiredCount {
		logger.WithFields(logrus.Fields{
			"running_count": status.RunningCount,
			"desired_count": status.DesiredCount,
		}).Debug("Counts have not converged")
		return false
	}

	running, unhealthy, err := verifier.orchestrator.ListRunningTasks(ctx, cluster, service)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error": err,
		}).Warning("Transient task query failure, skipping tick")
		return false
	}

	if unhealthy != 0 {
		logger.WithFields(logrus.Fields{
			"running_count":   running,
			"unhealthy_count": unhealthy,
		}).Debug("Fleet has unhealthy tasks")
		return false
	}

	logger.WithFields(logrus.Fields{
		"running_count": running,
		"desired_count": status.DesiredCount,
	}).Info("Fleet is healthy")
	return true
}
