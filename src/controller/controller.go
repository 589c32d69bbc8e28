package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	runtimeinterfaces "github.com/capacityops/capacity-controller/runtime/interfaces"
	"github.com/capacityops/capacity-controller/src/interfaces"
	"github.com/capacityops/capacity-controller/src/scaler"
)

// DefaultLockTTL keeps the scaling lock alive slightly longer than the
// verification budget so a crashed invocation cannot wedge the lock
const DefaultLockTTL = time.Second * 360

// Config holds the settings for one controller run. All values come
// from the environment at startup, algorithm bodies never read the
// environment themselves
type Config struct {
	// Cluster is the logical grouping under which services are
	// addressed
	Cluster string
	// MaxRetries bounds the capacity reader's attempts
	MaxRetries int
	// PollInterval is the cadence of the health verifier
	PollInterval time.Duration
	// VerifyTimeout is the health verifier's total budget
	VerifyTimeout time.Duration
	// LockTTL is how long the advisory lock may be held
	LockTTL time.Duration
}

// Controller performs one bounded scaling transaction: read the current
// capacity, plan the new capacity, apply it and verify fleet health
type Controller struct {
	orchestrator interfaces.Orchestrator
	// locker is optional. When nil, concurrent invocations against the
	// same service are not coordinated
	locker runtimeinterfaces.Locker

	cluster  string
	lockTTL  time.Duration
	reader   *scaler.Reader
	verifier *scaler.Verifier

	logger *logrus.Entry
}

// New creates a new instance of the capacity controller
func New(
	config Config,
	orchestrator interfaces.Orchestrator,
	locker runtimeinterfaces.Locker,
	logger *logrus.Entry,
) (*Controller, error) {

	if orchestrator == nil {
		return nil, errors.New("an orchestrator must be provided")
	}

	if config.Cluster == "" {
		return nil, errors.New("a cluster must be provided")
	}

	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}

	controllerLogger := logger.WithFields(logrus.Fields{
		"subservice": "controller",
		"cluster":    config.Cluster,
	})

	reader, err := scaler.NewReader(orchestrator, config.MaxRetries, controllerLogger)
	if err != nil {
		return nil, err
	}

	verifier, err := scaler.NewVerifier(
		orchestrator,
		config.PollInterval,
		config.VerifyTimeout,
		controllerLogger,
	)
	if err != nil {
		return nil, err
	}

	return &Controller{
		orchestrator: orchestrator,
		locker:       locker,
		cluster:      config.Cluster,
		lockTTL:      config.LockTTL,
		reader:       reader,
		verifier:     verifier,
		logger:       controllerLogger,
	}, nil
}

// Run performs one scaling transaction from raw invocation inputs and
// returns nil on success or one of the scaler error kinds on failure
func (controller *Controller) Run(
	ctx context.Context,
	operation string,
	serviceName string,
	delta string,
) error {

	request, err := scaler.NewScalingRequest(operation, serviceName, delta)
	if err != nil {
		controller.logger.WithFields(logrus.Fields{
			"operation": operation,
			"service":   serviceName,
			"delta":     delta,
			"error":     err,
		}).Error("Rejected invocation")
		return err
	}

	logger := controller.logger.WithFields(logrus.Fields{
		"operation": string(request.Operation),
		"service":   request.ServiceName,
	})

	// Verify-only runs skip reading, planning and applying entirely
	if request.Operation == scaler.OperationVerify {
		return controller.verify(ctx, request, logger)
	}

	current, err := controller.reader.ReadCapacity(ctx, controller.cluster, request.ServiceName)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error": err,
		}).Error("Current capacity unavailable")
		return err
	}

	planned, err := scaler.PlanCapacity(request, current)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"current_count": current,
			"delta":         request.Delta,
			"error":         err,
		}).Error("Planned capacity rejected")
		return err
	}

	logger.WithFields(logrus.Fields{
		"current_count": current,
		"planned_count": planned,
	}).Info("Planned new capacity")

	release, err := controller.acquireLock(request.ServiceName, logger)
	if err != nil {
		return err
	}
	defer release()

	// The update is single-shot. Retrying a mutating call risks
	// overlapping scaling actions, the caller re-invokes explicitly
	err = controller.orchestrator.UpdateDesiredCount(
		ctx, controller.cluster, request.ServiceName, planned,
	)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"planned_count": planned,
			"error":         err,
		}).Error("Capacity update failed")
		return fmt.Errorf("%w: %v", scaler.ErrApplyFailed, err)
	}

	return controller.verify(ctx, request, logger)
}

// verify runs the health verifier and maps an unconverged fleet to its
// failure kind
func (controller *Controller) verify(
	ctx context.Context,
	request scaler.ScalingRequest,
	logger *logrus.Entry,
) error {

	if !controller.verifier.VerifyHealth(ctx, controller.cluster, request.ServiceName) {
		return fmt.Errorf(
			"%w: fleet unhealthy for %s/%s",
			scaler.ErrHealthCheckFailed, controller.cluster, request.ServiceName,
		)
	}

	logger.Info("Capacity operation complete")
	return nil
}

// acquireLock takes the advisory lock for the service when a locker is
// configured. The returned release function is always safe to call
func (controller *Controller) acquireLock(
	serviceName string,
	logger *logrus.Entry,
) (func(), error) {

	if controller.locker == nil {
		return func() {}, nil
	}

	key := fmt.Sprintf("capacity_lock.%s.%s", controller.cluster, serviceName)
	acquired, err := controller.locker.Acquire(key, int(controller.lockTTL.Seconds()))
	if err != nil {
		logger.WithFields(logrus.Fields{
			"lock_key": key,
			"error":    err,
		}).Error("Unable to reach lock store")
		return func() {}, err
	}
	if !acquired {
		logger.WithFields(logrus.Fields{
			"lock_key": key,
		}).Error("Another invocation is scaling this service")
		return func() {}, fmt.Errorf("%w: %s", scaler.ErrLockHeld, key)
	}

	return func() {
		if err := controller.locker.Release(key); err != nil {
			logger.WithFields(logrus.Fields{
				"lock_key": key,
				"error":    err,
			}).Warning("Unable to release scaling lock, it will expire")
		}
	}, nil
}
