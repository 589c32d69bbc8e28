package scaler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/capacityops/capacity-controller/src/interfaces"
)

// DefaultMaxRetries is the number of desired-count queries attempted
// before giving up
const DefaultMaxRetries = 5

// Reader fetches the current desired count of a service, retrying
// transient query failures with exponential backoff
type Reader struct {
	orchestrator interfaces.Orchestrator
	maxRetries   int

	// sleep is swapped out in tests so backoff runs without real delays
	sleep func(time.Duration)

	logger *logrus.Entry
}

// NewReader creates a new instance of the capacity reader
func NewReader(
	orchestrator interfaces.Orchestrator,
	maxRetries int,
	logger *logrus.Entry,
) (*Reader, error) {

	if orchestrator == nil {
		return nil, errors.New("an orchestrator must be provided")
	}

	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &Reader{
		orchestrator: orchestrator,
		maxRetries:   maxRetries,
		sleep:        time.Sleep,
		logger: logger.WithFields(logrus.Fields{
			"subservice": "reader",
		}),
	}, nil
}

// SetSleep replaces the backoff sleep so tests can simulate time
// without real delays
func (reader *Reader) SetSleep(sleep func(time.Duration)) {
	reader.sleep = sleep
}

// ReadCapacity returns the current desired count for the service.
//
// Transient API throttling or 5xx responses must not abort the operation
// prematurely, so each failed query backs off for 2^attempt seconds
// before the next try. With the default five attempts the total wait is
// bounded at 2+4+8+16+32 seconds
func (reader *Reader) ReadCapacity(
	ctx context.Context,
	cluster string,
	service string,
) (int, error) {

	for attempt := 1; attempt <= reader.maxRetries; attempt++ {
		status, err := reader.orchestrator.DescribeService(ctx, cluster, service)
		if err == nil && status.DesiredCount >= 0 {
			reader.logger.WithFields(logrus.Fields{
				"cluster":       cluster,
				"service":       service,
				"desired_count": status.DesiredCount,
				"attempt":       attempt,
			}).Debug("Read current capacity")
			return status.DesiredCount, nil
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		reader.logger.WithFields(logrus.Fields{
			"cluster": cluster,
			"service": service,
			"attempt": attempt,
			"backoff": backoff,
			"error":   err,
		}).Warning("Unable to read capacity, backing off")
		reader.sleep(backoff)
	}

	return 0, fmt.Errorf(
		"%w: no desired count after %d attempts for %s/%s",
		ErrCapacityUnavailable, reader.maxRetries, cluster, service,
	)
}
