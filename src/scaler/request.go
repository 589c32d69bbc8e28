package scaler

import (
	"fmt"
	"regexp"
	"strconv"
)

// Operation is the kind of capacity change being requested
type Operation string

const (
	// OperationUp increases the desired count by the request delta
	OperationUp Operation = "up"
	// OperationDown decreases the desired count by the request delta
	OperationDown Operation = "down"
	// OperationVerify only checks fleet health, no capacity change
	OperationVerify Operation = "verify"
)

const (
	// MinDelta is the smallest accepted capacity change
	MinDelta = 1
	// MaxDelta is the largest accepted capacity change
	MaxDelta = 10
	// DefaultDelta applies when no delta was given
	DefaultDelta = "1"
)

// serviceNamePattern matches the service names the orchestration
// platform accepts
var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ScalingRequest is a validated request for one capacity-control run
type ScalingRequest struct {
	Operation   Operation
	ServiceName string
	Delta       int
}

// NewScalingRequest validates the raw invocation inputs and returns a
// ScalingRequest. An empty delta defaults to 1
func NewScalingRequest(operation string, serviceName string, delta string) (ScalingRequest, error) {

	var request ScalingRequest

	switch Operation(operation) {
	case OperationUp, OperationDown, OperationVerify:
		request.Operation = Operation(operation)
	default:
		return request, fmt.Errorf("%w: bad operation %q", ErrInvalidInput, operation)
	}

	if !serviceNamePattern.MatchString(serviceName) {
		return request, fmt.Errorf("%w: bad service name %q", ErrInvalidInput, serviceName)
	}
	request.ServiceName = serviceName

	if delta == "" {
		delta = DefaultDelta
	}
	parsed, err := strconv.Atoi(delta)
	if err != nil || parsed < MinDelta || parsed > MaxDelta {
		return request, fmt.Errorf("%w: bad delta %q", ErrInvalidInput, delta)
	}
	request.Delta = parsed

	return request, nil
}
