package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sirupsen/logrus"

	"github.com/capacityops/capacity-controller/src/interfaces"
	runtimeinterfaces "github.com/capacityops/capacity-controller/runtime/interfaces"
)

// Docker implements the orchestrator operations using the local Docker
// daemon. Intended for development runs where no ECS cluster is
// available.
//
// Docker has no desired-count concept of its own, so the desired count
// for each service is tracked in the cache under a per-cluster key.
type Docker struct {
	image string

	client *dockerclient.Client
	cache  runtimeinterfaces.Cacher

	logger *logrus.Entry
}

// NewDocker creates a new instance of the Docker orchestrator running
// containers of the given image for every task
func NewDocker(
	image string,
	cache runtimeinterfaces.Cacher,
	logger *logrus.Entry,
) (*Docker, error) {

	client, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv)
	if err != nil {
		return nil, err
	}

	return &Docker{
		image:  image,
		client: client,
		cache:  cache,
		logger: logger.WithFields(logrus.Fields{
			"subservice": "orchestrator",
			"type":       "docker",
		}),
	}, nil
}

// DescribeService returns the current task counts for the service in the
// given cluster
func (orc *Docker) DescribeService(
	ctx context.Context,
	cluster string,
	service string,
) (interfaces.ServiceStatus, error) {

	serviceContainers, err := orc.getRunningServiceContainers(ctx, service)
	if err != nil {
		return interfaces.ServiceStatus{}, err
	}

	desired, present, err := orc.cache.GetInt(desiredCountKey(cluster, service))
	if err != nil {
		return interfaces.ServiceStatus{}, err
	}
	// Before the first update the running count is the best desired
	// count we have
	if !present {
		desired = len(serviceContainers)
	}

	return interfaces.ServiceStatus{
		DesiredCount: desired,
		RunningCount: len(serviceContainers),
	}, nil
}

// ListRunningTasks returns the number of running containers for the
// service and how many of those report an unhealthy check state
func (orc *Docker) ListRunningTasks(
	ctx context.Context,
	cluster string,
	service string,
) (int, int, error) {

	serviceContainers, err := orc.getRunningServiceContainers(ctx, service)
	if err != nil {
		return 0, 0, err
	}

	var unhealthy int
	for _, serviceContainer := range serviceContainers {
		// For containers with a HEALTHCHECK the check state is appended
		// to the status line, e.g. "Up 2 minutes (unhealthy)"
		if strings.Contains(serviceContainer.Status, "(unhealthy)") {
			unhealthy++
		}
	}

	return len(serviceContainers), unhealthy, nil
}

// UpdateDesiredCount starts or removes containers until the running
// count converges on the requested count
func (orc *Docker) UpdateDesiredCount(
	ctx context.Context,
	cluster string,
	service string,
	count int,
) error {

	err := orc.cache.Set(desiredCountKey(cluster, service), count)
	if err != nil {
		return err
	}

	serviceContainers, err := orc.getRunningServiceContainers(ctx, service)
	if err != nil {
		return err
	}

	for extra := len(serviceContainers) - count; extra > 0; extra-- {
		// Remove kills and removes the container
		// We force the removal as we don't really care about any
		// issues when killing it, we just want it gone
		err = orc.client.ContainerRemove(
			ctx,
			serviceContainers[extra-1].ID,
			types.ContainerRemoveOptions{
				Force: true,
			},
		)
		if err != nil {
			return err
		}
	}

	for missing := count - len(serviceContainers); missing > 0; missing-- {
		// Containers are named 'service:uuid' so that the running set
		// can be found again by the service prefix
		containerName := fmt.Sprintf("%s:%s", service, uuid.NewString())
		created, err := orc.client.ContainerCreate(
			ctx,
			&container.Config{
				Image: orc.image,
			},
			nil,
			nil,
			&ocispec.Platform{
				OS: "linux",
			},
			containerName,
		)
		if err != nil {
			return err
		}

		err = orc.client.ContainerStart(ctx, created.ID, types.ContainerStartOptions{})
		if err != nil {
			return err
		}
	}

	orc.logger.WithFields(logrus.Fields{
		"cluster":       cluster,
		"name":          service,
		"desired_count": count,
	}).Info("Updated desired count")

	return nil
}

func (orc *Docker) getRunningServiceContainers(
	ctx context.Context,
	service string,
) ([]types.Container, error) {
	// For docker we need to find the amount of running containers
	// with the names we specified during deployment
	// We do that by iterating over the list of containers and simply
	// adding them to the list
	containers, err := orc.client.ContainerList(
		ctx,
		types.ContainerListOptions{},
	)
	if err != nil {
		return nil, err
	}

	var serviceContainers []types.Container
	for _, candidate := range containers {
		for _, name := range candidate.Names {
			// Container names start with a forward slash for some reason
			// Strip the leading slash
			name = name[1:]
			// Containers are deployed as 'service:uuid' so we look for
			// the service prefix
			if strings.HasPrefix(name, service+":") {
				serviceContainers = append(serviceContainers, candidate)
				// Once this name has been counted, move to the next
				// container
				break
			}
		}
	}
	return serviceContainers, nil
}

// desiredCountKey is the cache key tracking the desired count for a
// service in a cluster
func desiredCountKey(cluster string, service string) string {
	return fmt.Sprintf("desired_count.%s.%s", cluster, service)
}
