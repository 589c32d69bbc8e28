package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/sirupsen/logrus"

	"github.com/capacityops/capacity-controller/src/interfaces"
)

// awsCallTimeout bounds every individual AWS API call
const awsCallTimeout = time.Second * 10

// AWSECS implements the orchestrator operations using AWS Elastic
// Container Service
type AWSECS struct {
	client *ecs.Client

	logger *logrus.Entry
}

// NewAWSECS creates a new instance of the AWS ECS orchestrator
func NewAWSECS(logger *logrus.Entry) (*AWSECS, error) {

	// Loads the config from the following environment variables
	// AWS_ACCESS_KEY_ID
	// AWS_SECRET_ACCESS_KEY
	// AWS_REGION
	awsConfig, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		return nil, err
	}

	return &AWSECS{
		client: ecs.NewFromConfig(awsConfig),
		logger: logger.WithFields(logrus.Fields{
			"subservice": "orchestrator",
			"type":       "aws-ecs",
		}),
	}, nil
}

// DescribeService returns the current task counts for the service in the
// given cluster
func (orc *AWSECS) DescribeService(
	ctx context.Context,
	cluster string,
	service string,
) (interfaces.ServiceStatus, error) {

	ecsService, err := orc.getService(ctx, cluster, service)
	if err != nil {
		return interfaces.ServiceStatus{}, err
	}

	return interfaces.ServiceStatus{
		DesiredCount: int(ecsService.DesiredCount),
		RunningCount: int(ecsService.RunningCount),
		PendingCount: int(ecsService.PendingCount),
	}, nil
}

// ListRunningTasks returns the number of running tasks for the service
// and how many of those fail their health check
func (orc *AWSECS) ListRunningTasks(
	ctx context.Context,
	cluster string,
	service string,
) (int, int, error) {

	callCtx, cancel := context.WithTimeout(ctx, awsCallTimeout)
	defer cancel()

	taskList, err := orc.client.ListTasks(
		callCtx,
		&ecs.ListTasksInput{
			Cluster:       aws.String(cluster),
			ServiceName:   aws.String(service),
			DesiredStatus: types.DesiredStatusRunning,
		})
	if err != nil {
		return 0, 0, err
	}

	// A service scaled while no tasks have started yet has nothing to
	// describe
	if len(taskList.TaskArns) == 0 {
		return 0, 0, nil
	}

	callCtx, cancel = context.WithTimeout(ctx, awsCallTimeout)
	defer cancel()

	taskDetails, err := orc.client.DescribeTasks(
		callCtx,
		&ecs.DescribeTasksInput{
			Cluster: aws.String(cluster),
			Tasks:   taskList.TaskArns,
		})
	if err != nil {
		return 0, 0, err
	}

	var running int
	var unhealthy int
	for _, task := range taskDetails.Tasks {
		if aws.ToString(task.LastStatus) != string(types.DesiredStatusRunning) {
			continue
		}
		running++
		if task.HealthStatus == types.HealthStatusUnhealthy {
			unhealthy++
		}
	}

	return running, unhealthy, nil
}

// UpdateDesiredCount sets the target number of running tasks for the
// service
func (orc *AWSECS) UpdateDesiredCount(
	ctx context.Context,
	cluster string,
	service string,
	count int,
) error {

	callCtx, cancel := context.WithTimeout(ctx, awsCallTimeout)
	defer cancel()

	_, err := orc.client.UpdateService(callCtx, &ecs.UpdateServiceInput{
		Cluster:      aws.String(cluster),
		Service:      aws.String(service),
		DesiredCount: aws.Int32(int32(count)),
	})
	if err != nil {
		return err
	}

	orc.logger.WithFields(logrus.Fields{
		"cluster":       cluster,
		"name":          service,
		"desired_count": count,
	}).Info("Updated desired count")

	return nil
}

// getService retrieves the service in the given cluster and returns it if
// it exists
func (orc *AWSECS) getService(
	ctx context.Context,
	cluster string,
	serviceName string,
) (types.Service, error) {

	callCtx, cancel := context.WithTimeout(ctx, awsCallTimeout)
	defer cancel()

	servicesDetails, err := orc.client.DescribeServices(
		callCtx,
		&ecs.DescribeServicesInput{
			Services: []string{serviceName},
			Cluster:  aws.String(cluster),
		})
	if err != nil {
		return types.Service{}, err
	}

	for _, service := range servicesDetails.Services {
		// We only query a single service, we should only receive a
		// single item if it exists
		return service, nil
	}

	return types.Service{}, errors.New("unable to find service in cluster")
}
