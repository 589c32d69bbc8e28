package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/capacityops/capacity-controller/runtime"
	"github.com/capacityops/capacity-controller/runtime/cache"
	runtimeinterfaces "github.com/capacityops/capacity-controller/runtime/interfaces"
	"github.com/capacityops/capacity-controller/runtime/lock"
	"github.com/capacityops/capacity-controller/src/controller"
	"github.com/capacityops/capacity-controller/src/interfaces"
	"github.com/capacityops/capacity-controller/src/metrics"
	"github.com/capacityops/capacity-controller/src/orchestrator"
)

const (
	// OrchestratorTypeECS runs against AWS Elastic Container Service
	OrchestratorTypeECS = "aws-ecs"
	// OrchestratorTypeDocker runs against the local Docker daemon
	OrchestratorTypeDocker = "docker"
)

// EnvironmentConfig defines the environment variables for the service
type EnvironmentConfig struct {
	runtime.BaseConfig

	ClusterName      string `envconfig:"CLUSTER_NAME" required:"true"`
	OrchestratorType string `envconfig:"ORCHESTRATOR_TYPE" default:"aws-ecs"`

	// ContainerImage and RedisEndpoint are only needed by the docker
	// orchestrator
	ContainerImage string `envconfig:"CONTAINER_IMAGE"`
	RedisEndpoint  string `envconfig:"REDIS_ENDPOINT"`
	RedisDatabase  int    `envconfig:"REDIS_DATABASE" default:"0"`

	// LockRedisEndpoint enables the advisory scaling lock when set
	LockRedisEndpoint string `envconfig:"LOCK_REDIS_ENDPOINT"`
	LockRedisDatabase int    `envconfig:"LOCK_REDIS_DATABASE" default:"0"`
	LockTTLSeconds    int    `envconfig:"LOCK_TTL_SECONDS" default:"360"`

	ReadMaxRetries       int `envconfig:"READ_MAX_RETRIES" default:"5"`
	PollIntervalSeconds  int `envconfig:"POLL_INTERVAL_SECONDS" default:"5"`
	VerifyTimeoutSeconds int `envconfig:"VERIFY_TIMEOUT_SECONDS" default:"300"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"false"`
}

func setUpOrchestrator(
	environmentConfig EnvironmentConfig,
	logger *log.Entry,
) interfaces.Orchestrator {

	switch strings.ToLower(environmentConfig.OrchestratorType) {
	case OrchestratorTypeECS:
		ecsOrchestrator, err := orchestrator.NewAWSECS(logger)
		if err != nil {
			logger.Fatal(err)
		}
		return ecsOrchestrator

	case OrchestratorTypeDocker:
		if environmentConfig.ContainerImage == "" || environmentConfig.RedisEndpoint == "" {
			logger.Fatal("The docker orchestrator requires CONTAINER_IMAGE and REDIS_ENDPOINT")
		}

		var cacheProvider runtimeinterfaces.Cacher
		cacheProvider, err := cache.NewRedis(
			environmentConfig.RedisEndpoint,
			environmentConfig.RedisDatabase,
		)
		if err != nil {
			logger.Fatal(err)
		}

		dockerOrchestrator, err := orchestrator.NewDocker(
			environmentConfig.ContainerImage,
			cacheProvider,
			logger,
		)
		if err != nil {
			logger.Fatal(err)
		}
		return dockerOrchestrator
	}

	logger.Fatal("Invalid orchestrator type specified: ", environmentConfig.OrchestratorType)
	return nil
}

func setUpLocker(
	environmentConfig EnvironmentConfig,
	logger *log.Entry,
) runtimeinterfaces.Locker {

	// Without a lock endpoint concurrent invocations against the same
	// service are not coordinated
	if environmentConfig.LockRedisEndpoint == "" {
		return nil
	}

	lockProvider, err := lock.NewRedis(
		environmentConfig.LockRedisEndpoint,
		environmentConfig.LockRedisDatabase,
	)
	if err != nil {
		logger.Fatal(err)
	}
	return lockProvider
}

func main() {

	var environmentConfig EnvironmentConfig
	err := envconfig.Process("", &environmentConfig)
	if err != nil {
		log.Fatalf("Unable to process config: %s", err)
	}

	// Diagnostics go to stderr, stdout stays free for the invoker
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.JSONFormatter{
		TimestampFormat: "Jan 02 15:04:05",
	})
	if strings.ToLower(environmentConfig.LogFormat) == "text" {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "Jan 02 15:04:05",
		})
	}
	logLevel, err := log.ParseLevel(environmentConfig.LogLevel)
	if err != nil {
		log.Fatalf("Unable to parse log level: %s", err)
	}
	log.SetLevel(logLevel)
	logger := log.WithFields(log.Fields{
		"service": environmentConfig.ServiceName,
		"cluster": environmentConfig.ClusterName,
	})

	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s <up|down|verify> <service> [delta]\n", os.Args[0])
		os.Exit(controller.ExitInvalidInput)
	}
	operation := os.Args[1]
	serviceName := os.Args[2]
	delta := ""
	if len(os.Args) > 3 {
		delta = os.Args[3]
	}

	// Setup signal handler
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sig := <-signalChannel
		logger.WithFields(log.Fields{
			"signal": sig,
		}).Info("Received OS signal")
		cancel()
	}()

	orchestratorProvider := setUpOrchestrator(environmentConfig, logger)
	lockProvider := setUpLocker(environmentConfig, logger)

	service, err := controller.New(
		controller.Config{
			Cluster:       environmentConfig.ClusterName,
			MaxRetries:    environmentConfig.ReadMaxRetries,
			PollInterval:  time.Duration(environmentConfig.PollIntervalSeconds) * time.Second,
			VerifyTimeout: time.Duration(environmentConfig.VerifyTimeoutSeconds) * time.Second,
			LockTTL:       time.Duration(environmentConfig.LockTTLSeconds) * time.Second,
		},
		orchestratorProvider,
		lockProvider,
		logger,
	)
	if err != nil {
		logger.Fatal(err)
	}

	logger.WithFields(log.Fields{
		"operation": operation,
		"name":      serviceName,
	}).Info("Starting capacity operation")

	runErr := service.Run(ctx, operation, serviceName, delta)

	if environmentConfig.MetricsEnabled {
		submitRunMetrics(ctx, environmentConfig, orchestratorProvider, serviceName, runErr, logger)
	}

	os.Exit(controller.ExitCode(runErr))
}

// submitRunMetrics reports the post-run desired count and outcome so
// dashboards can track scaling activity per cluster
func submitRunMetrics(
	ctx context.Context,
	environmentConfig EnvironmentConfig,
	orchestratorProvider interfaces.Orchestrator,
	serviceName string,
	runErr error,
	logger *log.Entry,
) {

	healthy := float64(0)
	if runErr == nil {
		healthy = 1
	}

	now := time.Now().Unix()
	runMetrics := []metrics.Metric{
		{
			Name:      fmt.Sprintf("capacity.controller.%s.healthy", serviceName),
			Value:     healthy,
			Timestamp: now,
			Cluster:   environmentConfig.ClusterName,
		},
	}

	// The desired count is informational, a query failure here must not
	// change the run outcome
	status, err := orchestratorProvider.DescribeService(
		ctx, environmentConfig.ClusterName, serviceName,
	)
	if err == nil {
		runMetrics = append(runMetrics, metrics.Metric{
			Name:      fmt.Sprintf("capacity.controller.%s.desired_count", serviceName),
			Value:     float64(status.DesiredCount),
			Timestamp: now,
			Cluster:   environmentConfig.ClusterName,
		})
	} else {
		logger.WithFields(log.Fields{
			"name":  serviceName,
			"error": err,
		}).Warning("Unable to read desired count for metrics")
	}

	metrics.NewEmitter(logger).Submit(runMetrics)
}
