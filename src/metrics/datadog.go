package metrics

import (
	"context"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	datadogV2 "github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"github.com/sirupsen/logrus"
)

// Metric is a single gauge observation about a controller run
type Metric struct {
	Name      string
	Value     float64
	Timestamp int64
	Cluster   string
}

// Emitter submits run-outcome metrics to DataDog. Submission failures
// are logged and never affect the run result
type Emitter struct {
	logger *logrus.Entry
}

// NewEmitter creates a new instance of the DataDog metrics emitter.
// Credentials come from the DD_API_KEY/DD_APP_KEY environment variables
func NewEmitter(logger *logrus.Entry) *Emitter {
	return &Emitter{
		logger: logger.WithFields(logrus.Fields{
			"subservice": "metrics",
		}),
	}
}

// Submit sends all the collected metrics
func (emitter *Emitter) Submit(metrics []Metric) {
	ctx := datadog.NewDefaultContext(context.Background())
	configuration := datadog.NewConfiguration()

	apiClient := datadog.NewAPIClient(configuration)
	api := datadogV2.NewMetricsApi(apiClient)

	for _, metric := range metrics {
		body := datadogV2.MetricPayload{
			Series: []datadogV2.MetricSeries{
				{
					Metric: metric.Name,
					Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
					Points: []datadogV2.MetricPoint{
						{
							Timestamp: datadog.PtrInt64(metric.Timestamp),
							Value:     datadog.PtrFloat64(metric.Value),
						},
					},
					Resources: []datadogV2.MetricResource{
						{
							Name: datadog.PtrString(metric.Cluster),
							Type: datadog.PtrString("cluster"),
						},
					},
				},
			},
		}
		_, _, err := api.SubmitMetrics(ctx, body, *datadogV2.NewSubmitMetricsOptionalParameters())
		if err != nil {
			emitter.logger.WithFields(logrus.Fields{
				"metric": metric.Name,
				"error":  err,
			}).Warning("Unable to submit metric to DataDog")
		} else {
			emitter.logger.WithFields(logrus.Fields{
				"metric": metric.Name,
				"value":  metric.Value,
			}).Debug("Submitted metric")
		}
	}
}
