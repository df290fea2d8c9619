package metrics

import (
	"context"
	"fmt"
	"time"

	cw "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/nilton-medeiros/estoque-rapido-sub001/internal/aws"
)

// CloudWatchReporter publishes counts from jobs that do not live long enough
// to be scraped.
type CloudWatchReporter struct {
	client    aws.CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewCloudWatchReporter returns a reporter writing under namespace.
func NewCloudWatchReporter(client aws.CloudWatchAPI, namespace string) *CloudWatchReporter {
	return &CloudWatchReporter{client: client, namespace: namespace, nowFunc: time.Now}
}

// Count publishes one count datum with the given dimensions.
func (r *CloudWatchReporter) Count(ctx context.Context, name string, value float64, dimensions map[string]string) error {
	dims := make([]cwtypes.Dimension, 0, len(dimensions))
	for k, v := range dimensions {
		dims = append(dims, cwtypes.Dimension{Name: awsString(k), Value: awsString(v)})
	}
	ts := r.nowFunc()
	_, err := r.client.PutMetricData(ctx, &cw.PutMetricDataInput{
		Namespace: &r.namespace,
		MetricData: []cwtypes.MetricDatum{{
			MetricName: &name,
			Value:      &value,
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  &ts,
			Dimensions: dims,
		}},
	})
	if err != nil {
		return fmt.Errorf("put metric data %s: %w", name, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
