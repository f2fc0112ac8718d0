// Package sqs implements the queue.* interfaces over AWS SQS FIFO queues:
// durable VariantJob/BatchJob/Metrics/Trigger/DeadLetter queues, with
// MessageGroupId/MessageDeduplicationId for exactly-once enqueue and
// ApproximateReceiveCount for redelivery counting.
package sqs

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	configv2 "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// NewClient builds an SQS client, pointed at LocalStack when
// LOCALSTACK_ENDPOINT is set, matching the teacher's awsutil.NewSQSClient.
func NewClient(ctx context.Context, region string) (*sqs.Client, error) {
	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")

	opts := []func(*configv2.LoadOptions) error{
		configv2.WithRegion(region),
	}
	if endpoint != "" {
		opts = append(opts, configv2.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}

	cfg, err := configv2.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	if endpoint != "" {
		return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		}), nil
	}
	return sqs.NewFromConfig(cfg), nil
}

// Topology names the per-platform/per-topology queue derived from a
// binary's QueueURLPrefix config, e.g. Topology(prefix, "variantjob", "ios").
func Topology(prefix, kind, platform string) string {
	if platform == "" {
		return prefix + "-" + kind
	}
	return prefix + "-" + kind + "-" + platform
}
