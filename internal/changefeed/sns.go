package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSConfig configures the SNS change sink. Endpoint overrides the service URL (LocalStack).
type SNSConfig struct {
	Region          string
	TopicARN        string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// SNSAPI is the subset of the SNS client used by SNSPublisher.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher forwards change events to an SNS topic as JSON messages.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

// NewSNSPublisher loads AWS configuration and builds an SNS-backed publisher.
func NewSNSPublisher(ctx context.Context, cfg SNSConfig) (*SNSPublisher, error) {
	if strings.TrimSpace(cfg.TopicARN) == "" {
		return nil, errors.New("changefeed: sns topic arn is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("changefeed: load aws config: %w", err)
	}

	clientOpts := []func(*sns.Options){}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return NewSNSPublisherWithClient(sns.NewFromConfig(awsCfg, clientOpts...), cfg.TopicARN), nil
}

// NewSNSPublisherWithClient wraps an existing client.
func NewSNSPublisherWithClient(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

// Publish sends event as the message body with type, table and owner as message attributes.
func (p *SNSPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("changefeed: encode event: %w", err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": stringAttribute(string(event.Type)),
			"table":      stringAttribute(event.Table),
			"owner":      stringAttribute(event.Owner),
		},
	})
	if err != nil {
		return fmt.Errorf("changefeed: sns publish: %w", err)
	}
	return nil
}

func stringAttribute(value string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(value),
	}
}
