// Package events streams authorization decisions to the fraud-analytics
// queue. Publishing is best-effort: the engine's decision stands whether or
// not the message lands.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cyphera/trust-engine/internal/trust/authorize"
)

// SQSPublisher sends finished decisions to an SQS queue.
type SQSPublisher struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSPublisher creates a publisher for the given queue URL using the
// default AWS configuration chain.
func NewSQSPublisher(ctx context.Context, queueURL string) (*SQSPublisher, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("decision queue URL is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return &SQSPublisher{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

// PublishDecision serializes the decision and queues it. Message attributes
// carry the outcome and transaction ID so consumers can filter without
// parsing bodies.
func (p *SQSPublisher) PublishDecision(ctx context.Context, decision *authorize.Decision) error {
	body, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"Outcome": {
				StringValue: aws.String(string(decision.Outcome)),
				DataType:    aws.String("String"),
			},
			"TransactionID": {
				StringValue: aws.String(decision.TransactionID.String()),
				DataType:    aws.String("String"),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send decision to SQS: %w", err)
	}
	return nil
}
