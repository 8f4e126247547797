package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI is the subset of the SQS client this adapter calls.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSProducer implements Producer against a single SQS queue URL.
type SQSProducer struct {
	client   SQSAPI
	queueURL string
	fifo     FIFOOptions
}

// NewSQSProducer constructs a Producer bound to queueURL. Pass a non-zero
// FIFOOptions.MessageGroupID when queueURL names a FIFO queue.
func NewSQSProducer(client SQSAPI, queueURL string, fifo FIFOOptions) *SQSProducer {
	return &SQSProducer{client: client, queueURL: queueURL, fifo: fifo}
}

// Enqueue sends jobID as a JSON message body to the configured queue.
func (p *SQSProducer) Enqueue(ctx context.Context, jobID string) error {
	jobID, err := validateJobID(jobID)
	if err != nil {
		return err
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(messageBody(jobID)),
	}
	if p.fifo.MessageGroupID != "" {
		input.MessageGroupId = aws.String(p.fifo.MessageGroupID)
		dedup := p.fifo.DeduplicationID
		if dedup == "" {
			dedup = jobID
		}
		input.MessageDeduplicationId = aws.String(dedup)
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue enqueue %s: %w", jobID, err)
	}
	return nil
}
