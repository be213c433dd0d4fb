package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/justeat/JustSupport/internal/pkg/logger"
)

// SQSReceiver is the subset of *sqs.Client used by SQSConsumer.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSConsumer long-polls a queue and runs the handler for each completion
// event. A message is deleted only after the handler succeeds, so a failed
// propagation run is retried on redelivery.
type SQSConsumer struct {
	client    SQSReceiver
	queueURL  string
	handle    HandlerFunc
	waitTime  int32
	errorWait time.Duration
}

func NewSQSConsumer(client SQSReceiver, queueURL string, handle HandlerFunc) *SQSConsumer {
	return &SQSConsumer{
		client:    client,
		queueURL:  queueURL,
		handle:    handle,
		waitTime:  20,
		errorWait: 5 * time.Second,
	}
}

// Run polls until ctx is cancelled.
func (c *SQSConsumer) Run(ctx context.Context) {
	logger.Info("trigger consumer started", "queue", c.queueURL)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("trigger receive failed", "queue", c.queueURL, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.errorWait):
			}
		}
	}
}

// PollOnce receives one batch and processes it.
func (c *SQSConsumer) PollOnce(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.waitTime,
	})
	if err != nil {
		return err
	}

	for _, msg := range out.Messages {
		evt, err := Decode([]byte(aws.ToString(msg.Body)))
		if err != nil {
			logger.Warn("dropping trigger message", "message_id", aws.ToString(msg.MessageId), "error", err)
			c.deleteMessage(ctx, msg.ReceiptHandle)
			continue
		}

		if err := c.handle(ctx, evt); err != nil {
			logger.Error("trigger handler failed", "run_id", evt.RunID, "error", err)
			continue
		}

		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
	return nil
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("deleting trigger message failed", "error", err)
	}
}
