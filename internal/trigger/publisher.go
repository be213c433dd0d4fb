package trigger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/justeat/JustSupport/internal/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// SQSSender is the subset of *sqs.Client used by SQSPublisher.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends the event as the message body.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
}

func NewSQSPublisher(client SQSSender, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling trigger event: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("publishing to SQS: %w", err)
	}
	logger.Info("trigger sent", "transport", "sqs", "queue", p.queueURL, "run_id", evt.RunID)
	return nil
}

// SNSClient is the subset of *sns.Client used by SNSPublisher.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes with MessageStructure=json so every protocol gets
// the event JSON from the "default" key.
type SNSPublisher struct {
	client    SNSClient
	targetARN string
}

func NewSNSPublisher(client SNSClient, targetARN string) *SNSPublisher {
	return &SNSPublisher{client: client, targetARN: targetARN}
}

func (p *SNSPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling trigger event: %w", err)
	}
	structured, err := json.Marshal(map[string]string{"default": string(body)})
	if err != nil {
		return fmt.Errorf("marshaling SNS message: %w", err)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(p.targetARN),
		Message:          aws.String(string(structured)),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		return fmt.Errorf("publishing to SNS: %w", err)
	}
	logger.Info("trigger sent", "transport", "sns", "target", p.targetARN, "message_id", aws.ToString(out.MessageId))
	return nil
}

// KafkaWriter is the subset of *kafka.Writer used by KafkaPublisher.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes the event keyed by run id.
type KafkaPublisher struct {
	writer KafkaWriter
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling trigger event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(evt.RunID), Value: data}); err != nil {
		return fmt.Errorf("publishing to Kafka: %w", err)
	}
	logger.Info("trigger sent", "transport", "kafka", "run_id", evt.RunID)
	return nil
}

// Close closes the Kafka writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LocalQueue is an in-process work queue connecting ingestion to
// propagation when both run in the same binary.
type LocalQueue struct {
	events chan Event
}

// NewLocalQueue creates a queue holding up to size pending events.
func NewLocalQueue(size int) *LocalQueue {
	if size <= 0 {
		size = 1
	}
	return &LocalQueue{events: make(chan Event, size)}
}

func (q *LocalQueue) Publish(ctx context.Context, evt Event) error {
	select {
	case q.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain runs handle for every queued event without blocking for new ones.
func (q *LocalQueue) Drain(ctx context.Context, handle HandlerFunc) error {
	for {
		select {
		case evt := <-q.events:
			if err := handle(ctx, evt); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// Run handles events until ctx is cancelled. Handler errors are logged.
func (q *LocalQueue) Run(ctx context.Context, handle HandlerFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-q.events:
			if err := handle(ctx, evt); err != nil {
				logger.Error("trigger handler failed", "run_id", evt.RunID, "error", err)
			}
		}
	}
}
