package trigger

import (
	"context"
	"time"

	"github.com/justeat/JustSupport/internal/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// KafkaReader is the subset of *kafka.Reader used by KafkaConsumer.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads completion events from a topic as part of a consumer
// group. Offsets are committed only after the handler succeeds.
type KafkaConsumer struct {
	reader    KafkaReader
	handle    HandlerFunc
	errorWait time.Duration
}

// NewKafkaConsumer joins groupID on topic.
func NewKafkaConsumer(brokers []string, topic, groupID string, handle HandlerFunc) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		handle:    handle,
		errorWait: 5 * time.Second,
	}
}

// Run consumes until ctx is cancelled.
func (c *KafkaConsumer) Run(ctx context.Context) {
	logger.Info("trigger consumer started", "transport", "kafka")
	for {
		if err := c.ConsumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("trigger fetch failed", "transport", "kafka", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.errorWait):
			}
		}
	}
}

// ConsumeOnce fetches and handles a single message. A failed handler leaves
// the offset uncommitted so the event is redelivered after a rebalance or
// restart.
func (c *KafkaConsumer) ConsumeOnce(ctx context.Context) error {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return err
	}

	evt, err := Decode(msg.Value)
	if err != nil {
		logger.Warn("dropping trigger message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return c.reader.CommitMessages(ctx, msg)
	}

	if err := c.handle(ctx, evt); err != nil {
		logger.Error("trigger handler failed", "run_id", evt.RunID, "error", err)
		return nil
	}
	return c.reader.CommitMessages(ctx, msg)
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
