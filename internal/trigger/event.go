// Package trigger carries the single "ingestion finished" signal from the
// case ingestor to whatever runs propagation: an SQS queue, an SNS topic,
// a Kafka topic, an HTTP endpoint or an in-process queue.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IngestionComplete is the fixed payload published after every ingestion run.
const IngestionComplete = "getAndUpdateCases ready"

// Event is the completion signal.
type Event struct {
	Message   string    `json:"message"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewIngestionComplete builds the completion event for one ingestion run.
func NewIngestionComplete() Event {
	return Event{
		Message:   IngestionComplete,
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
}

// Publisher delivers an event to the configured transport.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// HandlerFunc reacts to a received event. Returning an error leaves the
// message on transports that support redelivery.
type HandlerFunc func(ctx context.Context, evt Event) error

// ErrUnknownEvent is returned when a message does not carry the completion payload.
var ErrUnknownEvent = errors.New("trigger: unknown event")

// snsEnvelope is the wrapper SNS puts around a message delivered to SQS or HTTP.
type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

const (
	snsNotification             = "Notification"
	snsSubscriptionConfirmation = "SubscriptionConfirmation"
)

// Decode parses a raw event or an SNS notification wrapping one.
func Decode(body []byte) (Event, error) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Type == snsNotification {
		body = []byte(env.Message)
	}

	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("decoding trigger event: %w", err)
	}
	if evt.Message != IngestionComplete {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, evt.Message)
	}
	return evt, nil
}
