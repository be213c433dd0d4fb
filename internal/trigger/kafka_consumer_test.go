package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	queue     []kafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(f.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestKafkaConsumerCommitsHandledMessages(t *testing.T) {
	good, err := json.Marshal(NewIngestionComplete())
	require.NoError(t, err)

	reader := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: []byte(`{"message":"something else"}`)},
		{Offset: 3, Value: good},
	}}

	calls := 0
	c := &KafkaConsumer{reader: reader, handle: func(context.Context, Event) error {
		calls++
		if calls == 2 {
			return errors.New("propagation failed")
		}
		return nil
	}}

	for i := 0; i < 3; i++ {
		require.NoError(t, c.ConsumeOnce(context.Background()))
	}
	assert.ErrorIs(t, c.ConsumeOnce(context.Background()), io.EOF)

	// offset 2 is dropped as unknown; offset 3 failed and stays uncommitted
	assert.Equal(t, []int64{1, 2}, reader.committed)
	assert.Equal(t, 2, calls)
}
