package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader replays results in order, then reports io.EOF.
type fakeReader struct {
	results []readResult
}

type readResult struct {
	msg kafkago.Message
	err error
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	if len(r.results) == 0 {
		return kafkago.Message{}, io.EOF
	}
	next := r.results[0]
	r.results = r.results[1:]
	return next.msg, next.err
}

func (r *fakeReader) Close() error { return nil }

func TestRelay_PublishEvent(t *testing.T) {
	writer := &fakeWriter{}
	relay := newRelay(writer, &fakeReader{}, logger.NewNop())

	at := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	event := domain.Event{OrderID: "o-7", Kind: domain.EventStatusChanged, Status: domain.StatusPreparing, Timestamp: at}
	require.NoError(t, relay.PublishEvent(context.Background(), event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "o-7", string(msg.Key))
	assert.Equal(t, at, msg.Time)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, domain.StatusPreparing, decoded.Status)

	writer.err = errors.New("leader not available")
	assert.Error(t, relay.PublishEvent(context.Background(), event))
}

func TestRelay_ConsumeEvents(t *testing.T) {
	value, err := json.Marshal(domain.Event{OrderID: "o-1", Kind: domain.EventCreated})
	require.NoError(t, err)

	reader := &fakeReader{results: []readResult{
		{err: errors.New("coordinator moved")},
		{msg: kafkago.Message{Value: []byte("{broken")}},
		{msg: kafkago.Message{Value: value}},
	}}
	relay := newRelay(&fakeWriter{}, reader, logger.NewNop())
	relay.retryDelay = time.Millisecond

	var got []string
	err = relay.ConsumeEvents(context.Background(), func(ctx context.Context, e domain.Event) error {
		got = append(got, e.OrderID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"o-1"}, got)
}
