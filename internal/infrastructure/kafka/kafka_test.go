package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type paidEvent struct {
	OrderID string `json:"order_id"`
	Amount  string `json:"amount"`
}

func (e paidEvent) EventName() string   { return "order.paid" }
func (e paidEvent) AggregateID() string { return e.OrderID }

func TestNewClient_ParsesBrokerList(t *testing.T) {
	assert.False(t, NewClient("").Enabled())
	assert.False(t, NewClient(" , ").Enabled())

	c := NewClient("kafka-1:9092, kafka-2:9092,")
	assert.True(t, c.Enabled())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, c.Brokers)
}

func TestPublisher_TypedEvent(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, "minishop", nil)

	require.NoError(t, p.Publish(context.Background(), paidEvent{OrderID: "o-1", Amount: "140000"}))
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "minishop.order.paid", m.Topic)
	assert.Equal(t, "o-1", string(m.Key))
	require.Len(t, m.Headers, 1)
	assert.Equal(t, "event-name", m.Headers[0].Key)
	assert.Equal(t, "order.paid", string(m.Headers[0].Value))

	var body paidEvent
	require.NoError(t, json.Unmarshal(m.Value, &body))
	assert.Equal(t, "140000", body.Amount)
}

func TestPublisher_RelayedMessageKeepsStoredPayload(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, "", nil)

	stored := []byte(`{"order_id":"o-9"}`)
	require.NoError(t, p.Publish(context.Background(), domoutbox.Message{ID: 7, Name: "order.created", Key: "o-9", Payload: stored}))
	require.NoError(t, p.Publish(context.Background(), &domoutbox.Message{ID: 8, Name: "order.created", Key: "o-9", Payload: stored}))

	require.Len(t, w.msgs, 2)
	for _, m := range w.msgs {
		assert.Equal(t, "order.created", m.Topic)
		assert.Equal(t, stored, m.Value)
	}
}

func TestPublisher_Errors(t *testing.T) {
	var nilPublisher *Publisher
	assert.ErrorIs(t, nilPublisher.Publish(context.Background(), paidEvent{}), ErrDisabled)
	assert.NoError(t, nilPublisher.Close())
	assert.ErrorIs(t, NewPublisher(nil, "", nil).Publish(context.Background(), paidEvent{}), ErrDisabled)

	down := errors.New("leader not available")
	p := NewPublisher(&fakeWriter{err: down}, "minishop", nil)
	err := p.Publish(context.Background(), paidEvent{OrderID: "o-1"})
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "minishop.order.paid")
}

func TestPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewPublisher(w, "", nil).Close())
	assert.True(t, w.closed)
}
