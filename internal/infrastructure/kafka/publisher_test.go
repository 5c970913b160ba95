package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-settlement/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

type bareEvent struct{ N int }

func (bareEvent) EventName() string { return "test.bare" }

func TestPublishKeysByAggregate(t *testing.T) {
	w := &captureWriter{}
	p := newPublisher(w, nil)
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	evt := domorder.AuditEvent{OrderID: "ord-1", Kind: domorder.KindWorkflowChanged, Previous: "normal", Current: "on_hold", Reason: "fraud review"}
	require.NoError(t, p.Publish(context.Background(), evt))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ord-1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "order.workflow_changed", string(msg.Headers[0].Value))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, "order.workflow_changed", env.Name)
	assert.Equal(t, "ord-1", env.Key)

	var got domorder.AuditEvent
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "fraud review", got.Reason)
	assert.Equal(t, "on_hold", got.Current)
}

func TestPublishUnkeyedEvent(t *testing.T) {
	w := &captureWriter{}
	p := newPublisher(w, nil)
	var _ domoutbox.Event = bareEvent{}

	require.NoError(t, p.Publish(context.Background(), bareEvent{N: 3}))
	assert.Nil(t, w.msgs[0].Key)
	assert.JSONEq(t, `{"N":3}`, string(mustEnvelope(t, w.msgs[0].Value).Payload))
}

func TestPublishWrapsWriterError(t *testing.T) {
	down := errors.New("leader not available")
	p := newPublisher(&captureWriter{err: down}, nil)
	err := p.Publish(context.Background(), bareEvent{})
	assert.ErrorIs(t, err, down)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092,"))
	assert.Empty(t, ParseBrokers(""))
}

func mustEnvelope(t *testing.T, raw []byte) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}
