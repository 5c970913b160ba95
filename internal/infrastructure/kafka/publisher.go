package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-settlement/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability"
	"github.com/Zhima-Mochi/minishop-settlement/internal/observability/logctx"

	"github.com/segmentio/kafka-go"
)

const componentKafka = "kafka_publisher"

// Envelope is the wire format of every published event.
type Envelope struct {
	Name       string          `json:"name"`
	Key        string          `json:"key,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	ProducedAt time.Time       `json:"produced_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher forwards settlement events to one topic, keyed by aggregate id so
// events of one order stay ordered within a partition.
type Publisher struct {
	w   messageWriter
	log observability.Logger
	now func() time.Time
}

// ParseBrokers splits a comma separated broker list and drops blanks.
func ParseBrokers(csv string) []string {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func NewPublisher(brokers []string, topic string, log observability.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newPublisher(w, log)
}

func newPublisher(w messageWriter, log observability.Logger) *Publisher {
	if log == nil {
		log = observability.NopLogger()
	}
	return &Publisher{
		w:   w,
		log: log.With(observability.F("component", componentKafka)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	msg, err := p.encode(e)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		logctx.FromOr(ctx, p.log).Warn("kafka_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err),
		)
		return fmt.Errorf("kafka: publish %s: %w", e.EventName(), err)
	}
	return nil
}

func (p *Publisher) encode(e domoutbox.Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: encode %s: %w", e.EventName(), err)
	}
	env := Envelope{Name: e.EventName(), Payload: payload, ProducedAt: p.now()}
	if k, ok := e.(domoutbox.Keyed); ok {
		env.Key = k.EventKey()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Value:   value,
		Time:    env.ProducedAt,
		Headers: []kafka.Header{{Key: "event", Value: []byte(env.Name)}},
	}
	if env.Key != "" {
		msg.Key = []byte(env.Key)
	}
	return msg, nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}
