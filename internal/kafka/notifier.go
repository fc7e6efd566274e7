package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// MessageWriter is the subset of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Notifier publishes administrative notifications to a Kafka topic, keyed by order id.
type Notifier struct {
	writer MessageWriter
	topic  string
}

// NewWriter builds the producer used by Notifier.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewNotifier(writer MessageWriter, topic string) *Notifier {
	return &Notifier{writer: writer, topic: topic}
}

func (n *Notifier) Topic() string {
	return n.topic
}

func (n *Notifier) Emit(ctx context.Context, notification domain.Notification) error {
	value, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(notification.OrderID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "notification-type", Value: []byte(notification.Type)},
		},
	}
	injectTraceContext(ctx, &msg)

	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for order %s: %w", notification.Type, notification.OrderID, err)
	}
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// headerCarrier adapts kafka headers to the otel propagator.
type headerCarrier struct {
	msg *kafkago.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafkago.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}

var _ propagation.TextMapCarrier = headerCarrier{}

func injectTraceContext(ctx context.Context, msg *kafkago.Message) {
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: msg})
}
