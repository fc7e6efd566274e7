package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type mockWriter struct {
	writeFn  func(ctx context.Context, msgs ...kafkago.Message) error
	messages []kafkago.Message
	closed   bool
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if m.writeFn != nil {
		return m.writeFn(ctx, msgs...)
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestNotifierEmit(t *testing.T) {
	t.Run("publishes json keyed by order id", func(t *testing.T) {
		writer := &mockWriter{}
		notifier := NewNotifier(writer, "order-notifications")

		n := domain.Notification{
			Type:        domain.NotificationPaymentCaptured,
			OrderID:     "order-1",
			OrderNumber: "ORD-20240101-ABCDEF1234",
			Amount:      2000,
			OccurredAt:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		}
		if err := notifier.Emit(context.Background(), n); err != nil {
			t.Fatalf("Emit() failed: %v", err)
		}

		if len(writer.messages) != 1 {
			t.Fatalf("expected 1 message, got %d", len(writer.messages))
		}
		msg := writer.messages[0]
		if string(msg.Key) != "order-1" {
			t.Errorf("expected key order-1, got %s", msg.Key)
		}

		var decoded domain.Notification
		if err := json.Unmarshal(msg.Value, &decoded); err != nil {
			t.Fatalf("decode value: %v", err)
		}
		if decoded.Type != n.Type || decoded.Amount != 2000 {
			t.Errorf("unexpected payload %+v", decoded)
		}
		if (headerCarrier{msg: &msg}).Get("notification-type") != domain.NotificationPaymentCaptured {
			t.Error("expected notification-type header")
		}
	})

	t.Run("injects trace context into headers", func(t *testing.T) {
		prev := otel.GetTextMapPropagator()
		otel.SetTextMapPropagator(propagation.TraceContext{})
		t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

		tp := sdktrace.NewTracerProvider()
		ctx, span := tp.Tracer("test").Start(context.Background(), "emit")
		defer span.End()

		writer := &mockWriter{}
		if err := NewNotifier(writer, "t").Emit(ctx, domain.Notification{Type: "x", OrderID: "o"}); err != nil {
			t.Fatalf("Emit() failed: %v", err)
		}

		msg := writer.messages[0]
		if (headerCarrier{msg: &msg}).Get("traceparent") == "" {
			t.Error("expected traceparent header")
		}
	})

	t.Run("wraps writer errors", func(t *testing.T) {
		broker := errors.New("broker down")
		writer := &mockWriter{writeFn: func(context.Context, ...kafkago.Message) error { return broker }}

		err := NewNotifier(writer, "t").Emit(context.Background(), domain.Notification{Type: "x", OrderID: "o"})
		if !errors.Is(err, broker) {
			t.Errorf("expected wrapped broker error, got %v", err)
		}
	})
}
