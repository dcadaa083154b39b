package tracing

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// MessageCarrier exposes the headers of a Kafka message to a propagator.
// Set replaces an existing header so re-publishing a message does not stack
// trace parents.
type MessageCarrier struct {
	msg *kafka.Message
}

var _ propagation.TextMapCarrier = MessageCarrier{}

func NewMessageCarrier(msg *kafka.Message) MessageCarrier {
	return MessageCarrier{msg: msg}
}

func (c MessageCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c MessageCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c MessageCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}

// InjectMessage writes the trace context of ctx into the headers of every
// message.
func InjectMessage(ctx context.Context, msgs ...*kafka.Message) {
	propagator := otel.GetTextMapPropagator()
	for _, m := range msgs {
		propagator.Inject(ctx, NewMessageCarrier(m))
	}
}

// ExtractMessage returns ctx carrying the remote span context found in msg.
func ExtractMessage(ctx context.Context, msg *kafka.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, NewMessageCarrier(msg))
}

// StartConsumerSpan continues the producer's trace for one consumed message.
func StartConsumerSpan(ctx context.Context, operation string, msg kafka.Message) (context.Context, trace.Span) {
	ctx = ExtractMessage(ctx, &msg)
	return GetTracer(TracerKafka).Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(msg.Topic),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
}
