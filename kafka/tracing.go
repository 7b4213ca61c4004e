package kafka

import (
	"context"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for messaging
const (
	MessagingSystemKey              = "messaging.system"
	MessagingDestinationNameKey     = "messaging.destination.name"
	MessagingDestinationPartitionID = "messaging.destination.partition.id"
	MessagingOperationNameKey       = "messaging.operation.name"
	MessagingOperationTypeKey       = "messaging.operation.type"
	MessagingKafkaOffsetKey         = "messaging.kafka.offset"
	MessagingKafkaConsumerGroupKey  = "messaging.kafka.consumer.group"
	MessagingKafkaMessageKeyKey     = "messaging.kafka.message.key"
)

// TracingService provides OpenTelemetry tracing for session operations
type TracingService struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	config     *TracingConfig
}

// NewTracingService creates a new tracing service
func NewTracingService(config *TracingConfig) *TracingService {
	tracerName := config.TracerName
	if tracerName == "" {
		tracerName = "github.com/streamroute/kafka-session"
	}

	tracerVersion := config.TracerVersion
	if tracerVersion == "" {
		tracerVersion = Version
	}

	return &TracingService{
		tracer:     otel.Tracer(tracerName, trace.WithInstrumentationVersion(tracerVersion)),
		propagator: otel.GetTextMapPropagator(),
		config:     config,
	}
}

// StartProducerSpan starts a publish span for one produced message. The
// returned end function is called when the delivery handle resolves, so the
// span covers enqueue through broker acknowledgment.
func (t *TracingService) StartProducerSpan(ctx context.Context, topic string, partition int32, key []byte) (context.Context, func(error)) {
	spanName := fmt.Sprintf("%s publish", topic)

	ctx, span := t.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String(MessagingSystemKey, "kafka"),
			attribute.String(MessagingDestinationNameKey, topic),
			attribute.String(MessagingOperationNameKey, "publish"),
			attribute.String(MessagingOperationTypeKey, "publish"),
		),
	)

	if key != nil {
		span.SetAttributes(attribute.String(MessagingKafkaMessageKeyKey, string(key)))
	}

	if partition != PartitionUnassigned {
		span.SetAttributes(attribute.Int(MessagingDestinationPartitionID, int(partition)))
	}

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// StartConsumerSpan starts a process span for one polled message, linked to
// the producer's trace through the message headers.
func (t *TracingService) StartConsumerSpan(ctx context.Context, groupID string, msg *Message) (context.Context, func(error)) {
	ctx = t.ExtractTraceContext(ctx, msg)

	spanName := fmt.Sprintf("%s %s process", groupID, msg.Topic)

	ctx, span := t.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String(MessagingSystemKey, "kafka"),
			attribute.String(MessagingDestinationNameKey, msg.Topic),
			attribute.Int(MessagingDestinationPartitionID, int(msg.Partition)),
			attribute.String(MessagingOperationNameKey, "process"),
			attribute.String(MessagingOperationTypeKey, "process"),
			attribute.Int64(MessagingKafkaOffsetKey, msg.Offset),
			attribute.String(MessagingKafkaConsumerGroupKey, groupID),
		),
	)

	if msg.Key != nil {
		span.SetAttributes(attribute.String(MessagingKafkaMessageKeyKey, string(msg.Key)))
	}

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// InjectTraceContext injects trace context into native message headers
func (t *TracingService) InjectTraceContext(ctx context.Context, msg *kafka.Message) {
	carrier := &kafkaHeaderCarrier{msg: msg}
	t.propagator.Inject(ctx, carrier)
}

// ExtractTraceContext extracts trace context from message headers
func (t *TracingService) ExtractTraceContext(ctx context.Context, msg *Message) context.Context {
	carrier := &messageHeaderCarrier{msg: msg}
	return t.propagator.Extract(ctx, carrier)
}

// kafkaHeaderCarrier implements propagation.TextMapCarrier for kafka.Message
type kafkaHeaderCarrier struct {
	msg *kafka.Message
}

func (c *kafkaHeaderCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *kafkaHeaderCarrier) Set(key, val string) {
	// update an existing header in-place before appending
	for i := range c.msg.Headers {
		if c.msg.Headers[i].Key == key {
			c.msg.Headers[i].Value = []byte(val)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{
		Key:   key,
		Value: []byte(val),
	})
}

func (c *kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// messageHeaderCarrier implements propagation.TextMapCarrier for Message
type messageHeaderCarrier struct {
	msg *Message
}

func (c *messageHeaderCarrier) Get(key string) string {
	if c.msg.Headers == nil {
		return ""
	}
	if val, ok := c.msg.Headers[key]; ok {
		return string(val)
	}
	return ""
}

func (c *messageHeaderCarrier) Set(key, val string) {
	if c.msg.Headers == nil {
		c.msg.Headers = make(Headers)
	}
	c.msg.Headers[key] = []byte(val)
}

func (c *messageHeaderCarrier) Keys() []string {
	if c.msg.Headers == nil {
		return nil
	}
	keys := make([]string, 0, len(c.msg.Headers))
	for k := range c.msg.Headers {
		keys = append(keys, k)
	}
	return keys
}
