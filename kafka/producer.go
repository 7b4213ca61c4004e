package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
)

// Verify ProducerSession implements Producer interface
var _ Producer = (*ProducerSession)(nil)

// producerClient is the subset of the native producer handle the session
// uses. *kafka.Producer satisfies it; tests substitute a fake.
type producerClient interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Len() int
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	Close()
}

// ProducerSession owns one native producer handle. Produce enqueues without
// waiting on the broker; the runtime reports each message's outcome on its
// event queue, which a single drain goroutine threads back into the matching
// DeliveryHandle.
type ProducerSession struct {
	producer producerClient
	config   *ProducerConfig
	tracer   *TracingService
	logger   Logger
	closed   int32 // atomic: 0=open, 1=closed

	handleMu sync.Mutex
	handles  map[string]*DeliveryHandle

	drainDone chan struct{}
}

// NewProducerSession opens a native producer and wraps it in a session.
// Configuration is validated before the native handle is created.
func NewProducerSession(opts ...ProducerOption) (*ProducerSession, error) {
	config := newDefaultProducerConfig()
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	configMap := &kafka.ConfigMap{
		"bootstrap.servers": strings.Join(config.Brokers, ","),
		"acks":              int(config.Acks),
	}

	if config.ClientID != "" {
		configMap.SetKey("client.id", config.ClientID)
	}

	if config.Idempotent {
		configMap.SetKey("enable.idempotence", true)
	}

	if config.Debug != "" {
		configMap.SetKey("debug", config.Debug)
	}

	applySecurity(configMap, config.SSL, config.SASL)
	configMap.SetKey("log_level", int(config.LogLevel))

	producer, err := kafka.NewProducer(configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return newProducerSession(producer, config), nil
}

// newProducerSession wraps an already-open native handle and starts the
// delivery drain.
func newProducerSession(producer producerClient, config *ProducerConfig) *ProducerSession {
	logger := config.Logger
	if logger == nil {
		logger = NewDefaultLogger(config.LogLevel)
	}

	ps := &ProducerSession{
		producer:  producer,
		config:    config,
		logger:    logger,
		handles:   make(map[string]*DeliveryHandle),
		drainDone: make(chan struct{}),
	}

	if config.Tracing != nil && config.Tracing.Enabled {
		ps.tracer = NewTracingService(config.Tracing)
	}

	go ps.drainEvents()

	return ps
}

// Produce enqueues one message and returns its pending delivery handle
// without blocking on the broker round-trip. Pass PartitionUnassigned to let
// the runtime pick the partition.
func (p *ProducerSession) Produce(ctx context.Context, topic string, payload, key []byte, partition int32) (*DeliveryHandle, error) {
	if topic == "" {
		return nil, newError(KindInvalidArgument, kafka.ErrInvalidArg, "empty topic name")
	}
	if partition < 0 && partition != PartitionUnassigned {
		return nil, newError(KindInvalidArgument, kafka.ErrInvalidArg,
			fmt.Sprintf("partition must be non-negative or unassigned, got %d", partition))
	}
	if atomic.LoadInt32(&p.closed) == 1 {
		return nil, errSessionClosed(KindUnknown)
	}

	token := uuid.NewString()
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: partition,
		},
		Key:    key,
		Value:  payload,
		Opaque: token,
	}

	var endSpan func(error)
	if p.tracer != nil {
		var spanCtx context.Context
		spanCtx, endSpan = p.tracer.StartProducerSpan(ctx, topic, partition, key)
		p.tracer.InjectTraceContext(spanCtx, msg)
	}

	handle := newDeliveryHandle(token, endSpan)
	p.register(handle)

	if err := p.producer.Produce(msg, nil); err != nil {
		p.unregister(token)
		classified := classifyNative(KindUnknown, err)
		handle.resolve(DeliveryReport{}, classified)
		return nil, classified
	}

	return handle, nil
}

// Flush waits up to timeout for queued and in-flight messages to be
// delivered. Returns a Timeout error when messages remain.
func (p *ProducerSession) Flush(timeout time.Duration) error {
	remaining := p.producer.Flush(int(timeout.Milliseconds()))
	if remaining > 0 {
		return newError(KindTimeout, kafka.ErrTimedOut,
			fmt.Sprintf("%d messages still queued after flush", remaining))
	}
	return nil
}

// Len reports the number of messages still queued in the runtime
func (p *ProducerSession) Len() int {
	if atomic.LoadInt32(&p.closed) == 1 {
		return 0
	}
	return p.producer.Len()
}

// Close flushes outstanding messages, fails any handle still pending after
// the flush window with a Timeout outcome, then destroys the native handle.
// Idempotent.
func (p *ProducerSession) Close() error {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return nil
	}

	remaining := p.producer.Flush(int(p.config.FlushTimeout.Milliseconds()))
	if remaining > 0 {
		p.logger.Warn("Closing with %d undelivered messages", remaining)
	}

	p.failPending()

	// destroying the handle closes the event queue, stopping the drain
	p.producer.Close()
	<-p.drainDone

	return nil
}

// drainEvents consumes the runtime's event queue and resolves delivery
// handles. Runs until the native handle is destroyed.
func (p *ProducerSession) drainEvents() {
	defer close(p.drainDone)

	for e := range p.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			p.complete(ev)
		case kafka.Error:
			p.logger.Error("Producer error: %v", ev)
		}
	}
}

// complete resolves the handle matching one delivery report
func (p *ProducerSession) complete(msg *kafka.Message) {
	token, ok := msg.Opaque.(string)
	if !ok {
		p.logger.Warn("Delivery report without correlation token, dropping")
		return
	}

	handle := p.unregister(token)
	if handle == nil {
		if atomic.LoadInt32(&p.closed) == 1 {
			// already failed by shutdown; late report carries nothing new
			return
		}
		// should not happen under correct correlation
		p.logger.Warn("Delivery report for unknown token %s, dropping", token)
		return
	}

	if msg.TopicPartition.Error != nil {
		handle.resolve(DeliveryReport{}, classifyNative(KindUnknown, msg.TopicPartition.Error))
		return
	}

	handle.resolve(DeliveryReport{
		Topic:     topicOf(msg.TopicPartition.Topic),
		Partition: msg.TopicPartition.Partition,
		Offset:    int64(msg.TopicPartition.Offset),
	}, nil)
}

// failPending resolves every still-pending handle with a Timeout outcome so
// shutdown never leaks a handle without a terminal state.
func (p *ProducerSession) failPending() {
	p.handleMu.Lock()
	pending := make([]*DeliveryHandle, 0, len(p.handles))
	for _, h := range p.handles {
		pending = append(pending, h)
	}
	p.handles = make(map[string]*DeliveryHandle)
	p.handleMu.Unlock()

	for _, h := range pending {
		h.resolve(DeliveryReport{}, newError(KindTimeout, kafka.ErrTimedOut,
			"producer closed before delivery report arrived"))
	}
}

func (p *ProducerSession) register(h *DeliveryHandle) {
	p.handleMu.Lock()
	p.handles[h.token] = h
	p.handleMu.Unlock()
}

func (p *ProducerSession) unregister(token string) *DeliveryHandle {
	p.handleMu.Lock()
	defer p.handleMu.Unlock()
	h := p.handles[token]
	delete(p.handles, token)
	return h
}
