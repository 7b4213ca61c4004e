package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Verify ConsumerSession implements Consumer interface
var _ Consumer = (*ConsumerSession)(nil)

// consumerClient is the subset of the native consumer handle the session
// uses. *kafka.Consumer satisfies it; tests substitute a fake.
type consumerClient interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	Unsubscribe() error
	Subscription() ([]string, error)
	Assignment() ([]kafka.TopicPartition, error)
	Poll(timeoutMs int) kafka.Event
	Commit() ([]kafka.TopicPartition, error)
	CommitOffsets(offsets []kafka.TopicPartition) ([]kafka.TopicPartition, error)
	Committed(partitions []kafka.TopicPartition, timeoutMs int) ([]kafka.TopicPartition, error)
	QueryWatermarkOffsets(topic string, partition int32, timeoutMs int) (int64, int64, error)
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	Close() error
}

// watermarkTimeout bounds the per-partition watermark queries issued by Lag
const watermarkTimeout = 1 * time.Second

// ConsumerSession owns one native consumer handle: a single logical group
// member and consume cursor. One goroutine is expected to call Poll/Each;
// the session does not serialize concurrent polls.
type ConsumerSession struct {
	consumer consumerClient
	config   *ConsumerConfig
	tracer   *TracingService
	logger   Logger
	closed   int32 // atomic: 0=open, 1=closed
}

// NewConsumerSession opens a native consumer and wraps it in a session.
// Configuration is validated before the native handle is created.
func NewConsumerSession(opts ...ConsumerOption) (*ConsumerSession, error) {
	config := newDefaultConsumerConfig()
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(config.Brokers, ","),
		"group.id":           config.GroupID,
		"auto.offset.reset":  string(config.OffsetReset),
		"enable.auto.commit": config.AutoCommit,
	}

	if config.ClientID != "" {
		configMap.SetKey("client.id", config.ClientID)
	}

	if config.SessionTimeout > 0 {
		configMap.SetKey("session.timeout.ms", int(config.SessionTimeout.Milliseconds()))
	}

	if config.HeartbeatInterval > 0 {
		configMap.SetKey("heartbeat.interval.ms", int(config.HeartbeatInterval.Milliseconds()))
	}

	if config.AutoCommitInterval > 0 {
		configMap.SetKey("auto.commit.interval.ms", int(config.AutoCommitInterval.Milliseconds()))
	}

	if config.EnablePartitionEOF {
		configMap.SetKey("enable.partition.eof", true)
	}

	if config.Debug != "" {
		configMap.SetKey("debug", config.Debug)
	}

	applySecurity(configMap, config.SSL, config.SASL)
	configMap.SetKey("log_level", int(config.LogLevel))

	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return newConsumerSession(consumer, config), nil
}

// newConsumerSession wraps an already-open native handle
func newConsumerSession(consumer consumerClient, config *ConsumerConfig) *ConsumerSession {
	logger := config.Logger
	if logger == nil {
		logger = NewDefaultLogger(config.LogLevel)
	}

	cs := &ConsumerSession{
		consumer: consumer,
		config:   config,
		logger:   logger,
	}

	if config.Tracing != nil && config.Tracing.Enabled {
		cs.tracer = NewTracingService(config.Tracing)
	}

	return cs
}

// Subscribe subscribes the session to the given topics. The runtime owns the
// dynamic partition assignment from here on.
func (s *ConsumerSession) Subscribe(topics ...string) error {
	if s.isClosed() {
		return errSessionClosed(KindSubscription)
	}
	if len(topics) == 0 {
		return newError(KindInvalidArgument, kafka.ErrInvalidArg, "at least one topic is required")
	}
	for _, topic := range topics {
		if topic == "" {
			return newError(KindInvalidArgument, kafka.ErrInvalidArg, "empty topic name")
		}
	}

	if err := s.consumer.SubscribeTopics(topics, nil); err != nil {
		return classifyNative(KindSubscription, err)
	}

	s.logger.Debug("Subscribed to %s", newPartitionListFromTopics(topics))
	return nil
}

// Unsubscribe drops the current subscription
func (s *ConsumerSession) Unsubscribe() error {
	if s.isClosed() {
		return errSessionClosed(KindUnsubscription)
	}
	if err := s.consumer.Unsubscribe(); err != nil {
		return classifyNative(KindUnsubscription, err)
	}
	return nil
}

// Subscription returns the current subscription as a topic-only list
func (s *ConsumerSession) Subscription() (*PartitionList, error) {
	if s.isClosed() {
		return nil, errSessionClosed(KindQuery)
	}
	topics, err := s.consumer.Subscription()
	if err != nil {
		return nil, classifyNative(KindQuery, err)
	}
	return newPartitionListFromTopics(topics), nil
}

// Assignment returns the partitions the runtime currently assigns to this
// session's group member.
func (s *ConsumerSession) Assignment() (*PartitionList, error) {
	if s.isClosed() {
		return nil, errSessionClosed(KindQuery)
	}
	tps, err := s.consumer.Assignment()
	if err != nil {
		return nil, classifyNative(KindQuery, err)
	}
	return newPartitionListFromNative(tps)
}

// Poll blocks up to timeout draining one event from the native queue.
// (nil, nil) means the timeout elapsed with nothing available. A partition
// EOF notice comes back as a classified PartitionEOF error value; iterating
// callers keep polling on it. After Close, Poll returns (nil, nil) without
// touching the destroyed handle.
func (s *ConsumerSession) Poll(timeout time.Duration) (*Message, error) {
	if s.isClosed() {
		return nil, nil
	}

	switch e := s.consumer.Poll(int(timeout.Milliseconds())).(type) {
	case nil:
		return nil, nil
	case *kafka.Message:
		if e.TopicPartition.Error != nil {
			return nil, classifyNative(KindPoll, e.TopicPartition.Error)
		}
		return convertMessage(e), nil
	case kafka.PartitionEOF:
		eof := newError(KindPartitionEOF, kafka.ErrPartitionEOF,
			fmt.Sprintf("reached end of %s [%d] at offset %d", topicOf(e.Topic), e.Partition, e.Offset))
		return nil, eof
	case kafka.OffsetsCommitted:
		s.deliverCommitResult(nil, classifyNative(KindCommit, e.Error))
		return nil, nil
	case kafka.Error:
		if e.Code() == kafka.ErrTimedOut {
			return nil, nil
		}
		return nil, classifyNative(KindPoll, e)
	default:
		// stats, logs and other informational events are not messages
		return nil, nil
	}
}

// Commit commits the offsets the runtime tracked from prior successful
// polls, blocking until the broker acknowledges.
func (s *ConsumerSession) Commit() error {
	if s.isClosed() {
		return errSessionClosed(KindCommit)
	}
	if _, err := s.consumer.Commit(); err != nil {
		return classifyNative(KindCommit, err)
	}
	return nil
}

// CommitList commits the explicit offsets in list, blocking until the broker
// acknowledges. The list must name concrete partitions.
func (s *ConsumerSession) CommitList(list *PartitionList) error {
	if err := validatePartitionArg(list); err != nil {
		return err
	}
	if s.isClosed() {
		return errSessionClosed(KindCommit)
	}
	if _, err := s.consumer.CommitOffsets(list.toNative()); err != nil {
		return classifyNative(KindCommit, err)
	}
	return nil
}

// CommitAsync commits without blocking the caller. A nil list commits the
// runtime's tracked offsets. Failures reach the configured commit callback,
// or the log when none is set.
func (s *ConsumerSession) CommitAsync(list *PartitionList) {
	if list != nil {
		if err := validatePartitionArg(list); err != nil {
			s.deliverCommitResult(list, err)
			return
		}
	}
	if s.isClosed() {
		s.deliverCommitResult(list, errSessionClosed(KindCommit))
		return
	}

	go func() {
		var err error
		if list == nil {
			_, err = s.consumer.Commit()
		} else {
			_, err = s.consumer.CommitOffsets(list.toNative())
		}
		s.deliverCommitResult(list, classifyNative(KindCommit, err))
	}()
}

// Committed queries the committed offsets for exactly the topic/partition
// entries in list and returns a fresh list carrying them. A partition with
// no committed offset comes back with the OffsetInvalid sentinel.
func (s *ConsumerSession) Committed(list *PartitionList, timeout time.Duration) (*PartitionList, error) {
	if err := validatePartitionArg(list); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, errSessionClosed(KindQuery)
	}

	tps, err := s.consumer.Committed(list.toNative(), int(timeout.Milliseconds()))
	if err != nil {
		return nil, classifyNative(KindQuery, err)
	}
	return newPartitionListFromNative(tps)
}

// QueryWatermarkOffsets returns the low and high offset bounds currently
// available for one partition.
func (s *ConsumerSession) QueryWatermarkOffsets(topic string, partition int32, timeout time.Duration) (int64, int64, error) {
	if topic == "" {
		return 0, 0, newError(KindInvalidArgument, kafka.ErrInvalidArg, "empty topic name")
	}
	if partition < 0 {
		return 0, 0, newError(KindInvalidArgument, kafka.ErrInvalidArg, "partition must be non-negative")
	}
	if s.isClosed() {
		return 0, 0, errSessionClosed(KindQuery)
	}

	low, high, err := s.consumer.QueryWatermarkOffsets(topic, partition, int(timeout.Milliseconds()))
	if err != nil {
		return 0, 0, classifyNative(KindQuery, err)
	}
	return low, high, nil
}

// Lag aggregates per-partition consumer lag from a committed-offset list:
// the distance from each committed offset to the partition's high watermark,
// floored at zero. A partition with no committed offset reports zero lag.
func (s *ConsumerSession) Lag(committed *PartitionList) (map[string]map[int32]int64, error) {
	if err := validatePartitionArg(committed); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, errSessionClosed(KindQuery)
	}

	lags := make(map[string]map[int32]int64)
	var queryErr error
	committed.eachEntry(func(topic string, partition int32, offset int64) {
		if queryErr != nil {
			return
		}
		if lags[topic] == nil {
			lags[topic] = make(map[int32]int64)
		}
		if offset == OffsetInvalid {
			lags[topic][partition] = 0
			return
		}
		_, high, err := s.consumer.QueryWatermarkOffsets(topic, partition, int(watermarkTimeout.Milliseconds()))
		if err != nil {
			queryErr = classifyNative(KindQuery, err)
			return
		}
		lag := high - offset
		if lag < 0 {
			lag = 0
		}
		lags[topic][partition] = lag
	})
	if queryErr != nil {
		return nil, queryErr
	}
	return lags, nil
}

// Each polls in a loop and hands every decoded message to fn. Empty polls
// and partition EOF notices are skipped; any other classified failure, an
// fn error, or ctx cancellation ends the loop. Closing the session also
// ends it.
func (s *ConsumerSession) Each(ctx context.Context, fn MessageHandler) error {
	if fn == nil {
		return newError(KindInvalidArgument, kafka.ErrInvalidArg, "nil message handler")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if s.isClosed() {
			return nil
		}

		msg, err := s.Poll(s.config.PollTimeout)
		if err != nil {
			if IsPartitionEOF(err) {
				s.logger.Debug("%v", err)
				continue
			}
			return err
		}
		if msg == nil {
			continue
		}

		if err := s.handle(ctx, fn, msg); err != nil {
			return err
		}
	}
}

// handle runs fn under a consumer span when tracing is enabled
func (s *ConsumerSession) handle(ctx context.Context, fn MessageHandler, msg *Message) error {
	if s.tracer == nil {
		return fn(ctx, msg)
	}
	msgCtx, endSpan := s.tracer.StartConsumerSpan(ctx, s.config.GroupID, msg)
	err := fn(msgCtx, msg)
	endSpan(err)
	return err
}

// Close releases the native handle exactly once. Further Poll calls return
// no event; every other operation reports the session as closed.
func (s *ConsumerSession) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if err := s.consumer.Close(); err != nil {
		return classifyNative(KindUnknown, err)
	}
	return nil
}

func (s *ConsumerSession) isClosed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

// deliverCommitResult routes an asynchronous commit outcome to the
// configured callback, falling back to the log for failures.
func (s *ConsumerSession) deliverCommitResult(list *PartitionList, err error) {
	if s.config.CommitCallback != nil {
		s.config.CommitCallback(list, err)
		return
	}
	if err != nil {
		s.logger.Error("Async commit failed: %v", err)
	}
}

// validatePartitionArg rejects missing or topic-only lists before any
// native call is made.
func validatePartitionArg(list *PartitionList) error {
	if list == nil {
		return newError(KindInvalidArgument, kafka.ErrInvalidArg, "a partition list is required")
	}
	if list.hasUnassigned() {
		return newError(KindInvalidArgument, kafka.ErrInvalidArg, "entries must name concrete partitions")
	}
	return nil
}

// errSessionClosed reports an operation attempted after Close
func errSessionClosed(kind ErrorKind) error {
	return newError(kind, kafka.ErrDestroy, "session is closed")
}

// convertMessage converts a native message into the session Message type.
// Avoids the headers allocation when there are none.
func convertMessage(msg *kafka.Message) *Message {
	var headers Headers
	if len(msg.Headers) > 0 {
		headers = make(Headers, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = h.Value
		}
	}

	return &Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.TopicPartition.Partition,
		Offset:    int64(msg.TopicPartition.Offset),
		Timestamp: msg.Timestamp,
		Topic:     topicOf(msg.TopicPartition.Topic),
	}
}

func topicOf(topic *string) string {
	if topic == nil {
		return ""
	}
	return *topic
}

// applySecurity sets the shared SSL/SASL keys on a native config map
func applySecurity(configMap *kafka.ConfigMap, ssl bool, sasl *SASLConfig) {
	if ssl {
		configMap.SetKey("security.protocol", "ssl")
	}
	if sasl != nil {
		if ssl {
			configMap.SetKey("security.protocol", "sasl_ssl")
		} else {
			configMap.SetKey("security.protocol", "sasl_plaintext")
		}
		configMap.SetKey("sasl.mechanism", sasl.Mechanism)
		configMap.SetKey("sasl.username", sasl.Username)
		configMap.SetKey("sasl.password", sasl.Password)
	}
}
