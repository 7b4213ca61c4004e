package kafka

import (
	"context"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Headers is a map of header key-value pairs
type Headers map[string][]byte

// Message represents a decoded Kafka message returned by Poll/Each
type Message struct {
	Key       []byte
	Value     []byte
	Headers   Headers
	Partition int32
	Offset    int64
	Timestamp time.Time
	Topic     string
}

// PartitionUnassigned marks a partition entry that stands for "all partitions
// of the topic" (subscription-style entries, or produce to any partition).
const PartitionUnassigned int32 = int32(kafka.PartitionAny)

// OffsetInvalid is the sentinel the broker runtime reports when a partition
// has no committed offset.
const OffsetInvalid int64 = int64(kafka.OffsetInvalid)

// PartitionOffset is one partition's entry in a PartitionList map view.
type PartitionOffset struct {
	Partition int32
	Offset    int64
}

// DeliveryReport is the terminal outcome of a successfully delivered message.
type DeliveryReport struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Acks configuration for producer acknowledgment
type Acks int

const (
	// AcksNone - No acknowledgment
	AcksNone Acks = 0
	// AcksLeader - Leader acknowledgment only
	AcksLeader Acks = 1
	// AcksAll - All replicas acknowledgment
	AcksAll Acks = -1
)

// OffsetReset controls where a new consumer group starts reading.
type OffsetReset string

const (
	// OffsetResetEarliest - start from the oldest available offset
	OffsetResetEarliest OffsetReset = "earliest"
	// OffsetResetLatest - start from the next offset produced
	OffsetResetLatest OffsetReset = "latest"
	// OffsetResetError - fail the fetch when no committed offset exists
	OffsetResetError OffsetReset = "error"
)

// LogLevel represents logging level
type LogLevel int

const (
	// LogLevelNone - No logging
	LogLevelNone LogLevel = 0
	// LogLevelError - Error level
	LogLevelError LogLevel = 1
	// LogLevelWarn - Warning level
	LogLevelWarn LogLevel = 2
	// LogLevelInfo - Info level
	LogLevelInfo LogLevel = 3
	// LogLevelDebug - Debug level
	LogLevelDebug LogLevel = 4
)

// MessageHandler handles a single polled message inside Each
type MessageHandler func(ctx context.Context, msg *Message) error

// CommitCallback receives the outcome of an asynchronous commit. The list is
// the explicit list passed to CommitAsync, or nil when the runtime's tracked
// offsets were committed.
type CommitCallback func(list *PartitionList, err error)

// Consumer is the consumer session API
type Consumer interface {
	// Subscribe subscribes the session's group member to the given topics
	Subscribe(topics ...string) error

	// Unsubscribe drops the current subscription
	Unsubscribe() error

	// Subscription returns the current subscription as topic-only entries
	Subscription() (*PartitionList, error)

	// Assignment returns the partitions currently assigned by the runtime
	Assignment() (*PartitionList, error)

	// Poll blocks up to timeout for one event; (nil, nil) means no event
	Poll(timeout time.Duration) (*Message, error)

	// Commit commits the runtime's tracked offsets, blocking on the broker
	Commit() error

	// CommitList commits the explicit offsets in list, blocking on the broker
	CommitList(list *PartitionList) error

	// CommitAsync commits without blocking; failures reach the commit callback
	CommitAsync(list *PartitionList)

	// Committed queries committed offsets for the entries in list
	Committed(list *PartitionList, timeout time.Duration) (*PartitionList, error)

	// QueryWatermarkOffsets returns the low/high offset bounds of a partition
	QueryWatermarkOffsets(topic string, partition int32, timeout time.Duration) (low, high int64, err error)

	// Lag computes per-partition consumer lag from a committed-offset list
	Lag(committed *PartitionList) (map[string]map[int32]int64, error)

	// Each polls in a loop and hands each message to fn
	Each(ctx context.Context, fn MessageHandler) error

	// Close releases the native handle; idempotent
	Close() error
}

// Producer is the producer session API
type Producer interface {
	// Produce enqueues one message and returns its delivery handle without
	// blocking on the broker round-trip
	Produce(ctx context.Context, topic string, payload, key []byte, partition int32) (*DeliveryHandle, error)

	// Flush waits up to timeout for in-flight messages to be delivered
	Flush(timeout time.Duration) error

	// Len reports the number of messages still queued in the runtime
	Len() int

	// Close flushes, fails still-pending handles and releases the native handle
	Close() error
}
