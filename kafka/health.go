package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// HealthStatus represents health check status
type HealthStatus string

const (
	// HealthStatusUp indicates the session can reach the cluster
	HealthStatusUp HealthStatus = "UP"
	// HealthStatusDown indicates the session cannot reach the cluster
	HealthStatusDown HealthStatus = "DOWN"
)

// HealthResult represents health check result
type HealthResult struct {
	Status  HealthStatus           `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Error   error                  `json:"error,omitempty"`
}

// metadataClient is the slice of the native handle health checks need
type metadataClient interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
}

// HealthChecker probes broker reachability through an already-open session
// handle, without creating extra connections.
type HealthChecker struct {
	client  metadataClient
	timeout time.Duration
}

// NewConsumerHealthChecker creates a health checker over a consumer session
func NewConsumerHealthChecker(session *ConsumerSession) *HealthChecker {
	return &HealthChecker{
		client:  session.consumer,
		timeout: 10 * time.Second,
	}
}

// NewProducerHealthChecker creates a health checker over a producer session
func NewProducerHealthChecker(session *ProducerSession) *HealthChecker {
	return &HealthChecker{
		client:  session.producer,
		timeout: 10 * time.Second,
	}
}

// SetTimeout sets the health check timeout
func (h *HealthChecker) SetTimeout(timeout time.Duration) {
	h.timeout = timeout
}

// Check verifies cluster reachability via a metadata round-trip
func (h *HealthChecker) Check(ctx context.Context) *HealthResult {
	select {
	case <-ctx.Done():
		return healthDown(ctx.Err())
	default:
	}

	metadata, err := h.client.GetMetadata(nil, true, h.timeoutMs(ctx))
	if err != nil {
		return healthDown(err)
	}

	if len(metadata.Brokers) == 0 {
		return healthDown(fmt.Errorf("no brokers available"))
	}

	return &HealthResult{
		Status: HealthStatusUp,
		Details: map[string]interface{}{
			"brokers":       len(metadata.Brokers),
			"topics":        len(metadata.Topics),
			"originatingId": metadata.OriginatingBroker.ID,
		},
	}
}

// CheckTopic verifies one topic exists and reports no partition errors
func (h *HealthChecker) CheckTopic(ctx context.Context, topic string) *HealthResult {
	select {
	case <-ctx.Done():
		return healthDown(ctx.Err())
	default:
	}

	metadata, err := h.client.GetMetadata(&topic, false, h.timeoutMs(ctx))
	if err != nil {
		return healthDown(err)
	}

	topicMeta, ok := metadata.Topics[topic]
	if !ok {
		return healthDown(fmt.Errorf("topic not found: %s", topic))
	}

	if topicMeta.Error.Code() != kafka.ErrNoError {
		return healthDown(topicMeta.Error)
	}

	return &HealthResult{
		Status: HealthStatusUp,
		Details: map[string]interface{}{
			"topic":          topic,
			"partitionCount": len(topicMeta.Partitions),
		},
	}
}

// timeoutMs converts the configured timeout, honoring a sooner ctx deadline
func (h *HealthChecker) timeoutMs(ctx context.Context) int {
	timeout := h.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < timeout {
			timeout = remaining
		}
	}
	return int(timeout.Milliseconds())
}

func healthDown(err error) *HealthResult {
	return &HealthResult{
		Status: HealthStatusDown,
		Error:  err,
		Details: map[string]interface{}{
			"error": err.Error(),
		},
	}
}
