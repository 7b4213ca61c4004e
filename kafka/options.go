package kafka

import (
	"fmt"
	"strings"
	"time"
)

// ConsumerConfig holds all consumer session configuration
type ConsumerConfig struct {
	// Connection
	Brokers  []string
	GroupID  string
	ClientID string

	// SSL/SASL authentication
	SSL  bool
	SASL *SASLConfig

	// Group session
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration

	// Offset handling
	OffsetReset        OffsetReset
	AutoCommit         bool
	AutoCommitInterval time.Duration
	CommitCallback     CommitCallback

	// Polling
	PollTimeout        time.Duration // internal timeout used by Each
	EnablePartitionEOF bool

	// Debug is a comma-separated list of runtime debug categories
	Debug string

	// Tracing
	Tracing *TracingConfig

	// Logging
	LogLevel LogLevel
	Logger   Logger
}

// ProducerConfig holds all producer session configuration
type ProducerConfig struct {
	// Connection
	Brokers  []string
	ClientID string

	// SSL/SASL authentication
	SSL  bool
	SASL *SASLConfig

	// Delivery
	Acks         Acks
	Idempotent   bool
	FlushTimeout time.Duration

	// Debug is a comma-separated list of runtime debug categories
	Debug string

	// Tracing
	Tracing *TracingConfig

	// Logging
	LogLevel LogLevel
	Logger   Logger
}

// SASLConfig holds SASL authentication configuration
type SASLConfig struct {
	Mechanism string
	Username  string
	Password  string
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled       bool
	TracerName    string
	TracerVersion string
}

// ConsumerOption is a function that configures the consumer session
type ConsumerOption func(*ConsumerConfig)

// ProducerOption is a function that configures the producer session
type ProducerOption func(*ProducerConfig)

// Default values
var (
	DefaultSessionTimeout     = 30 * time.Second
	DefaultHeartbeatInterval  = 3 * time.Second
	DefaultAutoCommitInterval = 5 * time.Second
	DefaultPollTimeout        = 100 * time.Millisecond
	DefaultFlushTimeout       = 10 * time.Second
	DefaultAcks               = AcksAll
)

// debugCategories are the runtime's recognized debug contexts. An unknown
// category would otherwise only fail deep inside the native open call.
var debugCategories = map[string]struct{}{
	"generic": {}, "broker": {}, "topic": {}, "metadata": {}, "feature": {},
	"queue": {}, "msg": {}, "protocol": {}, "cgrp": {}, "security": {},
	"fetch": {}, "interceptor": {}, "plugin": {}, "consumer": {}, "admin": {},
	"eos": {}, "mock": {}, "assignor": {}, "conf": {}, "all": {},
}

func validateDebug(debug string) error {
	if debug == "" {
		return nil
	}
	for _, category := range strings.Split(debug, ",") {
		if _, ok := debugCategories[strings.TrimSpace(category)]; !ok {
			return fmt.Errorf("unknown debug category %q", category)
		}
	}
	return nil
}

func validateOffsetReset(reset OffsetReset) error {
	switch reset {
	case OffsetResetEarliest, OffsetResetLatest, OffsetResetError:
		return nil
	default:
		return fmt.Errorf("unknown offset reset policy %q", reset)
	}
}

// ==================== Consumer Options ====================

// WithBrokers sets the Kafka broker addresses
func WithBrokers(brokers ...string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

// WithGroupID sets the consumer group ID
func WithGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.GroupID = groupID
	}
}

// WithClientID sets the client ID
func WithClientID(clientID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.ClientID = clientID
	}
}

// WithSSL enables SSL
func WithSSL(enabled bool) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.SSL = enabled
	}
}

// WithSASL sets SASL authentication
func WithSASL(sasl *SASLConfig) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.SASL = sasl
	}
}

// WithSessionTimeout sets the group session timeout
func WithSessionTimeout(timeout time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.SessionTimeout = timeout
	}
}

// WithHeartbeatInterval sets the group heartbeat interval
func WithHeartbeatInterval(interval time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.HeartbeatInterval = interval
	}
}

// WithOffsetReset sets where a group without committed offsets starts reading
func WithOffsetReset(reset OffsetReset) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.OffsetReset = reset
	}
}

// WithAutoCommit toggles the runtime's periodic offset commit
func WithAutoCommit(enabled bool) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.AutoCommit = enabled
	}
}

// WithAutoCommitInterval sets the periodic commit interval
func WithAutoCommitInterval(interval time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.AutoCommitInterval = interval
	}
}

// WithCommitCallback sets the callback invoked with asynchronous commit outcomes
func WithCommitCallback(cb CommitCallback) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.CommitCallback = cb
	}
}

// WithPollTimeout sets the per-iteration poll timeout used by Each
func WithPollTimeout(timeout time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.PollTimeout = timeout
	}
}

// WithPartitionEOF makes the runtime emit an event when a partition's
// current end is reached; Poll surfaces it as a PartitionEOF error value
func WithPartitionEOF(enabled bool) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.EnablePartitionEOF = enabled
	}
}

// WithDebug sets the runtime debug categories (comma-separated)
func WithDebug(debug string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Debug = debug
	}
}

// WithTracing sets tracing configuration
func WithTracing(tracing *TracingConfig) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Tracing = tracing
	}
}

// WithLogLevel sets the log level
func WithLogLevel(level LogLevel) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.LogLevel = level
	}
}

// WithLogger sets a custom logger
func WithLogger(logger Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Logger = logger
	}
}

// ==================== Producer Options ====================

// ProducerWithBrokers sets the Kafka broker addresses
func ProducerWithBrokers(brokers ...string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Brokers = brokers
	}
}

// ProducerWithClientID sets the client ID
func ProducerWithClientID(clientID string) ProducerOption {
	return func(c *ProducerConfig) {
		c.ClientID = clientID
	}
}

// ProducerWithSSL enables SSL
func ProducerWithSSL(enabled bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.SSL = enabled
	}
}

// ProducerWithSASL sets SASL authentication
func ProducerWithSASL(sasl *SASLConfig) ProducerOption {
	return func(c *ProducerConfig) {
		c.SASL = sasl
	}
}

// WithAcks sets the delivery acknowledgment level
func WithAcks(acks Acks) ProducerOption {
	return func(c *ProducerConfig) {
		c.Acks = acks
	}
}

// WithIdempotent enables the idempotent producer
func WithIdempotent(enabled bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.Idempotent = enabled
	}
}

// WithFlushTimeout bounds the delivery drain performed by Close
func WithFlushTimeout(timeout time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.FlushTimeout = timeout
	}
}

// ProducerWithDebug sets the runtime debug categories (comma-separated)
func ProducerWithDebug(debug string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Debug = debug
	}
}

// ProducerWithTracing sets tracing configuration
func ProducerWithTracing(tracing *TracingConfig) ProducerOption {
	return func(c *ProducerConfig) {
		c.Tracing = tracing
	}
}

// ProducerWithLogLevel sets the log level
func ProducerWithLogLevel(level LogLevel) ProducerOption {
	return func(c *ProducerConfig) {
		c.LogLevel = level
	}
}

// ProducerWithLogger sets a custom logger
func ProducerWithLogger(logger Logger) ProducerOption {
	return func(c *ProducerConfig) {
		c.Logger = logger
	}
}

// ==================== Default Configs ====================

// newDefaultConsumerConfig creates a new consumer config with default values
func newDefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		SessionTimeout:     DefaultSessionTimeout,
		HeartbeatInterval:  DefaultHeartbeatInterval,
		OffsetReset:        OffsetResetLatest,
		AutoCommit:         true,
		AutoCommitInterval: DefaultAutoCommitInterval,
		PollTimeout:        DefaultPollTimeout,
		LogLevel:           LogLevelInfo,
	}
}

// newDefaultProducerConfig creates a new producer config with default values
func newDefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Acks:         DefaultAcks,
		FlushTimeout: DefaultFlushTimeout,
		LogLevel:     LogLevelInfo,
	}
}

// validate rejects invalid consumer configuration before the native open
func (c *ConsumerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers are required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("group ID is required")
	}
	if err := validateOffsetReset(c.OffsetReset); err != nil {
		return err
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll timeout must be positive")
	}
	return validateDebug(c.Debug)
}

// validate rejects invalid producer configuration before the native open
func (c *ProducerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers are required")
	}
	if c.Acks < -1 {
		return fmt.Errorf("acks must be -1, 0 or a positive replica count")
	}
	if c.FlushTimeout <= 0 {
		return fmt.Errorf("flush timeout must be positive")
	}
	return validateDebug(c.Debug)
}
