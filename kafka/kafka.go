// Package kafka provides a client-side session layer for Kafka built on top
// of confluent-kafka-go: consumer group membership, partition assignment and
// offset tracking, message polling, and asynchronous producer delivery
// acknowledgment.
//
// Features:
//   - ConsumerSession with subscribe, blocking poll, commit (sync and async),
//     committed-offset and watermark queries, and derived lag computation
//   - PartitionList abstraction shared by every partition-scoped call
//   - ProducerSession whose Produce() returns a DeliveryHandle future,
//     resolved by the runtime's delivery report without blocking the caller
//   - Typed error classification of native status codes, with a dedicated
//     predicate for the recoverable partition-EOF signal
//   - OpenTelemetry distributed tracing
//   - Graceful shutdown that drains or times out outstanding deliveries
//
// Quick Start:
//
//	// Create a consumer session
//	consumer, err := kafka.NewConsumerSession(
//	    kafka.WithBrokers("localhost:9092"),
//	    kafka.WithGroupID("my-group"),
//	)
//
//	// Consume
//	err = consumer.Subscribe("topic")
//	err = consumer.Each(ctx, func(ctx context.Context, msg *kafka.Message) error {
//	    // Process message
//	    return nil
//	})
//
//	// Create a producer session
//	producer, err := kafka.NewProducerSession(
//	    kafka.ProducerWithBrokers("localhost:9092"),
//	)
//
//	// Produce and wait for the delivery report
//	handle, err := producer.Produce(ctx, "topic", []byte("value"), []byte("key"), kafka.PartitionUnassigned)
//	report, err := handle.Wait(5 * time.Second)
package kafka

// Version of the library
const Version = "1.0.0"
