package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerSession_ProduceValidation(t *testing.T) {
	fake := newFakeProducer()
	s := testProducerSession(fake)
	defer s.Close()

	_, err := s.Produce(context.Background(), "", []byte("v"), nil, PartitionUnassigned)
	assert.Equal(t, KindInvalidArgument, KindOf(err))

	_, err = s.Produce(context.Background(), "events", []byte("v"), nil, -5)
	assert.Equal(t, KindInvalidArgument, KindOf(err))

	// nothing crossed the native boundary
	assert.Nil(t, fake.lastProduced())
}

func TestProducerSession_ProduceReturnsPendingHandle(t *testing.T) {
	fake := newFakeProducer()
	s := testProducerSession(fake)
	defer s.Close()

	handle, err := s.Produce(context.Background(), "events", []byte("v"), []byte("k"), 0)
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.False(t, handle.resolved())

	msg := fake.lastProduced()
	require.NotNil(t, msg)
	assert.Equal(t, "events", *msg.TopicPartition.Topic)
	assert.Equal(t, int32(0), msg.TopicPartition.Partition)
	assert.Equal(t, []byte("v"), msg.Value)
	assert.Equal(t, []byte("k"), msg.Key)
	assert.Equal(t, handle.Token(), msg.Opaque)
}

func TestProducerSession_DeliveryResolvesHandle(t *testing.T) {
	fake := newFakeProducer()
	s := testProducerSession(fake)
	defer s.Close()

	handle, err := s.Produce(context.Background(), "events", []byte("v"), nil, PartitionUnassigned)
	require.NoError(t, err)

	produced := fake.lastProduced()
	topic := "events"
	fake.deliver(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 2, Offset: 41},
		Opaque:         produced.Opaque,
	})

	report, err := handle.Wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, DeliveryReport{Topic: "events", Partition: 2, Offset: 41}, report)

	// repeated waits observe the same terminal value
	again, err := handle.Wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, report, again)
}

func TestProducerSession_DeliveryFailureResolvesHandle(t *testing.T) {
	fake := newFakeProducer()
	s := testProducerSession(fake)
	defer s.Close()

	handle, err := s.Produce(context.Background(), "events", []byte("v"), nil, PartitionUnassigned)
	require.NoError(t, err)

	topic := "events"
	fake.deliver(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: 0,
			Error:     kafka.NewError(kafka.ErrMsgSizeTooLarge, "message too large", false),
		},
		Opaque: fake.lastProduced().Opaque,
	})

	_, err = handle.Wait(time.Second)
	require.Error(t, err)

	var classified *Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, kafka.ErrMsgSizeTooLarge, classified.Code)
}

func TestProducerSession_WaitTimeoutLeavesHandlePending(t *testing.T) {
	fake := newFakeProducer()
	s := testProducerSession(fake)
	defer s.Close()

	handle, err := s.Produce(context.Background(), "events", []byte("v"), nil, PartitionUnassigned)
	require.NoError(t, err)

	_, err = handle.Wait(10 * time.Millisecond)
	assert.True(t, IsTimeout(err))

	// a late delivery still lands after the timed-out wait
	topic := "events"
	fake.deliver(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: 7},
		Opaque:         fake.lastProduced().Opaque,
	})

	report, err := handle.Wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(7), report.Offset)
}

func TestProducerSession_UnknownTokenDropped(t *testing.T) {
	fake := newFakeProducer()
	s := testProducerSession(fake)

	topic := "events"
	fake.deliver(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: 1},
		Opaque:         "no-such-token",
	})
	fake.deliver(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: 2},
		Opaque:         nil,
	})

	// the drain must survive both and still shut down cleanly
	require.NoError(t, s.Close())
}

func TestProducerSession_ProduceEnqueueFailure(t *testing.T) {
	fake := newFakeProducer()
	fake.produceErr = kafka.NewError(kafka.ErrQueueFull, "queue full", false)
	s := testProducerSession(fake)
	defer s.Close()

	handle, err := s.Produce(context.Background(), "events", []byte("v"), nil, PartitionUnassigned)
	assert.Nil(t, handle)
	require.Error(t, err)

	var classified *Error
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, kafka.ErrQueueFull, classified.Code)
}

func TestProducerSession_CloseFailsPendingHandles(t *testing.T) {
	fake := newFakeProducer()
	fake.queued = 1
	s := testProducerSession(fake, WithFlushTimeout(50*time.Millisecond))

	handle, err := s.Produce(context.Background(), "events", []byte("v"), nil, PartitionUnassigned)
	require.NoError(t, err)

	require.NoError(t, s.Close())

	// shutdown leaves no handle without a terminal state
	_, err = handle.Wait(time.Millisecond)
	assert.True(t, IsTimeout(err))
}

func TestProducerSession_CloseIdempotent(t *testing.T) {
	fake := newFakeProducer()
	s := testProducerSession(fake)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestProducerSession_ProduceAfterClose(t *testing.T) {
	fake := newFakeProducer()
	s := testProducerSession(fake)
	require.NoError(t, s.Close())

	handle, err := s.Produce(context.Background(), "events", []byte("v"), nil, PartitionUnassigned)
	assert.Nil(t, handle)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestProducerSession_Flush(t *testing.T) {
	fake := newFakeProducer()
	s := testProducerSession(fake)
	defer s.Close()

	assert.NoError(t, s.Flush(time.Second))

	fake.mu.Lock()
	fake.queued = 3
	fake.mu.Unlock()

	err := s.Flush(time.Second)
	assert.True(t, IsTimeout(err))
}

func TestProducerConfig_Validate(t *testing.T) {
	base := func() *ProducerConfig {
		c := newDefaultProducerConfig()
		c.Brokers = []string{"localhost:9092"}
		return c
	}

	assert.NoError(t, base().validate())

	c := base()
	c.Brokers = nil
	assert.Error(t, c.validate())

	c = base()
	c.Acks = -2
	assert.Error(t, c.validate())

	c = base()
	c.Debug = "everything"
	assert.Error(t, c.validate())

	c = base()
	c.FlushTimeout = 0
	assert.Error(t, c.validate())
}

func TestNewProducerSession_RejectsBadConfig(t *testing.T) {
	s, err := NewProducerSession()
	assert.Nil(t, s)
	assert.Error(t, err)
}
