package kafka

import (
	"errors"
	"fmt"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCode(t *testing.T) {
	tests := []struct {
		name string
		kind ErrorKind
		code kafka.ErrorCode
		want ErrorKind
	}{
		{"success is nil", KindPoll, kafka.ErrNoError, KindUnknown},
		{"operation kind sticks", KindSubscription, kafka.ErrUnknownTopicOrPart, KindSubscription},
		{"commit kind sticks", KindCommit, kafka.ErrRebalanceInProgress, KindCommit},
		{"partition EOF wins over kind", KindPoll, kafka.ErrPartitionEOF, KindPartitionEOF},
		{"timeout wins over kind", KindQuery, kafka.ErrTimedOut, KindTimeout},
		{"queue timeout maps to timeout", KindPoll, kafka.ErrTimedOutQueue, KindTimeout},
		{"invalid arg wins over kind", KindCommit, kafka.ErrInvalidArg, KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyCode(tt.kind, tt.code)
			if tt.code == kafka.ErrNoError {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}

func TestClassifyNative(t *testing.T) {
	native := kafka.NewError(kafka.ErrAllBrokersDown, "all brokers are down", false)

	err := classifyNative(KindPoll, native)
	require.Error(t, err)

	var classified *Error
	require.True(t, errors.As(err, &classified))
	assert.Equal(t, KindPoll, classified.Kind)
	assert.Equal(t, kafka.ErrAllBrokersDown, classified.Code)
	assert.Contains(t, classified.Error(), "all brokers are down")
}

func TestClassifyNative_NilStaysNil(t *testing.T) {
	assert.NoError(t, classifyNative(KindCommit, nil))
}

func TestClassifyNative_ForeignError(t *testing.T) {
	err := classifyNative(KindQuery, fmt.Errorf("socket exploded"))

	var classified *Error
	require.True(t, errors.As(err, &classified))
	assert.Equal(t, KindQuery, classified.Kind)
	assert.Equal(t, kafka.ErrUnknown, classified.Code)
}

func TestIsPartitionEOF(t *testing.T) {
	eof := classifyNative(KindPoll, kafka.NewError(kafka.ErrPartitionEOF, "eof", false))

	assert.True(t, IsPartitionEOF(eof))
	assert.False(t, IsTimeout(eof))
	assert.False(t, IsPartitionEOF(nil))
	assert.False(t, IsPartitionEOF(fmt.Errorf("other")))
}

func TestIsTimeout(t *testing.T) {
	timeout := newError(KindTimeout, kafka.ErrTimedOut, "local wait expired")

	assert.True(t, IsTimeout(timeout))
	assert.False(t, IsPartitionEOF(timeout))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindCommit, KindOf(newError(KindCommit, kafka.ErrNoOffset, "no offset")))
	assert.Equal(t, KindUnknown, KindOf(fmt.Errorf("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestErrorMessageFormat(t *testing.T) {
	err := newError(KindSubscription, kafka.ErrUnknownTopicOrPart, "unknown topic")

	msg := err.Error()
	assert.Contains(t, msg, "subscription failed")
	assert.Contains(t, msg, "unknown topic")
	assert.Contains(t, msg, fmt.Sprintf("%d", int(kafka.ErrUnknownTopicOrPart)))
}
