package kafka

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryHandle_WaitAfterResolve(t *testing.T) {
	h := newDeliveryHandle("token-1", nil)
	h.resolve(DeliveryReport{Topic: "events", Partition: 2, Offset: 41}, nil)

	report, err := h.Wait(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, DeliveryReport{Topic: "events", Partition: 2, Offset: 41}, report)

	// a second read observes the identical terminal value
	again, err := h.Wait(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, report, again)
}

func TestDeliveryHandle_ResolvesExactlyOnce(t *testing.T) {
	h := newDeliveryHandle("token-1", nil)
	h.resolve(DeliveryReport{Partition: 0, Offset: 1}, nil)
	h.resolve(DeliveryReport{Partition: 9, Offset: 9}, nil)

	report, err := h.Wait(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Offset)
}

func TestDeliveryHandle_WaitTimeout(t *testing.T) {
	h := newDeliveryHandle("token-1", nil)

	_, err := h.Wait(10 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	// timeout does not consume the handle; a later completion still lands
	h.resolve(DeliveryReport{Partition: 1, Offset: 7}, nil)
	report, err := h.Wait(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(7), report.Offset)
}

func TestDeliveryHandle_ConcurrentWaiters(t *testing.T) {
	h := newDeliveryHandle("token-1", nil)

	const waiters = 8
	results := make([]DeliveryReport, waiters)
	errs := make([]error, waiters)

	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.Wait(time.Second)
		}(i)
	}

	h.resolve(DeliveryReport{Topic: "events", Partition: 3, Offset: 12}, nil)
	wg.Wait()

	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, DeliveryReport{Topic: "events", Partition: 3, Offset: 12}, results[i])
	}
}

func TestDeliveryHandle_FailedDelivery(t *testing.T) {
	h := newDeliveryHandle("token-1", nil)
	h.resolve(DeliveryReport{}, newError(KindUnknown, 7, "delivery failed"))

	_, err := h.Wait(time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, KindUnknown, KindOf(err))
}

func TestDeliveryHandle_OnResolveCallback(t *testing.T) {
	var got error
	h := newDeliveryHandle("token-1", func(err error) { got = err })

	failure := newError(KindUnknown, 7, "delivery failed")
	h.resolve(DeliveryReport{}, failure)
	h.resolve(DeliveryReport{}, nil) // ignored

	assert.Equal(t, failure, got)
}

func TestDeliveryHandle_Done(t *testing.T) {
	h := newDeliveryHandle("token-1", nil)

	select {
	case <-h.Done():
		t.Fatal("pending handle must not be done")
	default:
	}

	h.resolve(DeliveryReport{}, nil)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("resolved handle must be done")
	}
	assert.True(t, h.resolved())
}
