package kafka

import (
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// DeliveryHandle is a single-assignment future for one produced message.
// It starts Pending and is resolved exactly once by the producer session's
// event drain when the runtime reports the final outcome. Any number of
// goroutines may Wait on the same handle; all observe the same terminal
// value.
type DeliveryHandle struct {
	token string

	once sync.Once
	done chan struct{}

	// set before done is closed, read-only afterwards
	report    DeliveryReport
	err       error
	onResolve func(error)
}

func newDeliveryHandle(token string, onResolve func(error)) *DeliveryHandle {
	return &DeliveryHandle{
		token:     token,
		done:      make(chan struct{}),
		onResolve: onResolve,
	}
}

// Token returns the handle's correlation token
func (h *DeliveryHandle) Token() string {
	return h.token
}

// resolve records the terminal state. Only the first call takes effect;
// later completions for the same token are no-ops.
func (h *DeliveryHandle) resolve(report DeliveryReport, err error) {
	h.once.Do(func() {
		h.report = report
		h.err = err
		close(h.done)
		if h.onResolve != nil {
			h.onResolve(err)
		}
	})
}

// Wait blocks until the handle is resolved or timeout elapses. On timeout it
// returns a KindTimeout error without touching the handle; a later completion
// can still resolve it and subsequent Wait calls observe that outcome. On a
// resolved handle Wait returns immediately with the recorded value, the same
// one on every call.
func (h *DeliveryHandle) Wait(timeout time.Duration) (DeliveryReport, error) {
	select {
	case <-h.done:
		return h.report, h.err
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.report, h.err
	case <-timer.C:
		return DeliveryReport{}, newError(KindTimeout, kafka.ErrTimedOut, "delivery report not received in time")
	}
}

// Done returns a channel closed when the handle resolves, for callers that
// want to select against their own cancellation.
func (h *DeliveryHandle) Done() <-chan struct{} {
	return h.done
}

// resolved reports whether the handle already carries a terminal value
func (h *DeliveryHandle) resolved() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
