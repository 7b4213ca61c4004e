package kafka

import (
	"errors"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ErrorKind is the classified outcome of a failed session operation.
type ErrorKind int

const (
	// KindUnknown - native code with no entry in the classification table
	KindUnknown ErrorKind = iota
	// KindInvalidArgument - caller misuse, detected before any native call
	KindInvalidArgument
	// KindSubscription - subscribe call rejected by the runtime
	KindSubscription
	// KindUnsubscription - unsubscribe call rejected by the runtime
	KindUnsubscription
	// KindCommit - offset commit rejected by the broker or runtime
	KindCommit
	// KindQuery - committed-offset, watermark or metadata query failed
	KindQuery
	// KindPoll - event poll failed
	KindPoll
	// KindPartitionEOF - reached the current end of a partition; informational
	KindPartitionEOF
	// KindTimeout - a local wait expired, not a broker failure
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindSubscription:
		return "subscription failed"
	case KindUnsubscription:
		return "unsubscription failed"
	case KindCommit:
		return "commit failed"
	case KindQuery:
		return "query failed"
	case KindPoll:
		return "poll failed"
	case KindPartitionEOF:
		return "partition EOF"
	case KindTimeout:
		return "timed out"
	default:
		return "unknown"
	}
}

// Error is a classified session error. It carries the native status code so
// callers never have to inspect raw runtime errors, together with the
// runtime's human-readable message for that code.
type Error struct {
	Kind    ErrorKind
	Code    kafka.ErrorCode
	message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Kind, e.message, int(e.Code))
}

// IsPartitionEOF reports whether the error is the recoverable end-of-partition
// signal. Iterating callers keep polling on it instead of aborting.
func (e *Error) IsPartitionEOF() bool {
	return e.Kind == KindPartitionEOF
}

// IsTimeout reports whether the error is a local wait expiry
func (e *Error) IsTimeout() bool {
	return e.Kind == KindTimeout
}

// newError builds a classified error from explicit parts
func newError(kind ErrorKind, code kafka.ErrorCode, message string) *Error {
	return &Error{Kind: kind, Code: code, message: message}
}

// classifyCode maps a native status code to an error under the given
// operation kind. End-of-partition and timeout codes win over the operation
// kind because they describe the condition, not the call that hit it.
// Classification is a pure function of the code and is safe from any
// goroutine.
func classifyCode(kind ErrorKind, code kafka.ErrorCode) *Error {
	switch code {
	case kafka.ErrNoError:
		return nil
	case kafka.ErrPartitionEOF:
		kind = KindPartitionEOF
	case kafka.ErrTimedOut, kafka.ErrTimedOutQueue:
		kind = KindTimeout
	case kafka.ErrInvalidArg:
		kind = KindInvalidArgument
	}
	return newError(kind, code, code.String())
}

// classifyNative wraps a native error under the given operation kind,
// pulling out the runtime status code and its message. A nil error stays nil.
func classifyNative(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	var kafkaErr kafka.Error
	if errors.As(err, &kafkaErr) {
		classified := classifyCode(kind, kafkaErr.Code())
		if classified == nil {
			return nil
		}
		classified.message = kafkaErr.String()
		return classified
	}
	return newError(kind, kafka.ErrUnknown, err.Error())
}

// IsPartitionEOF reports whether err is the recoverable end-of-partition
// signal, without callers matching the whole taxonomy.
func IsPartitionEOF(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsPartitionEOF()
}

// IsTimeout reports whether err is a local wait expiry
func IsTimeout(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.IsTimeout()
}

// KindOf returns the classified kind of err, or KindUnknown for foreign errors
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
