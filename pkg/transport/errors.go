package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument indicates the request is rejected before any bus
	// activity, e.g. the frame is too large or the register is out of range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRetryAdvised indicates the sync acknowledgment doesn't match.
	// The peripheral is likely not ready (e.g. booting) and the same
	// operation should be issued again after a short delay.
	ErrRetryAdvised = errors.New("sync ack mismatch, retry advised")
)

// TransportError wraps the error reported by the bus.
type TransportError struct {
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

// Unwrap returns the bus error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ackError is returned when the ack mismatches. It matches ErrRetryAdvised
// and carries the bus error happened in the same exchange, if any.
type ackError struct {
	ack   byte
	cause error
}

func (e *ackError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%v: got 0x%02x (bus: %v)", ErrRetryAdvised, e.ack, e.cause)
	}
	return fmt.Sprintf("%v: got 0x%02x", ErrRetryAdvised, e.ack)
}

func (e *ackError) Is(target error) bool {
	return target == ErrRetryAdvised
}

func (e *ackError) Unwrap() error {
	return e.cause
}

// Status is the classified result of a register operation.
type Status int

const (
	// StatusSuccess means the peripheral acknowledged all phases.
	StatusSuccess Status = iota
	// StatusRetryAdvised means the ack mismatched.
	StatusRetryAdvised
	// StatusTransportError means the bus failed.
	StatusTransportError
	// StatusInvalidArgument means the request was rejected.
	StatusInvalidArgument
)

var statusNames = [...]string{
	StatusSuccess:         "success",
	StatusRetryAdvised:    "retry_advised",
	StatusTransportError:  "transport_error",
	StatusInvalidArgument: "invalid_argument",
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// StatusOf classifies an error returned by this package.
// Unknown errors are considered transport errors.
func StatusOf(err error) Status {
	var te *TransportError
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrInvalidArgument):
		return StatusInvalidArgument
	case errors.Is(err, ErrRetryAdvised):
		return StatusRetryAdvised
	case errors.As(err, &te):
		return StatusTransportError
	}
	return StatusTransportError
}

// IsRetryAdvised indicates the operation should be retried.
func IsRetryAdvised(err error) bool {
	return errors.Is(err, ErrRetryAdvised)
}
