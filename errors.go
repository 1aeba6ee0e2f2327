package linkuds

import (
	"errors"
	"fmt"
)

// unrecoverableError marks an error as terminal for the adapter that raised it.
// Modeled on gocan's Unrecoverable/IsRecoverable pair: a thin wrapper rather
// than a parallel error hierarchy.
type unrecoverableError struct {
	error
}

func (e unrecoverableError) Unwrap() error { return e.error }

// Unrecoverable wraps err so IsRecoverable reports false for it.
func Unrecoverable(err error) error {
	return unrecoverableError{err}
}

// IsRecoverable reports whether err (or anything it wraps) was marked
// Unrecoverable.
func IsRecoverable(err error) bool {
	var u unrecoverableError
	return !errors.As(err, &u)
}

// Sentinel errors from the taxonomy in spec.md §7. Compare with errors.Is.
var (
	ErrDisconnected         = errors.New("adapter disconnected")
	ErrInvalidCharacters    = errors.New("invalid characters in response")
	ErrMalformedService     = errors.New("no mapping for the requested operation")
	ErrNoResponse           = errors.New("no response")
	ErrTimeout              = errors.New("command timed out")
	ErrUnrecognizedCommand  = errors.New("adapter did not recognize the command")
	ErrUnsuitableAdapter    = errors.New("adapter lacks required capability")
	ErrShutdown             = errors.New("queue shut down")
	ErrMessageTooSmall      = errors.New("message payload is empty")
	ErrMessageTooBig        = errors.New("message payload exceeds maximum ISO-TP size")
	ErrCommandInFlight      = errors.New("a command is already in flight")
	ErrDroppedUnsolicited   = errors.New("dropped unsolicited bytes: no listener")
)

// BusError is a low-level physical/adapter error surfaced from the wire.
type BusError struct{ Text string }

func (e *BusError) Error() string { return "bus error: " + e.Text }

// EncoderError reports an ISO-TP (or other bus codec) framing failure while encoding.
type EncoderError struct{ Reason string }

func (e *EncoderError) Error() string { return "encoder error: " + e.Reason }

// DecoderError reports an ISO-TP (or other bus codec) framing failure while decoding.
type DecoderError struct{ Reason string }

func (e *DecoderError) Error() string { return "decoder error: " + e.Reason }

// InvalidFormatError reports a higher-layer structural violation.
type InvalidFormatError struct{ Text string }

func (e *InvalidFormatError) Error() string { return "invalid format: " + e.Text }

// UnexpectedResultError reports a type/shape mismatch in a parsed response.
type UnexpectedResultError struct{ Text string }

func (e *UnexpectedResultError) Error() string { return "unexpected result: " + e.Text }

// ProtocolViolationError reports a transceiver state-machine violation (strict mode).
type ProtocolViolationError struct{ Reason string }

func (e *ProtocolViolationError) Error() string { return "protocol violation: " + e.Reason }

// NegativeResponseError wraps a terminal (non-pending) NRC returned by the ECU.
type NegativeResponseError struct {
	SID uint8
	NRC NegativeResponseCode
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("negative response to service 0x%02X: %s", e.SID, e.NRC)
}

// Is lets callers do errors.Is(err, ErrUDSNegativeResponse) without caring about
// the specific SID/NRC pair.
func (e *NegativeResponseError) Is(target error) bool {
	return target == ErrUDSNegativeResponse
}

// ErrUDSNegativeResponse is the comparison sentinel for NegativeResponseError.
var ErrUDSNegativeResponse = errors.New("uds negative response")
