// ABOUTME: Capture error types
// ABOUTME: Typed transport failures and sentinel errors
package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedBuffer is returned when a buffer does not hold whole frames
	ErrMalformedBuffer = errors.New("capture: malformed buffer")

	// ErrFormatUnset is returned when buffers arrive before a format is negotiated
	ErrFormatUnset = errors.New("capture: format not negotiated")

	// ErrInvalidState is returned when an operation is not allowed in the session state
	ErrInvalidState = errors.New("capture: invalid session state")
)

// Buffer rejections are built once so the realtime path does not allocate.
var (
	errZeroChannels      = fmt.Errorf("%w: zero channels", ErrMalformedBuffer)
	errUnsupportedFormat = fmt.Errorf("%w: unsupported sample format", ErrMalformedBuffer)
	errPartialSample     = fmt.Errorf("%w: size is not a multiple of the sample width", ErrMalformedBuffer)
	errPartialFrame      = fmt.Errorf("%w: samples do not divide into channels", ErrMalformedBuffer)
)

// Op names a transport call
type Op string

const (
	OpConnect    Op = "connect"
	OpDequeue    Op = "dequeue"
	OpQueue      Op = "queue"
	OpDisconnect Op = "disconnect"
	OpStream     Op = "stream"
)

// TransportError reports a failed transport call. The session keeps running;
// its owner decides whether to tear it down.
type TransportError struct {
	Op  Op
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
