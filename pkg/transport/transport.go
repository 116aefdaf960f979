// ABOUTME: Transport interface definition
// ABOUTME: Stream, events, connection properties and backend selection
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
	"go.uber.org/zap"
)

// Connection property keys
const (
	PropTargetObject    = "target.object"
	PropMediaType       = "media.type"
	PropMediaCategory   = "media.category"
	PropMediaRole       = "media.role"
	PropNodeName        = "node.name"
	PropApplicationName = "application.name"
)

var (
	// ErrNotConnected is returned by buffer calls on a stream that is not connected
	ErrNotConnected = errors.New("transport: stream not connected")

	// ErrAlreadyConnected is returned by Connect on a connected stream
	ErrAlreadyConnected = errors.New("transport: stream already connected")

	// ErrNoFormat is returned when no request offers a usable audio/raw format
	ErrNoFormat = errors.New("transport: no usable format requested")

	// ErrDeviceNotFound is returned when the target object does not exist
	ErrDeviceNotFound = errors.New("transport: target device not found")

	// ErrDeviceStopped is reported through StateChanged when a device stops on its own
	ErrDeviceStopped = errors.New("transport: device stopped")
)

// Properties are the connection properties of a stream
type Properties map[string]string

// State is the connection state of a stream
type State int

const (
	StateUnconnected State = iota
	StateConnecting
	StateStreaming
	StateError
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Events are the callbacks a stream invokes. ParamChanged and StateChanged
// run on the control goroutine; Process runs on the realtime thread.
type Events struct {
	// ParamChanged delivers a negotiated parameter; an empty param clears it
	ParamChanged func(id uint32, param []byte)

	// Process is called when at least one buffer may be ready
	Process func()

	// StateChanged reports stream state transitions
	StateChanged func(old, state State, err error)
}

// Stream is a capture stream
type Stream interface {
	// Connect starts the stream with the given properties and format requests
	Connect(ctx context.Context, props Properties, params [][]byte) error

	// DequeueBuffer returns the next ready buffer, or nil when none is ready
	DequeueBuffer() (*Buffer, error)

	// QueueBuffer hands a dequeued buffer back to the stream
	QueueBuffer(b *Buffer) error

	// Disconnect stops the stream and releases its resources
	Disconnect() error
}

// Backends lists the backend names accepted by New
var Backends = []string{"malgo", "pulse", "portaudio", "tone"}

// New creates a stream for the named backend
func New(backend string, events Events, logger *zap.Logger) (Stream, error) {
	switch backend {
	case "malgo", "":
		return NewMalgo(events, logger), nil
	case "pulse":
		return NewPulse(events, logger), nil
	case "portaudio":
		return NewPortAudio(events, logger), nil
	case "tone":
		return NewTone(events, DefaultToneConfig(), logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (supported: %v)", backend, Backends)
	}
}

// ParseRequest scans encoded format requests for the first audio/raw request
// and returns its constraints. Requests for other media are skipped. Only
// float32 samples can be delivered.
func ParseRequest(params [][]byte) (spa.RawAudioInfo, error) {
	for _, param := range params {
		obj, err := spa.ParseObject(param)
		if err != nil {
			return spa.RawAudioInfo{}, fmt.Errorf("invalid format request: %w", err)
		}
		mt, st, err := spa.ParseMediaType(obj)
		if err != nil || mt != spa.MediaTypeAudio || st != spa.MediaSubtypeRaw {
			continue
		}
		info, err := spa.ParseRawAudio(obj)
		if err != nil {
			return spa.RawAudioInfo{}, fmt.Errorf("invalid format request: %w", err)
		}
		if info.Format != spa.AudioFormatUnknown && info.Format != spa.AudioFormatF32 {
			return spa.RawAudioInfo{}, fmt.Errorf("%w: sample format %s", ErrNoFormat, spa.AudioFormatName(info.Format))
		}
		return info, nil
	}
	return spa.RawAudioInfo{}, ErrNoFormat
}

// negotiate fills unconstrained fields of a request from the native format
// and encodes the result as a fixed Format parameter
func negotiate(request spa.RawAudioInfo, rate, channels uint32) (spa.RawAudioInfo, []byte, error) {
	chosen := spa.RawAudioInfo{
		Format:   spa.AudioFormatF32,
		Rate:     request.Rate,
		Channels: request.Channels,
	}
	if chosen.Rate == 0 {
		chosen.Rate = rate
	}
	if chosen.Channels == 0 {
		chosen.Channels = channels
	}
	blob, err := spa.BuildRawAudio(spa.ParamFormat, chosen)
	if err != nil {
		return spa.RawAudioInfo{}, nil, err
	}
	return chosen, blob, nil
}

func (e Events) paramChanged(id uint32, param []byte) {
	if e.ParamChanged != nil {
		e.ParamChanged(id, param)
	}
}

func (e Events) process() {
	if e.Process != nil {
		e.Process()
	}
}

func (e Events) stateChanged(old, state State, err error) {
	if e.StateChanged != nil {
		e.StateChanged(old, state, err)
	}
}
