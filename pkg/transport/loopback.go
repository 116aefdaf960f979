// ABOUTME: In-memory capture stream
// ABOUTME: Negotiates like a real graph and lets callers inject buffers directly
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
	"go.uber.org/zap"
)

// ErrOverrun is returned by Inject when every buffer is in use
var ErrOverrun = errors.New("transport: no free buffer")

// LoopbackConfig describes the graph side of a loopback stream
type LoopbackConfig struct {
	// Native is the format picked for unconstrained requests
	Native spa.RawAudioInfo

	// Buffers is the number of pool buffers (default DefaultBufferCount)
	Buffers int

	// BufferSize is the byte size of each buffer (default 64 KiB)
	BufferSize int
}

// Loopback is a Stream whose buffers are injected by the caller. Process is
// only invoked through Process, so callers control the realtime cadence.
// The buffer path reads only atomics; mu guards control-side state.
type Loopback struct {
	poolStream

	config LoopbackConfig
	events Events
	logger *zap.Logger

	stride   atomic.Uint32
	queueErr atomic.Pointer[error]

	mu         sync.Mutex
	connected  bool
	props      Properties
	negotiated spa.RawAudioInfo
}

// NewLoopback creates an unconnected loopback stream
func NewLoopback(events Events, config LoopbackConfig, logger *zap.Logger) *Loopback {
	if config.Buffers == 0 {
		config.Buffers = DefaultBufferCount
	}
	if config.BufferSize == 0 {
		config.BufferSize = 64 * 1024
	}
	if config.Native.Rate == 0 {
		config.Native.Rate = 48000
	}
	if config.Native.Channels == 0 {
		config.Native.Channels = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loopback{config: config, events: events, logger: logger}
}

// Connect negotiates a format against the native one and announces it
func (l *Loopback) Connect(ctx context.Context, props Properties, params [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	connected := l.connected
	l.mu.Unlock()
	if connected {
		return ErrAlreadyConnected
	}
	l.events.stateChanged(StateUnconnected, StateConnecting, nil)

	request, err := ParseRequest(params)
	if err != nil {
		l.events.stateChanged(StateConnecting, StateError, err)
		return err
	}
	chosen, blob, err := negotiate(request, l.config.Native.Rate, l.config.Native.Channels)
	if err != nil {
		return fmt.Errorf("failed to encode format: %w", err)
	}

	l.stride.Store(chosen.Channels * 4)
	l.mu.Lock()
	l.pool.Store(NewPool(l.config.Buffers, l.config.BufferSize))
	l.connected = true
	l.props = props
	l.negotiated = chosen
	l.mu.Unlock()

	l.logger.Debug("loopback connected",
		zap.String("target", props[PropTargetObject]),
		zap.Uint32("rate", chosen.Rate),
		zap.Uint32("channels", chosen.Channels))

	l.events.paramChanged(spa.ParamFormat, blob)
	l.events.stateChanged(StateConnecting, StateStreaming, nil)
	return nil
}

// Announce delivers a parameter blob as if the graph had changed it
func (l *Loopback) Announce(id uint32, param []byte) {
	l.events.paramChanged(id, param)
}

// Inject writes interleaved samples into one buffer and marks it ready
func (l *Loopback) Inject(samples []float32) error {
	p := l.pool.Load()
	if p == nil {
		return ErrNotConnected
	}
	if !p.WriteFloat32(samples, l.stride.Load()) {
		return ErrOverrun
	}
	return nil
}

// InjectBytes writes raw bytes into one buffer without frame alignment
func (l *Loopback) InjectBytes(data []byte) error {
	p := l.pool.Load()
	if p == nil {
		return ErrNotConnected
	}
	if !p.Write(data, 0) {
		return ErrOverrun
	}
	return nil
}

// Process runs one realtime cycle
func (l *Loopback) Process() {
	l.events.process()
}

// QueueBuffer hands a buffer back, or fails with the error set by FailQueue
func (l *Loopback) QueueBuffer(b *Buffer) error {
	if err := l.queueErr.Load(); err != nil {
		// The buffer is still reclaimed so the pool does not leak.
		if p := l.pool.Load(); p != nil {
			_ = p.Queue(b)
		}
		return *err
	}
	return l.poolStream.QueueBuffer(b)
}

// FailQueue makes subsequent QueueBuffer calls report err (nil restores)
func (l *Loopback) FailQueue(err error) {
	if err == nil {
		l.queueErr.Store(nil)
		return
	}
	l.queueErr.Store(&err)
}

// Negotiated returns the format chosen at Connect
func (l *Loopback) Negotiated() spa.RawAudioInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.negotiated
}

// Props returns the connection properties
func (l *Loopback) Props() Properties {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.props
}

// Disconnect clears the format and drops the pool
func (l *Loopback) Disconnect() error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return nil
	}
	l.connected = false
	l.mu.Unlock()

	if p := l.pool.Load(); p != nil {
		p.Flush()
	}
	l.events.paramChanged(spa.ParamFormat, nil)
	l.events.stateChanged(StateStreaming, StateUnconnected, nil)
	return nil
}
