// ABOUTME: Capture session lifecycle
// ABOUTME: Connects a transport stream and routes its events to negotiation and the pump
package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-capture/pkg/audio"
	"github.com/Resonate-Protocol/resonate-capture/pkg/meter"
	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
	"github.com/Resonate-Protocol/resonate-capture/pkg/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the session lifecycle state
type State int32

const (
	StateUnconnected State = iota
	StateNegotiating
	StateStreaming
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateNegotiating:
		return "negotiating"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds session configuration
type Config struct {
	// Target is forwarded as the target.object property; empty autoconnects
	Target string

	// Name is used as the application and node name
	Name string

	// Constraints pin the requested rate and channel count
	Constraints Constraints
}

// Stats are the session counters
type Stats struct {
	PumpStats
	FormatChanges uint64
	Rejected      uint64
}

const errorBufferSize = 8

// Session is one capture stream from connect to close
type Session struct {
	id     string
	config Config
	logger *zap.Logger

	negotiator *Negotiator
	pump       *Pump
	levels     meter.Levels

	state atomic.Int32
	errs  chan error

	formatChanges atomic.Uint64
	rejected      atomic.Uint64

	mu     sync.Mutex
	stream transport.Stream
}

// NewSession creates an unconnected session
func NewSession(config Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = "resonate-capture"
	}

	id := uuid.New().String()
	logger = logger.With(zap.String("session", id))

	s := &Session{
		id:         id,
		config:     config,
		logger:     logger,
		negotiator: NewNegotiator(logger.Named("negotiator")),
		errs:       make(chan error, errorBufferSize),
	}
	s.pump = NewPump(s.negotiator.Format, &s.levels, s.report, logger.Named("pump"))
	return s
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Events returns the callbacks to create the transport stream with
func (s *Session) Events() transport.Events {
	return transport.Events{
		ParamChanged: s.onParamChanged,
		Process:      s.onProcess,
		StateChanged: s.onStateChanged,
	}
}

// Connect requests a capture format and starts the stream. The stream must
// have been created with the callbacks from Events.
func (s *Session) Connect(ctx context.Context, stream transport.Stream) error {
	if !s.state.CompareAndSwap(int32(StateUnconnected), int32(StateNegotiating)) {
		return ErrInvalidState
	}

	request, err := s.negotiator.BuildEnumerationRequest(s.config.Constraints)
	if err != nil {
		s.state.Store(int32(StateUnconnected))
		return err
	}

	props := transport.Properties{
		transport.PropMediaType:       "Audio",
		transport.PropMediaCategory:   "Capture",
		transport.PropMediaRole:       "Music",
		transport.PropApplicationName: s.config.Name,
		transport.PropNodeName:        s.config.Name,
	}
	if s.config.Target != "" {
		props[transport.PropTargetObject] = s.config.Target
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
	s.pump.Attach(stream)

	s.logger.Info("connecting",
		zap.String("target", s.config.Target),
		zap.Uint32("rate", s.config.Constraints.Rate),
		zap.Uint32("channels", s.config.Constraints.Channels))

	if err := stream.Connect(ctx, props, [][]byte{request}); err != nil {
		s.pump.Attach(nil)
		s.mu.Lock()
		s.stream = nil
		s.mu.Unlock()
		s.state.CompareAndSwap(int32(StateNegotiating), int32(StateUnconnected))
		s.state.CompareAndSwap(int32(StateStreaming), int32(StateUnconnected))
		return &TransportError{Op: OpConnect, Err: err}
	}
	return nil
}

// Close disconnects the stream. Closing twice is a no-op.
func (s *Session) Close() error {
	prev := State(s.state.Swap(int32(StateStopped)))
	if prev == StateStopped {
		return nil
	}

	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return nil
	}

	err := stream.Disconnect()
	s.pump.Attach(nil)
	// The transport's own clearing notification is dropped once stopped.
	s.negotiator.OnFormatChanged(spa.ParamFormat, nil)
	s.levels.Reset()
	s.logger.Info("capture stopped", zap.String("from", prev.String()))
	if err != nil {
		return &TransportError{Op: OpDisconnect, Err: err}
	}
	return nil
}

// State returns the current session state
func (s *Session) State() State {
	return State(s.state.Load())
}

// Format returns the negotiated format, or ErrFormatUnset
func (s *Session) Format() (audio.Format, error) {
	f := s.negotiator.Format()
	if f == nil {
		return audio.Format{}, ErrFormatUnset
	}
	return *f, nil
}

// Levels returns the latest per-channel peaks
func (s *Session) Levels() meter.Reading {
	return s.levels.Snapshot()
}

// Stats returns the session counters
func (s *Session) Stats() Stats {
	return Stats{
		PumpStats:     s.pump.Stats(),
		FormatChanges: s.formatChanges.Load(),
		Rejected:      s.rejected.Load(),
	}
}

// Errors delivers transport failures. Errors are dropped while the channel
// is full.
func (s *Session) Errors() <-chan error {
	return s.errs
}

func (s *Session) onParamChanged(id uint32, param []byte) {
	if s.State() == StateStopped {
		return
	}

	prev := s.negotiator.Format()
	switch s.negotiator.OnFormatChanged(id, param) {
	case OutcomeAccepted:
		if s.negotiator.Format() != prev {
			s.formatChanges.Add(1)
		}
		s.state.CompareAndSwap(int32(StateNegotiating), int32(StateStreaming))
	case OutcomeCleared:
		s.levels.Reset()
		s.state.CompareAndSwap(int32(StateStreaming), int32(StateNegotiating))
	case OutcomeRejected, OutcomeMalformed:
		s.rejected.Add(1)
	}
}

func (s *Session) onProcess() {
	switch s.State() {
	case StateNegotiating, StateStreaming:
		s.pump.OnProcess()
	}
}

func (s *Session) onStateChanged(old, state transport.State, err error) {
	s.logger.Debug("stream state changed",
		zap.String("from", old.String()),
		zap.String("to", state.String()))
	if state == transport.StateError && err != nil {
		s.logger.Error("stream failed", zap.Error(err))
		s.report(&TransportError{Op: OpStream, Err: err})
	}
}

func (s *Session) report(err error) {
	select {
	case s.errs <- err:
	default:
	}
}
