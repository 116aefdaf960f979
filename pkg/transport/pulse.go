// ABOUTME: PulseAudio capture stream
// ABOUTME: Pure-Go record stream via jfreymuth/pulse
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
	"github.com/jfreymuth/pulse"
	"go.uber.org/zap"
)

// Pulse captures from a PulseAudio (or pipewire-pulse) source
type Pulse struct {
	poolStream

	events Events
	logger *zap.Logger

	mu     sync.Mutex
	client *pulse.Client
	stream *pulse.RecordStream
	stride uint32
}

// NewPulse creates an unconnected PulseAudio stream
func NewPulse(events Events, logger *zap.Logger) Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pulse{events: events, logger: logger.Named("pulse")}
}

// Connect opens a record stream on the target source, or the default source
func (p *Pulse) Connect(ctx context.Context, props Properties, params [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return ErrAlreadyConnected
	}

	request, err := ParseRequest(params)
	if err != nil {
		return err
	}

	p.events.stateChanged(StateUnconnected, StateConnecting, nil)

	appName := props[PropApplicationName]
	if appName == "" {
		appName = "resonate-capture"
	}
	client, err := pulse.NewClient(pulse.ClientApplicationName(appName))
	if err != nil {
		p.events.stateChanged(StateConnecting, StateError, err)
		return fmt.Errorf("failed to connect to pulse server: %w", err)
	}

	var source *pulse.Source
	if target := props[PropTargetObject]; target != "" {
		source, err = client.SourceByID(target)
		if err != nil {
			client.Close()
			err = fmt.Errorf("%w: %q: %v", ErrDeviceNotFound, target, err)
			p.events.stateChanged(StateConnecting, StateError, err)
			return err
		}
	} else {
		source, err = client.DefaultSource()
		if err != nil {
			client.Close()
			p.events.stateChanged(StateConnecting, StateError, err)
			return fmt.Errorf("failed to look up default source: %w", err)
		}
	}

	opts := []pulse.RecordOption{
		pulse.RecordSource(source),
		pulse.RecordMediaName(appName),
	}
	rate := request.Rate
	if rate == 0 {
		rate = uint32(source.SampleRate())
	}
	opts = append(opts, pulse.RecordSampleRate(int(rate)))
	channels := request.Channels
	switch channels {
	case 0:
		channels = uint32(len(source.Channels()))
		opts = append(opts, pulse.RecordChannels(source.Channels()))
	case 1:
		opts = append(opts, pulse.RecordMono)
	case 2:
		opts = append(opts, pulse.RecordStereo)
	default:
		client.Close()
		return fmt.Errorf("%w: %d channels", ErrNoFormat, request.Channels)
	}
	// Fragments no larger than a pool buffer arrive as one buffer each.
	opts = append(opts, pulse.RecordBufferFragmentSize(uint32(poolFrames(rate))*channels*4))

	stream, err := client.NewRecord(pulse.Float32Writer(p.write), opts...)
	if err != nil {
		client.Close()
		p.events.stateChanged(StateConnecting, StateError, err)
		return fmt.Errorf("failed to create record stream: %w", err)
	}

	chosen, blob, err := negotiate(request, uint32(stream.SampleRate()), uint32(stream.Channels()))
	if err != nil {
		stream.Close()
		client.Close()
		return fmt.Errorf("failed to encode format: %w", err)
	}

	p.stride = chosen.Channels * 4
	p.pool.Store(NewPool(DefaultBufferCount, poolFrames(chosen.Rate)*int(p.stride)))
	p.client = client
	p.stream = stream

	p.events.paramChanged(spa.ParamFormat, blob)
	stream.Start()

	p.logger.Info("record stream started",
		zap.String("source", source.ID()),
		zap.Uint32("rate", chosen.Rate),
		zap.Uint32("channels", chosen.Channels))
	p.events.stateChanged(StateConnecting, StateStreaming, nil)
	return nil
}

// write is the record callback; it runs on the client's reader goroutine.
// Chunks longer than a buffer are split, and pieces that find no free
// buffer are counted as pool overruns.
func (p *Pulse) write(samples []float32) (int, error) {
	if pool := p.pool.Load(); pool != nil {
		pool.WriteFloat32(samples, p.stride)
	}
	p.events.process()
	return len(samples), nil
}

// Disconnect stops the record stream and closes the client
func (p *Pulse) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return nil
	}

	p.stream.Stop()
	err := p.stream.Error()
	p.stream.Close()
	p.client.Close()
	p.stream = nil
	p.client = nil

	p.events.paramChanged(spa.ParamFormat, nil)
	p.events.stateChanged(StateStreaming, StateUnconnected, err)
	if err != nil {
		return fmt.Errorf("record stream error: %w", err)
	}
	return nil
}
