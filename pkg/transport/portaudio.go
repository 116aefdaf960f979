//go:build portaudio

// ABOUTME: PortAudio capture stream
// ABOUTME: Cross-platform input stream using PortAudio
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

// PortAudio captures from a PortAudio input device
type PortAudio struct {
	poolStream

	events Events
	logger *zap.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
}

// NewPortAudio creates an unconnected PortAudio stream
func NewPortAudio(events Events, logger *zap.Logger) Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortAudio{events: events, logger: logger.Named("portaudio")}
}

// Connect opens an input stream at the device's native rate and channel
// count unless the request pins them
func (p *PortAudio) Connect(ctx context.Context, props Properties, params [][]byte) error {
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

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	device, err := p.findDevice(props[PropTargetObject])
	if err != nil {
		portaudio.Terminate()
		p.events.stateChanged(StateConnecting, StateError, err)
		return err
	}

	chosen, blob, err := negotiate(request, uint32(device.DefaultSampleRate), uint32(device.MaxInputChannels))
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("failed to encode format: %w", err)
	}

	streamParams := portaudio.LowLatencyParameters(device, nil)
	streamParams.Input.Channels = int(chosen.Channels)
	streamParams.SampleRate = float64(chosen.Rate)

	stride := chosen.Channels * 4
	p.pool.Store(NewPool(DefaultBufferCount, poolFrames(chosen.Rate)*int(stride)))

	stream, err := portaudio.OpenStream(streamParams, func(in []float32) {
		if pool := p.pool.Load(); pool != nil {
			pool.WriteFloat32(in, stride)
		}
		p.events.process()
	})
	if err != nil {
		p.pool.Store(nil)
		portaudio.Terminate()
		p.events.stateChanged(StateConnecting, StateError, err)
		return fmt.Errorf("failed to open stream: %w", err)
	}

	p.events.paramChanged(spa.ParamFormat, blob)

	if err := stream.Start(); err != nil {
		stream.Close()
		p.pool.Store(nil)
		portaudio.Terminate()
		p.events.paramChanged(spa.ParamFormat, nil)
		p.events.stateChanged(StateConnecting, StateError, err)
		return fmt.Errorf("failed to start stream: %w", err)
	}
	p.stream = stream

	p.logger.Info("input stream started",
		zap.String("device", device.Name),
		zap.Uint32("rate", chosen.Rate),
		zap.Uint32("channels", chosen.Channels))
	p.events.stateChanged(StateConnecting, StateStreaming, nil)
	return nil
}

func (p *PortAudio) findDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

// Disconnect stops the stream and terminates PortAudio
func (p *PortAudio) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return nil
	}
	if err := p.stream.Stop(); err != nil {
		p.logger.Warn("stream stop error", zap.Error(err))
	}
	if err := p.stream.Close(); err != nil {
		p.logger.Warn("stream close error", zap.Error(err))
	}
	p.stream = nil

	p.events.paramChanged(spa.ParamFormat, nil)
	p.events.stateChanged(StateStreaming, StateUnconnected, nil)
	return portaudio.Terminate()
}
