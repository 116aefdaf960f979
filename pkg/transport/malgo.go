// ABOUTME: Malgo-based capture stream
// ABOUTME: Uses miniaudio via malgo; the device data callback is the realtime thread
package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// Malgo captures from a miniaudio device
type Malgo struct {
	poolStream

	events Events
	logger *zap.Logger

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	stopping atomic.Bool
}

// NewMalgo creates an unconnected malgo stream
func NewMalgo(events Events, logger *zap.Logger) Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Malgo{events: events, logger: logger.Named("malgo")}
}

// Connect opens the capture device. Unconstrained rate and channel count
// are left to the device so it runs at its native values.
func (m *Malgo) Connect(ctx context.Context, props Properties, params [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return ErrAlreadyConnected
	}

	request, err := ParseRequest(params)
	if err != nil {
		return err
	}

	m.events.stateChanged(StateUnconnected, StateConnecting, nil)

	if m.malgoCtx == nil {
		mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
			m.logger.Debug("miniaudio", zap.String("message", message))
		})
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = mctx
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = request.Channels
	deviceConfig.SampleRate = request.Rate
	deviceConfig.PeriodSizeInMilliseconds = 10
	deviceConfig.Alsa.NoMMap = 1

	if target := props[PropTargetObject]; target != "" {
		id, err := m.findDevice(target)
		if err != nil {
			m.events.stateChanged(StateConnecting, StateError, err)
			return err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	var stride uint32
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if p := m.pool.Load(); p != nil {
				p.Write(input, stride)
			}
			m.events.process()
		},
		Stop: func() {
			if !m.stopping.Load() {
				m.events.stateChanged(StateStreaming, StateError, ErrDeviceStopped)
			}
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		m.events.stateChanged(StateConnecting, StateError, err)
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	if device.CaptureFormat() != malgo.FormatF32 {
		device.Uninit()
		err := fmt.Errorf("%w: device delivers format %d", ErrNoFormat, device.CaptureFormat())
		m.events.stateChanged(StateConnecting, StateError, err)
		return err
	}

	chosen, blob, err := negotiate(request, device.SampleRate(), device.CaptureChannels())
	if err != nil {
		device.Uninit()
		return fmt.Errorf("failed to encode format: %w", err)
	}

	stride = chosen.Channels * 4
	m.pool.Store(NewPool(DefaultBufferCount, poolFrames(chosen.Rate)*int(stride)))

	m.events.paramChanged(spa.ParamFormat, blob)

	m.stopping.Store(false)
	if err := device.Start(); err != nil {
		device.Uninit()
		m.pool.Store(nil)
		m.events.paramChanged(spa.ParamFormat, nil)
		m.events.stateChanged(StateConnecting, StateError, err)
		return fmt.Errorf("failed to start device: %w", err)
	}
	m.device = device

	m.logger.Info("capture device started",
		zap.String("target", props[PropTargetObject]),
		zap.Uint32("rate", chosen.Rate),
		zap.Uint32("channels", chosen.Channels))
	m.events.stateChanged(StateConnecting, StateStreaming, nil)
	return nil
}

// findDevice looks up a capture device by name
func (m *Malgo) findDevice(name string) (malgo.DeviceID, error) {
	infos, err := m.malgoCtx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("failed to list capture devices: %w", err)
	}
	for _, info := range infos {
		if info.Name() == name {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

// Disconnect stops the device and releases the miniaudio context
func (m *Malgo) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		m.stopping.Store(true)
		if err := m.device.Stop(); err != nil {
			m.logger.Warn("device stop error", zap.Error(err))
		}
		m.device.Uninit()
		m.device = nil
		m.events.paramChanged(spa.ParamFormat, nil)
		m.events.stateChanged(StateStreaming, StateUnconnected, nil)
	}

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			m.logger.Warn("malgo context uninit error", zap.Error(err))
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}
