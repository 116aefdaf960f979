// ABOUTME: Test tone capture stream
// ABOUTME: Generates a sine wave at realtime cadence on top of Loopback
package transport

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
	"go.uber.org/zap"
)

// ToneConfig configures the generated tone
type ToneConfig struct {
	Frequency float64       // Hz
	Amplitude float64       // peak of channel 0; channel n gets Amplitude/(n+1)
	Rate      uint32        // native sample rate
	Channels  uint32        // native channel count
	Period    time.Duration // interval between buffers
}

// DefaultToneConfig returns a 440Hz stereo tone at half scale
func DefaultToneConfig() ToneConfig {
	return ToneConfig{
		Frequency: 440.0, // A4 note
		Amplitude: 0.5,
		Rate:      48000,
		Channels:  2,
		Period:    10 * time.Millisecond,
	}
}

// Tone is a Stream that captures a generated sine wave
type Tone struct {
	*Loopback

	config      ToneConfig
	sampleIndex uint64
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewTone creates an unconnected tone stream
func NewTone(events Events, config ToneConfig, logger *zap.Logger) *Tone {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tone{
		Loopback: NewLoopback(events, LoopbackConfig{
			Native: spa.RawAudioInfo{
				Format:   spa.AudioFormatF32,
				Rate:     config.Rate,
				Channels: config.Channels,
			},
		}, logger.Named("tone")),
		config: config,
	}
}

// Connect negotiates and starts generating buffers
func (t *Tone) Connect(ctx context.Context, props Properties, params [][]byte) error {
	if err := t.Loopback.Connect(ctx, props, params); err != nil {
		return err
	}

	format := t.Negotiated()
	frames := int(time.Duration(format.Rate) * t.config.Period / time.Second)
	if frames < 1 {
		frames = 1
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(runCtx, make([]float32, frames*int(format.Channels)), format)

	t.logger.Info("tone generator started",
		zap.Float64("frequency", t.config.Frequency),
		zap.Int("frames_per_buffer", frames))
	return nil
}

func (t *Tone) run(ctx context.Context, buf []float32, format spa.RawAudioInfo) {
	defer close(t.done)

	ticker := time.NewTicker(t.config.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.fill(buf, format)
			if err := t.Inject(buf); err != nil {
				if !errors.Is(err, ErrOverrun) {
					return
				}
				t.logger.Debug("tone buffer dropped, client is not draining")
			}
			t.Process()
		}
	}
}

// fill writes the next period of the tone into buf
func (t *Tone) fill(buf []float32, format spa.RawAudioInfo) {
	channels := int(format.Channels)
	frames := len(buf) / channels
	for i := 0; i < frames; i++ {
		ts := float64(t.sampleIndex+uint64(i)) / float64(format.Rate)
		sample := math.Sin(2 * math.Pi * t.config.Frequency * ts)
		for c := 0; c < channels; c++ {
			buf[i*channels+c] = float32(sample * t.config.Amplitude / float64(c+1))
		}
	}
	t.sampleIndex += uint64(frames)
}

// Disconnect stops the generator and the stream
func (t *Tone) Disconnect() error {
	if t.cancel != nil {
		t.cancel()
		<-t.done
		t.cancel = nil
	}
	return t.Loopback.Disconnect()
}
