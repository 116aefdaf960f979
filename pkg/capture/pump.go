// ABOUTME: Realtime buffer pump
// ABOUTME: Drains the buffer queue, keeps the newest buffer and meters it
package capture

import (
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-capture/pkg/audio"
	"github.com/Resonate-Protocol/resonate-capture/pkg/meter"
	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
	"github.com/Resonate-Protocol/resonate-capture/pkg/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// malformedLogEvery is the sampling window for malformed buffer warnings;
// only the first warning in each window is written.
const malformedLogEvery = time.Second

// Queue is the buffer half of a transport stream
type Queue interface {
	DequeueBuffer() (*transport.Buffer, error)
	QueueBuffer(b *transport.Buffer) error
}

// PumpStats counts pump activity
type PumpStats struct {
	Processed uint64 // buffers metered
	Underruns uint64 // process calls without a ready buffer
	Malformed uint64 // buffers skipped as malformed
	Released  uint64 // buffers returned to the transport
	Failures  uint64 // failed transport calls
	Frames    uint64 // frames in the last metered buffer
}

type queueRef struct {
	q Queue
}

// Pump drains the transport queue on the realtime thread. The success path
// does not allocate or block.
type Pump struct {
	queue  atomic.Pointer[queueRef]
	format func() *audio.Format
	levels *meter.Levels
	report func(error)
	logger *zap.Logger
	sample *zap.Logger // malformed buffer warnings

	peaks [spa.MaxChannels]float32

	processed atomic.Uint64
	underruns atomic.Uint64
	malformed atomic.Uint64
	released  atomic.Uint64
	failures  atomic.Uint64
	frames    atomic.Uint64
}

// NewPump creates a pump reading the format from format and publishing peaks
// to levels. Transport failures are passed to report.
func NewPump(format func() *audio.Format, levels *meter.Levels, report func(error), logger *zap.Logger) *Pump {
	if logger == nil {
		logger = zap.NewNop()
	}
	if report == nil {
		report = func(error) {}
	}
	sample := logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewSamplerWithOptions(c, malformedLogEvery, 1, 0)
	}))
	return &Pump{format: format, levels: levels, report: report, logger: logger, sample: sample}
}

// Attach sets the queue to drain; nil detaches
func (p *Pump) Attach(q Queue) {
	if q == nil {
		p.queue.Store(nil)
		return
	}
	p.queue.Store(&queueRef{q: q})
}

// OnProcess drains every ready buffer, returning all but the newest at once.
// The newest is metered and returned before OnProcess returns, on every path.
func (p *Pump) OnProcess() {
	ref := p.queue.Load()
	if ref == nil {
		return
	}
	q := ref.q

	var held *transport.Buffer
	for {
		b, err := q.DequeueBuffer()
		if err != nil {
			p.fail(OpDequeue, err)
			break
		}
		if b == nil {
			break
		}
		if held != nil {
			p.release(q, held)
		}
		held = b
	}

	if held == nil {
		p.underruns.Add(1)
		p.logger.Warn("out of buffers")
		return
	}

	defer p.release(q, held)
	defer p.recoverPanic()

	p.process(held)
}

func (p *Pump) process(b *transport.Buffer) {
	f := p.format()
	if f == nil {
		p.logger.Debug("buffer before format negotiation", zap.Uint32("size", b.Size))
		return
	}

	view, err := ExtractSamples(b, *f)
	if err != nil {
		p.malformed.Add(1)
		if ce := p.sample.Check(zap.WarnLevel, "skipping buffer"); ce != nil {
			ce.Write(zap.Error(err), zap.Uint32("size", b.Size), zap.Uint32("channels", f.Channels))
		}
		return
	}

	channels := int(f.Channels)
	frames := view.Len() / channels
	p.processed.Add(1)
	p.frames.Store(uint64(frames))
	if ce := p.logger.Check(zap.InfoLevel, "captured"); ce != nil {
		ce.Write(zap.Int("samples", frames))
	}

	peaks := meter.ComputePeaksInto(p.peaks[:], view, channels)
	p.levels.Store(peaks)
}

func (p *Pump) release(q Queue, b *transport.Buffer) {
	if err := q.QueueBuffer(b); err != nil {
		p.fail(OpQueue, err)
		return
	}
	p.released.Add(1)
}

func (p *Pump) recoverPanic() {
	if r := recover(); r != nil {
		p.failures.Add(1)
		p.logger.Error("recovered from panic while metering", zap.Any("panic", r))
	}
}

func (p *Pump) fail(op Op, err error) {
	p.failures.Add(1)
	p.logger.Error("transport call failed", zap.String("op", string(op)), zap.Error(err))
	p.report(&TransportError{Op: op, Err: err})
}

// Stats returns pump counters
func (p *Pump) Stats() PumpStats {
	return PumpStats{
		Processed: p.processed.Load(),
		Underruns: p.underruns.Load(),
		Malformed: p.malformed.Load(),
		Released:  p.released.Load(),
		Failures:  p.failures.Load(),
		Frames:    p.frames.Load(),
	}
}

// ExtractSamples returns a view of the buffer's interleaved samples. Buffers
// that do not hold a whole number of frames in the format are rejected with
// ErrMalformedBuffer.
func ExtractSamples(b *transport.Buffer, f audio.Format) (audio.SampleView, error) {
	if f.Channels == 0 {
		return audio.SampleView{}, errZeroChannels
	}
	if f.SampleFormat != spa.AudioFormatF32 {
		return audio.SampleView{}, errUnsupportedFormat
	}

	width := f.SampleWidth()
	size := int(b.Size)
	if size%width != 0 {
		return audio.SampleView{}, errPartialSample
	}
	if count := size / width; count%int(f.Channels) != 0 {
		return audio.SampleView{}, errPartialFrame
	}
	return audio.NewSampleView(b.Bytes()), nil
}
