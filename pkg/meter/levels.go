// ABOUTME: Lock-free publication of the latest peaks
// ABOUTME: Written from the realtime callback, read by UI and feed goroutines
package meter

import (
	"math"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
)

// Levels holds the most recent per-channel peaks. Each channel is stored
// atomically; a reader may see channels from adjacent periods.
type Levels struct {
	peaks    [spa.MaxChannels]atomic.Uint32
	channels atomic.Uint32
	updates  atomic.Uint64
}

// Reading is a copy of the published peaks
type Reading struct {
	Peaks   []float32
	Updates uint64
}

// Store publishes peaks. Channels beyond spa.MaxChannels are dropped.
func (l *Levels) Store(peaks []float32) {
	n := len(peaks)
	if n > spa.MaxChannels {
		n = spa.MaxChannels
	}
	for i := 0; i < n; i++ {
		l.peaks[i].Store(math.Float32bits(peaks[i]))
	}
	l.channels.Store(uint32(n))
	l.updates.Add(1)
}

// Reset clears the published channel count
func (l *Levels) Reset() {
	l.channels.Store(0)
}

// Snapshot copies the latest peaks
func (l *Levels) Snapshot() Reading {
	n := int(l.channels.Load())
	r := Reading{
		Peaks:   make([]float32, n),
		Updates: l.updates.Load(),
	}
	for i := 0; i < n; i++ {
		r.Peaks[i] = math.Float32frombits(l.peaks[i].Load())
	}
	return r
}

// Quantized returns the display level of every channel
func (r Reading) Quantized() []int {
	out := make([]int, len(r.Peaks))
	for i, p := range r.Peaks {
		out[i] = Quantize(p)
	}
	return out
}
