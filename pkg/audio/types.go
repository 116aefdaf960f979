// ABOUTME: Audio type definitions
// ABOUTME: Defines the negotiated audio format and borrowed sample views
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
)

// Float32Width is the byte width of one float32 sample
const Float32Width = 4

// Format describes a negotiated audio stream format. A Format is immutable
// once published; updates replace it wholesale.
type Format struct {
	MediaType    uint32
	MediaSubtype uint32
	SampleFormat uint32
	SampleRate   uint32
	Channels     uint32
	Positions    []uint32 // channel positions, may be empty
}

// Valid reports whether the format is confirmed audio/raw with a channel count
func (f Format) Valid() bool {
	return f.MediaType == spa.MediaTypeAudio &&
		f.MediaSubtype == spa.MediaSubtypeRaw &&
		f.Channels > 0
}

// SampleWidth returns the byte width of one sample, or 0 if unknown
func (f Format) SampleWidth() int {
	return spa.SampleWidth(f.SampleFormat)
}

// Equal reports whether two formats describe the same stream
func (f Format) Equal(o Format) bool {
	return f.MediaType == o.MediaType &&
		f.MediaSubtype == o.MediaSubtype &&
		f.SampleFormat == o.SampleFormat &&
		f.SampleRate == o.SampleRate &&
		f.Channels == o.Channels &&
		slices.Equal(f.Positions, o.Positions)
}

// String renders the format for logs and the UI
func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch", spa.AudioFormatName(f.SampleFormat), f.SampleRate, f.Channels)
}

// SampleView is a read-only view of interleaved little-endian float32
// samples inside a borrowed buffer. It must not be retained after the
// buffer is returned to the transport.
type SampleView struct {
	data []byte
}

// NewSampleView wraps data as float32 samples. Trailing bytes that do not
// form a whole sample are not addressable.
func NewSampleView(data []byte) SampleView {
	return SampleView{data: data[:len(data)-len(data)%Float32Width]}
}

// Len returns the number of samples in the view
func (v SampleView) Len() int {
	return len(v.data) / Float32Width
}

// At returns sample i
func (v SampleView) At(i int) float32 {
	off := i * Float32Width
	return math.Float32frombits(binary.LittleEndian.Uint32(v.data[off : off+Float32Width]))
}

// Float32Bytes encodes samples as little-endian float32 bytes into dst and
// returns the number of bytes written. dst must hold 4*len(samples) bytes.
func Float32Bytes(dst []byte, samples []float32) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*Float32Width:], math.Float32bits(s))
	}
	return len(samples) * Float32Width
}
