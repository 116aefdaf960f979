// ABOUTME: Peak amplitude computation and quantization
// ABOUTME: Strided max-abs scan over interleaved channels
package meter

import (
	"math"

	"github.com/Resonate-Protocol/resonate-capture/pkg/audio"
)

const (
	// LevelScale maps a full-scale peak (1.0) onto display levels
	LevelScale = 30

	// MaxLevel is the highest display level
	MaxLevel = 39
)

// ComputePeaks returns the peak absolute sample value of each channel
func ComputePeaks(view audio.SampleView, channels int) []float32 {
	if channels <= 0 {
		return nil
	}
	return ComputePeaksInto(make([]float32, channels), view, channels)
}

// ComputePeaksInto writes the peak of each channel into dst[:channels] and
// returns that slice. dst must hold at least channels values.
func ComputePeaksInto(dst []float32, view audio.SampleView, channels int) []float32 {
	if channels <= 0 {
		return dst[:0]
	}
	dst = dst[:channels]
	n := view.Len()
	for c := 0; c < channels; c++ {
		var peak float32
		for i := c; i < n; i += channels {
			v := view.At(i)
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
		dst[c] = peak
	}
	return dst
}

// Quantize maps a peak amplitude to a display level in [0, MaxLevel]
func Quantize(peak float32) int {
	if math.IsNaN(float64(peak)) || peak <= 0 {
		return 0
	}
	level := math.Round(float64(peak) * LevelScale)
	if level > MaxLevel {
		return MaxLevel
	}
	return int(level)
}
