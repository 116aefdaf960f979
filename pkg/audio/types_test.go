// ABOUTME: Tests for audio types
// ABOUTME: Tests format validity and float32 sample views
package audio

import (
	"testing"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
)

func TestFormatValid(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		expected bool
	}{
		{"zero", Format{}, false},
		{"audio raw", Format{MediaType: spa.MediaTypeAudio, MediaSubtype: spa.MediaSubtypeRaw, Channels: 2}, true},
		{"no channels", Format{MediaType: spa.MediaTypeAudio, MediaSubtype: spa.MediaSubtypeRaw}, false},
		{"video", Format{MediaType: spa.MediaTypeVideo, MediaSubtype: spa.MediaSubtypeRaw, Channels: 2}, false},
		{"dsp", Format{MediaType: spa.MediaTypeAudio, MediaSubtype: spa.MediaSubtypeDSP, Channels: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.Valid(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	f := Format{SampleFormat: spa.AudioFormatF32, SampleRate: 48000, Channels: 2}
	if got := f.String(); got != "F32LE 48000Hz 2ch" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestFormatEqual(t *testing.T) {
	base := Format{
		MediaType:    spa.MediaTypeAudio,
		MediaSubtype: spa.MediaSubtypeRaw,
		SampleFormat: spa.AudioFormatF32,
		SampleRate:   48000,
		Channels:     2,
		Positions:    []uint32{spa.AudioChannelFL, spa.AudioChannelFR},
	}

	tests := []struct {
		name     string
		other    func(f Format) Format
		expected bool
	}{
		{"same", func(f Format) Format { return f }, true},
		{"copied positions", func(f Format) Format {
			f.Positions = []uint32{spa.AudioChannelFL, spa.AudioChannelFR}
			return f
		}, true},
		{"rate", func(f Format) Format { f.SampleRate = 44100; return f }, false},
		{"channels", func(f Format) Format { f.Channels = 1; return f }, false},
		{"positions", func(f Format) Format { f.Positions = []uint32{0, 0}; return f }, false},
		{"no positions", func(f Format) Format { f.Positions = nil; return f }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Equal(tt.other(base)); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSampleView(t *testing.T) {
	samples := []float32{0.1, -0.5, 0.3, 0.2}
	data := make([]byte, len(samples)*Float32Width+3) // trailing partial sample
	Float32Bytes(data, samples)

	view := NewSampleView(data)
	if view.Len() != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), view.Len())
	}
	for i, want := range samples {
		if got := view.At(i); got != want {
			t.Errorf("sample %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestEmptySampleView(t *testing.T) {
	view := NewSampleView(nil)
	if view.Len() != 0 {
		t.Errorf("expected empty view, got %d samples", view.Len())
	}
}
