// ABOUTME: Tests for request parsing and backend selection
// ABOUTME: Covers constraint extraction from encoded format requests
package transport

import (
	"errors"
	"testing"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
)

func mustBuild(t *testing.T, id uint32, info spa.RawAudioInfo) []byte {
	t.Helper()
	blob, err := spa.BuildRawAudio(id, info)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return blob
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name     string
		info     spa.RawAudioInfo
		expected spa.RawAudioInfo
	}{
		{"unconstrained", spa.RawAudioInfo{Format: spa.AudioFormatF32}, spa.RawAudioInfo{Format: spa.AudioFormatF32}},
		{"pinned rate", spa.RawAudioInfo{Format: spa.AudioFormatF32, Rate: 44100}, spa.RawAudioInfo{Format: spa.AudioFormatF32, Rate: 44100}},
		{"pinned channels", spa.RawAudioInfo{Format: spa.AudioFormatF32, Channels: 1}, spa.RawAudioInfo{Format: spa.AudioFormatF32, Channels: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest([][]byte{mustBuild(t, spa.ParamEnumFormat, tt.info)})
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if got.Format != tt.expected.Format || got.Rate != tt.expected.Rate || got.Channels != tt.expected.Channels {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestParseRequestRejects(t *testing.T) {
	if _, err := ParseRequest(nil); !errors.Is(err, ErrNoFormat) {
		t.Errorf("expected ErrNoFormat for no requests, got %v", err)
	}

	s16 := mustBuild(t, spa.ParamEnumFormat, spa.RawAudioInfo{Format: spa.AudioFormatS16LE})
	if _, err := ParseRequest([][]byte{s16}); !errors.Is(err, ErrNoFormat) {
		t.Errorf("expected ErrNoFormat for S16, got %v", err)
	}

	video, err := spa.NewObject(spa.ObjectTypeFormat, spa.ParamEnumFormat).
		ID(spa.FormatMediaType, spa.MediaTypeVideo).
		ID(spa.FormatMediaSubtype, spa.MediaSubtypeRaw).
		Encode()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if _, err := ParseRequest([][]byte{video}); !errors.Is(err, ErrNoFormat) {
		t.Errorf("expected ErrNoFormat for video only, got %v", err)
	}

	if _, err := ParseRequest([][]byte{{1, 2, 3}}); !errors.Is(err, spa.ErrTruncated) {
		t.Errorf("expected ErrTruncated for garbage, got %v", err)
	}
}

func TestNewBackends(t *testing.T) {
	for _, name := range Backends {
		t.Run(name, func(t *testing.T) {
			stream, err := New(name, Events{}, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stream == nil {
				t.Fatal("expected a stream")
			}
		})
	}

	if _, err := New("alsa-direct", Events{}, nil); err == nil {
		t.Error("expected an error for an unknown backend")
	}
}

func TestStateString(t *testing.T) {
	if StateStreaming.String() != "streaming" {
		t.Errorf("unexpected name %q", StateStreaming.String())
	}
	if State(42).String() != "unknown" {
		t.Errorf("unexpected name %q", State(42).String())
	}
}
