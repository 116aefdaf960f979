// ABOUTME: Tests for the POD object builder
// ABOUTME: Checks exact wire layout, padding and builder error handling
package spa

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func words(ws ...uint32) []byte {
	out := make([]byte, 4*len(ws))
	for i, w := range ws {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func TestEnumFormatLayout(t *testing.T) {
	blob, err := BuildRawAudio(ParamEnumFormat, RawAudioInfo{Format: AudioFormatF32})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	expected := words(
		80, TypeObject,
		ObjectTypeFormat, ParamEnumFormat,
		FormatMediaType, 0, 4, TypeID, MediaTypeAudio, 0,
		FormatMediaSubtype, 0, 4, TypeID, MediaSubtypeRaw, 0,
		FormatAudioFormat, 0, 4, TypeID, AudioFormatF32LE, 0,
	)

	if !bytes.Equal(blob, expected) {
		t.Errorf("unexpected encoding:\n got %x\nwant %x", blob, expected)
	}
}

func TestFixedFormatLayout(t *testing.T) {
	blob, err := BuildRawAudio(ParamFormat, RawAudioInfo{
		Format:   AudioFormatF32,
		Rate:     48000,
		Channels: 2,
		Position: []uint32{3, 4},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	expected := words(
		160, TypeObject,
		ObjectTypeFormat, ParamFormat,
		FormatMediaType, 0, 4, TypeID, MediaTypeAudio, 0,
		FormatMediaSubtype, 0, 4, TypeID, MediaSubtypeRaw, 0,
		FormatAudioFormat, 0, 4, TypeID, AudioFormatF32LE, 0,
		FormatAudioRate, 0, 4, TypeInt, 48000, 0,
		FormatAudioChannels, 0, 4, TypeInt, 2, 0,
		FormatAudioPosition, 0, 16, TypeArray, 4, TypeID, 3, 4,
	)

	if !bytes.Equal(blob, expected) {
		t.Errorf("unexpected encoding:\n got %x\nwant %x", blob, expected)
	}
}

func TestChannelsCarryPositionArray(t *testing.T) {
	tests := []struct {
		name     string
		info     RawAudioInfo
		expected []uint32
	}{
		{"unpositioned", RawAudioInfo{Format: AudioFormatF32, Channels: 2}, []uint32{0, 0}},
		{"short", RawAudioInfo{Format: AudioFormatF32, Channels: 3, Position: []uint32{AudioChannelFL}}, []uint32{AudioChannelFL, 0, 0}},
		{"long", RawAudioInfo{Format: AudioFormatF32, Channels: 1, Position: []uint32{AudioChannelFL, AudioChannelFR}}, []uint32{AudioChannelFL}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := BuildRawAudio(ParamEnumFormat, tt.info)
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			obj, err := ParseObject(blob)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			info, err := ParseRawAudio(obj)
			if err != nil {
				t.Fatalf("raw audio: %v", err)
			}
			if len(info.Position) != len(tt.expected) {
				t.Fatalf("expected positions %v, got %v", tt.expected, info.Position)
			}
			for i := range tt.expected {
				if info.Position[i] != tt.expected[i] {
					t.Errorf("expected positions %v, got %v", tt.expected, info.Position)
					break
				}
			}
		})
	}
}

func TestBuilderDuplicateKey(t *testing.T) {
	_, err := NewObject(ObjectTypeFormat, ParamFormat).
		ID(FormatMediaType, MediaTypeAudio).
		ID(FormatMediaType, MediaTypeVideo).
		Encode()
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestBuilderEmptyChoice(t *testing.T) {
	_, err := NewObject(ObjectTypeFormat, ParamEnumFormat).
		ChoiceInt(FormatAudioRate, ChoiceEnum).
		Encode()
	if !errors.Is(err, ErrEmptyChoice) {
		t.Errorf("expected ErrEmptyChoice, got %v", err)
	}
}

func TestBuilderPadding(t *testing.T) {
	tests := []struct {
		name   string
		build  func(*Object) *Object
		length int
	}{
		{"id", func(o *Object) *Object { return o.ID(1, 7) }, 16 + 24},
		{"long", func(o *Object) *Object { return o.Long(1, -1) }, 16 + 24},
		{"bool", func(o *Object) *Object { return o.Bool(1, true) }, 16 + 24},
		{"float", func(o *Object) *Object { return o.Float(1, 0.5) }, 16 + 24},
		{"three ids", func(o *Object) *Object { return o.IDArray(1, []uint32{1, 2, 3}) }, 16 + 16 + 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := tt.build(NewObject(ObjectTypeProps, ParamProps)).Encode()
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if len(blob) != tt.length {
				t.Errorf("expected %d bytes, got %d", tt.length, len(blob))
			}
			if len(blob)%8 != 0 {
				t.Errorf("blob length %d is not 8-byte aligned", len(blob))
			}
			size := binary.LittleEndian.Uint32(blob[0:4])
			if int(size) != len(blob)-8 {
				t.Errorf("object size %d does not match body length %d", size, len(blob)-8)
			}
		})
	}
}
