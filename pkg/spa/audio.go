// ABOUTME: Raw audio format parameters
// ABOUTME: Builds and parses audio/raw format objects
package spa

import (
	"fmt"
)

// RawAudioInfo describes a raw audio format. Zero Rate or Channels means
// the value is left to the graph.
type RawAudioInfo struct {
	Format   uint32
	Rate     uint32
	Channels uint32
	Position []uint32
}

// BuildRawAudio encodes an audio/raw format object with the given parameter
// id (ParamEnumFormat for requests, ParamFormat for a fixed format). Only set
// fields are emitted, except that a channel count always carries a position
// array of that length, zero-filled past the given positions.
func BuildRawAudio(id uint32, info RawAudioInfo) ([]byte, error) {
	obj := NewObject(ObjectTypeFormat, id).
		ID(FormatMediaType, MediaTypeAudio).
		ID(FormatMediaSubtype, MediaSubtypeRaw)
	if info.Format != AudioFormatUnknown {
		obj.ID(FormatAudioFormat, info.Format)
	}
	if info.Rate != 0 {
		obj.Int(FormatAudioRate, int32(info.Rate))
	}
	if info.Channels != 0 {
		obj.Int(FormatAudioChannels, int32(info.Channels))
		position := make([]uint32, info.Channels)
		copy(position, info.Position)
		obj.IDArray(FormatAudioPosition, position)
	}
	return obj.Encode()
}

// ParseMediaType reads the media type and subtype of a format object
func ParseMediaType(obj *ParsedObject) (mediaType, mediaSubtype uint32, err error) {
	if obj.Type != ObjectTypeFormat {
		return 0, 0, fmt.Errorf("%w: object type %#x is not a format", ErrUnexpectedType, obj.Type)
	}
	mt, ok := obj.Prop(FormatMediaType)
	if !ok {
		return 0, 0, fmt.Errorf("format without media type")
	}
	if mediaType, err = mt.ID(); err != nil {
		return 0, 0, fmt.Errorf("media type: %w", err)
	}
	st, ok := obj.Prop(FormatMediaSubtype)
	if !ok {
		return 0, 0, fmt.Errorf("format without media subtype")
	}
	if mediaSubtype, err = st.ID(); err != nil {
		return 0, 0, fmt.Errorf("media subtype: %w", err)
	}
	return mediaType, mediaSubtype, nil
}

// ParseRawAudio reads the raw audio fields of a format object. Absent fields
// are left zero.
func ParseRawAudio(obj *ParsedObject) (RawAudioInfo, error) {
	var info RawAudioInfo
	if p, ok := obj.Prop(FormatAudioFormat); ok {
		v, err := p.ID()
		if err != nil {
			return info, fmt.Errorf("audio format: %w", err)
		}
		info.Format = v
	}
	if p, ok := obj.Prop(FormatAudioRate); ok {
		v, err := p.Int()
		if err != nil {
			return info, fmt.Errorf("audio rate: %w", err)
		}
		if v < 0 {
			return info, fmt.Errorf("audio rate: negative value %d", v)
		}
		info.Rate = uint32(v)
	}
	if p, ok := obj.Prop(FormatAudioChannels); ok {
		v, err := p.Int()
		if err != nil {
			return info, fmt.Errorf("audio channels: %w", err)
		}
		if v < 0 {
			return info, fmt.Errorf("audio channels: negative value %d", v)
		}
		info.Channels = uint32(v)
	}
	if p, ok := obj.Prop(FormatAudioPosition); ok {
		pos, err := p.IDs()
		if err != nil {
			return info, fmt.Errorf("audio position: %w", err)
		}
		info.Position = pos
	}
	return info, nil
}
