// ABOUTME: Type, key and enum ids of the native parameter encoding
// ABOUTME: Values must match the audio graph bit-for-bit
package spa

// Pod type ids.
const (
	TypeNone      uint32 = 1
	TypeBool      uint32 = 2
	TypeID        uint32 = 3
	TypeInt       uint32 = 4
	TypeLong      uint32 = 5
	TypeFloat     uint32 = 6
	TypeDouble    uint32 = 7
	TypeString    uint32 = 8
	TypeBytes     uint32 = 9
	TypeRectangle uint32 = 10
	TypeFraction  uint32 = 11
	TypeBitmap    uint32 = 12
	TypeArray     uint32 = 13
	TypeStruct    uint32 = 14
	TypeObject    uint32 = 15
	TypeSequence  uint32 = 16
	TypePointer   uint32 = 17
	TypeFd        uint32 = 18
	TypeChoice    uint32 = 19
	TypePod       uint32 = 20
)

// Object types.
const (
	ObjectTypePropInfo uint32 = 0x40001
	ObjectTypeProps    uint32 = 0x40002
	ObjectTypeFormat   uint32 = 0x40003
)

// Parameter ids.
const (
	ParamInvalid    uint32 = 0
	ParamPropInfo   uint32 = 1
	ParamProps      uint32 = 2
	ParamEnumFormat uint32 = 3
	ParamFormat     uint32 = 4
	ParamBuffers    uint32 = 5
	ParamMeta       uint32 = 6
)

// Format object property keys.
const (
	FormatMediaType     uint32 = 1
	FormatMediaSubtype  uint32 = 2
	FormatAudioFormat   uint32 = 0x10001
	FormatAudioFlags    uint32 = 0x10002
	FormatAudioRate     uint32 = 0x10003
	FormatAudioChannels uint32 = 0x10004
	FormatAudioPosition uint32 = 0x10005
)

// Media types and subtypes.
const (
	MediaTypeUnknown uint32 = 0
	MediaTypeAudio   uint32 = 1
	MediaTypeVideo   uint32 = 2

	MediaSubtypeUnknown uint32 = 0
	MediaSubtypeRaw     uint32 = 1
	MediaSubtypeDSP     uint32 = 2
)

// Raw audio sample formats (interleaved).
const (
	AudioFormatUnknown uint32 = 0
	AudioFormatS8      uint32 = 0x101
	AudioFormatU8      uint32 = 0x102
	AudioFormatS16LE   uint32 = 0x103
	AudioFormatS16BE   uint32 = 0x104
	AudioFormatS32LE   uint32 = 0x10b
	AudioFormatS32BE   uint32 = 0x10c
	AudioFormatS24LE   uint32 = 0x10f
	AudioFormatS24BE   uint32 = 0x110
	AudioFormatF32LE   uint32 = 0x11b
	AudioFormatF32BE   uint32 = 0x11c
	AudioFormatF64LE   uint32 = 0x11d
	AudioFormatF64BE   uint32 = 0x11e

	// AudioFormatF32 is the native float format on little-endian hosts.
	AudioFormatF32 = AudioFormatF32LE
)

// Channel positions used in the position array. Zero marks an
// unpositioned channel.
const (
	AudioChannelUnknown uint32 = 0
	AudioChannelNA      uint32 = 1
	AudioChannelMono    uint32 = 2
	AudioChannelFL      uint32 = 3
	AudioChannelFR      uint32 = 4
)

// Choice kinds.
const (
	ChoiceNone  uint32 = 0
	ChoiceRange uint32 = 1
	ChoiceStep  uint32 = 2
	ChoiceEnum  uint32 = 3
	ChoiceFlags uint32 = 4
)

// MaxChannels is the largest channel count a raw audio format may carry.
const MaxChannels = 64

// SampleWidth returns the byte width of one sample in the given format, or 0
// when the format is unknown.
func SampleWidth(format uint32) int {
	switch format {
	case AudioFormatS8, AudioFormatU8:
		return 1
	case AudioFormatS16LE, AudioFormatS16BE:
		return 2
	case AudioFormatS24LE, AudioFormatS24BE:
		return 3
	case AudioFormatS32LE, AudioFormatS32BE, AudioFormatF32LE, AudioFormatF32BE:
		return 4
	case AudioFormatF64LE, AudioFormatF64BE:
		return 8
	default:
		return 0
	}
}

// AudioFormatName returns a short name for a sample format id.
func AudioFormatName(format uint32) string {
	switch format {
	case AudioFormatS8:
		return "S8"
	case AudioFormatU8:
		return "U8"
	case AudioFormatS16LE:
		return "S16LE"
	case AudioFormatS16BE:
		return "S16BE"
	case AudioFormatS24LE:
		return "S24LE"
	case AudioFormatS24BE:
		return "S24BE"
	case AudioFormatS32LE:
		return "S32LE"
	case AudioFormatS32BE:
		return "S32BE"
	case AudioFormatF32LE:
		return "F32LE"
	case AudioFormatF32BE:
		return "F32BE"
	case AudioFormatF64LE:
		return "F64LE"
	case AudioFormatF64BE:
		return "F64BE"
	default:
		return "unknown"
	}
}
