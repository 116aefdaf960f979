// ABOUTME: Format negotiation with the audio graph
// ABOUTME: Builds the capability request and publishes accepted formats atomically
package capture

import (
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-capture/pkg/audio"
	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
	"go.uber.org/zap"
)

// Constraints pin parts of the requested format. Zero values leave the
// choice to the graph.
type Constraints struct {
	Rate     uint32
	Channels uint32
}

// Outcome is the result of interpreting a format proposal
type Outcome int

const (
	// OutcomeAccepted means a new format was published
	OutcomeAccepted Outcome = iota
	// OutcomeCleared means the format was reset to unset
	OutcomeCleared
	// OutcomeIgnored means the parameter was not a format
	OutcomeIgnored
	// OutcomeRejected means the proposal was not audio/raw
	OutcomeRejected
	// OutcomeMalformed means the proposal could not be decoded
	OutcomeMalformed
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeCleared:
		return "cleared"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeRejected:
		return "rejected"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Negotiator owns the negotiated format. It is written from the control
// goroutine and read from the realtime thread.
type Negotiator struct {
	format atomic.Pointer[audio.Format]
	logger *zap.Logger
}

// NewNegotiator creates a negotiator with an unset format
func NewNegotiator(logger *zap.Logger) *Negotiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Negotiator{logger: logger}
}

// BuildEnumerationRequest encodes the format request: audio/raw float32,
// with rate and channel count left open unless constrained
func (n *Negotiator) BuildEnumerationRequest(c Constraints) ([]byte, error) {
	return spa.BuildRawAudio(spa.ParamEnumFormat, spa.RawAudioInfo{
		Format:   spa.AudioFormatF32,
		Rate:     c.Rate,
		Channels: c.Channels,
	})
}

// Format returns the published format, or nil while unset
func (n *Negotiator) Format() *audio.Format {
	return n.format.Load()
}

// OnFormatChanged interprets a parameter change from the graph. It never
// fails: proposals that cannot be used are logged and leave the published
// format untouched.
func (n *Negotiator) OnFormatChanged(id uint32, param []byte) Outcome {
	if len(param) == 0 {
		n.format.Store(nil)
		n.logger.Debug("format cleared")
		return OutcomeCleared
	}
	if id != spa.ParamFormat {
		return OutcomeIgnored
	}

	obj, err := spa.ParseObject(param)
	if err != nil {
		n.logger.Warn("ignoring malformed format", zap.Error(err))
		return OutcomeMalformed
	}

	mediaType, mediaSubtype, err := spa.ParseMediaType(obj)
	if err != nil {
		n.logger.Warn("ignoring malformed format", zap.Error(err))
		return OutcomeMalformed
	}
	if mediaType != spa.MediaTypeAudio || mediaSubtype != spa.MediaSubtypeRaw {
		n.logger.Info("rejecting non audio/raw format",
			zap.Uint32("media_type", mediaType),
			zap.Uint32("media_subtype", mediaSubtype))
		return OutcomeRejected
	}

	info, err := spa.ParseRawAudio(obj)
	if err != nil {
		n.logger.Warn("ignoring malformed raw audio format", zap.Error(err))
		return OutcomeMalformed
	}
	if info.Format == spa.AudioFormatUnknown {
		n.logger.Warn("ignoring raw audio format without a sample format")
		return OutcomeMalformed
	}
	if info.Rate == 0 || info.Channels == 0 || info.Channels > spa.MaxChannels {
		n.logger.Warn("ignoring raw audio format out of range",
			zap.Uint32("rate", info.Rate),
			zap.Uint32("channels", info.Channels))
		return OutcomeMalformed
	}
	if len(info.Position) != 0 && len(info.Position) != int(info.Channels) {
		n.logger.Debug("dropping channel positions that do not match the channel count",
			zap.Int("positions", len(info.Position)))
		info.Position = nil
	}

	format := audio.Format{
		MediaType:    mediaType,
		MediaSubtype: mediaSubtype,
		SampleFormat: info.Format,
		SampleRate:   info.Rate,
		Channels:     info.Channels,
		Positions:    info.Position,
	}
	// A repeated proposal keeps the published snapshot.
	if cur := n.format.Load(); cur == nil || !cur.Equal(format) {
		n.format.Store(&format)
	}

	n.logger.Sugar().Infof("capturing rate:%d channels:%d", info.Rate, info.Channels)
	return OutcomeAccepted
}
