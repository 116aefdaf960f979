//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package transport

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var errPortAudioDisabled = errors.New("PortAudio support not enabled (build with -tags portaudio)")

// PortAudio capture stream (stub)
type PortAudio struct{}

// NewPortAudio creates a new PortAudio stream
func NewPortAudio(_ Events, _ *zap.Logger) Stream {
	return &PortAudio{}
}

// Connect reports that PortAudio is not compiled in
func (p *PortAudio) Connect(context.Context, Properties, [][]byte) error {
	return errPortAudioDisabled
}

// DequeueBuffer reports that PortAudio is not compiled in
func (p *PortAudio) DequeueBuffer() (*Buffer, error) {
	return nil, errPortAudioDisabled
}

// QueueBuffer reports that PortAudio is not compiled in
func (p *PortAudio) QueueBuffer(*Buffer) error {
	return errPortAudioDisabled
}

// Disconnect is a no-op
func (p *PortAudio) Disconnect() error {
	return nil
}
