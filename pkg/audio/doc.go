// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and SampleView types shared by capture and metering
// Package audio provides the fundamental audio types of the capture client.
//
// This package defines core types used throughout the library:
//   - Format: the negotiated stream format (media type, sample format, rate, channels)
//   - SampleView: a borrowed view of interleaved float32 samples in a transport buffer
//
// Example:
//
//	view := audio.NewSampleView(buf.Bytes())
//	for i := 0; i < view.Len(); i++ {
//	    s := view.At(i)
//	    ...
//	}
package audio
