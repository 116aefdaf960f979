// ABOUTME: Capture transport package
// ABOUTME: Stream interface, buffer pool and capture backends
// Package transport delivers captured audio buffers to a capture client.
//
// A Stream is connected with connection properties and a list of encoded
// format requests (see package spa). The backend answers with the format it
// picked through Events.ParamChanged, then calls Events.Process on its
// realtime thread whenever buffers may be ready. The client drains ready
// buffers with DequeueBuffer and hands every one back with QueueBuffer.
//
// Backends:
//   - malgo: miniaudio capture device (default)
//   - pulse: PulseAudio record stream (pure Go)
//   - portaudio: PortAudio input stream (build with -tags portaudio)
//   - tone: generated sine wave, no audio hardware needed
//
// Example:
//
//	stream, err := transport.New("malgo", events, logger)
//	err = stream.Connect(ctx, transport.Properties{transport.PropTargetObject: "mic"}, params)
package transport
