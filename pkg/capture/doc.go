// ABOUTME: Capture session package
// ABOUTME: Format negotiation, realtime buffer draining and session state
// Package capture implements the client side of a realtime capture stream.
//
// A Session ties together three parts:
//   - Negotiator: builds the format request and interprets the format the
//     graph picks, publishing it as an immutable audio.Format snapshot
//   - Pump: drains the buffer queue on the realtime thread, keeps only the
//     newest buffer and meters it, returning every buffer exactly once
//   - meter.Levels: the latest per-channel peaks for non-realtime readers
//
// Example:
//
//	sess := capture.NewSession(capture.Config{}, logger)
//	stream, err := transport.New("malgo", sess.Events(), logger)
//	err = sess.Connect(ctx, stream)
//	...
//	levels := sess.Levels()
//	err = sess.Close()
package capture
