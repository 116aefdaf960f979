// ABOUTME: Peak metering package
// ABOUTME: Per-channel peak amplitude, display levels and shared snapshots
// Package meter computes per-channel peak amplitude from interleaved samples.
//
// ComputePeaksInto is safe for realtime callbacks: it writes into caller
// storage and never allocates. Levels publishes the latest peaks to readers
// on other goroutines without locks.
//
// Example:
//
//	peaks := meter.ComputePeaks(view, 2)
//	for ch, p := range peaks {
//	    fmt.Printf("channel %d: level %d\n", ch, meter.Quantize(p))
//	}
package meter
