// ABOUTME: Tests for published levels
// ABOUTME: Verifies snapshots, channel limits and concurrent access
package meter

import (
	"sync"
	"testing"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
)

func TestLevelsSnapshot(t *testing.T) {
	var l Levels

	if r := l.Snapshot(); len(r.Peaks) != 0 || r.Updates != 0 {
		t.Errorf("expected empty initial snapshot, got %+v", r)
	}

	l.Store([]float32{0.25, 0.5})
	r := l.Snapshot()
	if len(r.Peaks) != 2 || r.Peaks[0] != 0.25 || r.Peaks[1] != 0.5 {
		t.Errorf("unexpected peaks %v", r.Peaks)
	}
	if r.Updates != 1 {
		t.Errorf("expected 1 update, got %d", r.Updates)
	}

	q := r.Quantized()
	if q[0] != 8 || q[1] != 15 {
		t.Errorf("unexpected quantized levels %v", q)
	}

	l.Reset()
	if r := l.Snapshot(); len(r.Peaks) != 0 {
		t.Errorf("expected no channels after reset, got %v", r.Peaks)
	}
}

func TestLevelsChannelLimit(t *testing.T) {
	var l Levels
	l.Store(make([]float32, spa.MaxChannels+8))
	if n := len(l.Snapshot().Peaks); n != spa.MaxChannels {
		t.Errorf("expected %d channels, got %d", spa.MaxChannels, n)
	}
}

func TestLevelsConcurrent(t *testing.T) {
	var l Levels
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		peaks := []float32{0.1, 0.2}
		for i := 0; i < 1000; i++ {
			l.Store(peaks)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r := l.Snapshot()
			if len(r.Peaks) != 0 && len(r.Peaks) != 2 {
				t.Errorf("unexpected channel count %d", len(r.Peaks))
				return
			}
		}
	}()
	wg.Wait()

	if got := l.Snapshot().Updates; got != 1000 {
		t.Errorf("expected 1000 updates, got %d", got)
	}
}
