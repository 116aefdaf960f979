// ABOUTME: Tests for the loopback and tone streams
// ABOUTME: Verifies negotiation, injection and event delivery
package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-capture/pkg/spa"
)

type recorder struct {
	params  [][]byte
	ids     []uint32
	process atomic.Int64
	states  []State
}

func (r *recorder) events() Events {
	return Events{
		ParamChanged: func(id uint32, param []byte) {
			r.ids = append(r.ids, id)
			r.params = append(r.params, param)
		},
		Process: func() { r.process.Add(1) },
		StateChanged: func(_, state State, _ error) {
			r.states = append(r.states, state)
		},
	}
}

func enumRequest(t *testing.T, info spa.RawAudioInfo) [][]byte {
	t.Helper()
	info.Format = spa.AudioFormatF32
	return [][]byte{mustBuild(t, spa.ParamEnumFormat, info)}
}

func TestLoopbackNegotiatesNativeFormat(t *testing.T) {
	rec := &recorder{}
	l := NewLoopback(rec.events(), LoopbackConfig{
		Native: spa.RawAudioInfo{Rate: 44100, Channels: 6},
	}, nil)

	props := Properties{PropTargetObject: "mic"}
	if err := l.Connect(context.Background(), props, enumRequest(t, spa.RawAudioInfo{})); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if len(rec.params) != 1 || rec.ids[0] != spa.ParamFormat {
		t.Fatalf("expected one Format param, got ids %v", rec.ids)
	}
	obj, err := spa.ParseObject(rec.params[0])
	if err != nil {
		t.Fatalf("announced format does not parse: %v", err)
	}
	info, err := spa.ParseRawAudio(obj)
	if err != nil {
		t.Fatalf("raw audio: %v", err)
	}
	if info.Rate != 44100 || info.Channels != 6 || info.Format != spa.AudioFormatF32 {
		t.Errorf("expected native F32 44100/6, got %+v", info)
	}

	if l.Props()[PropTargetObject] != "mic" {
		t.Errorf("expected target property to be kept, got %v", l.Props())
	}
	if last := rec.states[len(rec.states)-1]; last != StateStreaming {
		t.Errorf("expected streaming state, got %v", last)
	}

	if err := l.Connect(context.Background(), props, enumRequest(t, spa.RawAudioInfo{})); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestLoopbackHonoursPinnedValues(t *testing.T) {
	l := NewLoopback(Events{}, LoopbackConfig{}, nil)
	if err := l.Connect(context.Background(), nil, enumRequest(t, spa.RawAudioInfo{Rate: 16000, Channels: 1})); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if got := l.Negotiated(); got.Rate != 16000 || got.Channels != 1 {
		t.Errorf("expected 16000/1, got %+v", got)
	}
}

func TestLoopbackInjectBeforeConnect(t *testing.T) {
	l := NewLoopback(Events{}, LoopbackConfig{}, nil)
	if err := l.Inject([]float32{0}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if _, err := l.DequeueBuffer(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected from dequeue, got %v", err)
	}
}

func TestLoopbackInjectAndDrain(t *testing.T) {
	rec := &recorder{}
	l := NewLoopback(rec.events(), LoopbackConfig{Buffers: 2}, nil)
	if err := l.Connect(context.Background(), nil, enumRequest(t, spa.RawAudioInfo{})); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if err := l.Inject([]float32{0.1, 0.2, 0.3, 0.4}); err != nil {
		t.Fatalf("inject failed: %v", err)
	}
	if err := l.Inject([]float32{0.5, 0.6}); err != nil {
		t.Fatalf("inject failed: %v", err)
	}
	if err := l.Inject([]float32{0.7, 0.8}); !errors.Is(err, ErrOverrun) {
		t.Errorf("expected ErrOverrun with both buffers ready, got %v", err)
	}

	l.Process()
	if rec.process.Load() != 1 {
		t.Errorf("expected one process call, got %d", rec.process.Load())
	}

	b, err := l.DequeueBuffer()
	if err != nil || b == nil {
		t.Fatalf("expected a buffer, got %v (%v)", b, err)
	}
	if b.Size != 16 || b.Stride != 8 {
		t.Errorf("expected 16 bytes with stride 8, got %d/%d", b.Size, b.Stride)
	}
	if err := l.QueueBuffer(b); err != nil {
		t.Errorf("queue failed: %v", err)
	}

	stats := l.Stats()
	if stats.Filled != 2 || stats.Returned != 1 || stats.Overruns != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestLoopbackFailQueue(t *testing.T) {
	l := NewLoopback(Events{}, LoopbackConfig{}, nil)
	if err := l.Connect(context.Background(), nil, enumRequest(t, spa.RawAudioInfo{})); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	boom := errors.New("boom")
	l.FailQueue(boom)
	_ = l.Inject([]float32{1, 1})
	b, _ := l.DequeueBuffer()
	if err := l.QueueBuffer(b); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
	if got := l.Stats().Returned; got != 1 {
		t.Errorf("buffer should still be reclaimed, got %d returns", got)
	}
}

func TestLoopbackBufferPathIgnoresControlLock(t *testing.T) {
	var processed atomic.Int64
	l := NewLoopback(Events{Process: func() { processed.Add(1) }}, LoopbackConfig{}, nil)
	if err := l.Connect(context.Background(), nil, enumRequest(t, spa.RawAudioInfo{})); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		if err := l.Inject([]float32{0.5, -0.5}); err != nil {
			done <- err
			return
		}
		l.Process()
		b, err := l.DequeueBuffer()
		if err != nil {
			done <- err
			return
		}
		done <- l.QueueBuffer(b)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("buffer path failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("buffer path blocked on the control lock")
	}
	if processed.Load() != 1 {
		t.Errorf("expected one process call, got %d", processed.Load())
	}
}

func TestLoopbackFailQueueRestores(t *testing.T) {
	l := NewLoopback(Events{}, LoopbackConfig{}, nil)
	if err := l.Connect(context.Background(), nil, enumRequest(t, spa.RawAudioInfo{})); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	l.FailQueue(errors.New("boom"))
	l.FailQueue(nil)
	_ = l.Inject([]float32{1, 1})
	b, _ := l.DequeueBuffer()
	if err := l.QueueBuffer(b); err != nil {
		t.Errorf("expected queue to succeed after restore, got %v", err)
	}
}

func TestLoopbackDisconnectClearsFormat(t *testing.T) {
	rec := &recorder{}
	l := NewLoopback(rec.events(), LoopbackConfig{}, nil)
	if err := l.Connect(context.Background(), nil, enumRequest(t, spa.RawAudioInfo{})); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := l.Disconnect(); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}

	if len(rec.params) != 2 || len(rec.params[1]) != 0 {
		t.Errorf("expected an empty param after disconnect, got %d params", len(rec.params))
	}
	if err := l.Disconnect(); err != nil {
		t.Errorf("second disconnect should be a no-op, got %v", err)
	}
}

func TestToneGeneratesBuffers(t *testing.T) {
	var processed atomic.Int64
	var tone *Tone
	tone = NewTone(Events{
		Process: func() {
			for {
				b, err := tone.DequeueBuffer()
				if err != nil || b == nil {
					break
				}
				_ = tone.QueueBuffer(b)
			}
			processed.Add(1)
		},
	}, ToneConfig{Frequency: 440, Amplitude: 0.5, Rate: 8000, Channels: 2, Period: time.Millisecond}, nil)

	if err := tone.Connect(context.Background(), nil, enumRequest(t, spa.RawAudioInfo{})); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for processed.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := tone.Disconnect(); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	if processed.Load() < 3 {
		t.Errorf("expected at least 3 process calls, got %d", processed.Load())
	}
	if stats := tone.Stats(); stats.Returned != stats.Dequeued {
		t.Errorf("every dequeued buffer should be returned: %+v", stats)
	}
}

func TestToneFill(t *testing.T) {
	tone := NewTone(Events{}, DefaultToneConfig(), nil)
	buf := make([]float32, 2*480)
	tone.fill(buf, spa.RawAudioInfo{Rate: 48000, Channels: 2})

	var peak0, peak1 float32
	for i := 0; i < len(buf); i += 2 {
		if v := abs(buf[i]); v > peak0 {
			peak0 = v
		}
		if v := abs(buf[i+1]); v > peak1 {
			peak1 = v
		}
	}
	if peak0 < 0.49 || peak0 > 0.5 {
		t.Errorf("channel 0 peak should be about 0.5, got %v", peak0)
	}
	if peak1 < 0.24 || peak1 > 0.25 {
		t.Errorf("channel 1 peak should be about 0.25, got %v", peak1)
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
