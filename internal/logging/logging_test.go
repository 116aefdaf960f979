// ABOUTME: Tests for logger construction
// ABOUTME: Verifies level parsing and environment handling
package logging

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/Resonate-Protocol/resonate-capture/pkg/capture"
	"github.com/Resonate-Protocol/resonate-capture/pkg/transport"
	"go.uber.org/zap/zapcore"
)

// countingWriter records output and the number of Write calls
type countingWriter struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	calls int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return w.buf.Write(p)
}

func (w *countingWriter) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func (w *countingWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		level zapcore.Level
		ok    bool
	}{
		{"debug", zapcore.DebugLevel, true},
		{"info", zapcore.InfoLevel, true},
		{"warn", zapcore.WarnLevel, true},
		{"err", zapcore.ErrorLevel, true},
		{"error", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.InfoLevel, false},
		{"Info", zapcore.InfoLevel, false},
		{"verbose", zapcore.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, ok := ParseLevel(tt.input)
			if ok != tt.ok || level != tt.level {
				t.Errorf("ParseLevel(%q) = %v, %v; expected %v, %v", tt.input, level, ok, tt.level, tt.ok)
			}
		})
	}
}

func TestBuildFiltersByLevel(t *testing.T) {
	tests := []struct {
		value     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"", false, true, true},
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"err", false, false, false},
	}

	for _, tt := range tests {
		t.Run("level="+tt.value, func(t *testing.T) {
			var buf countingWriter
			logger := build(tt.value, &buf)
			logger.Debug("debug line")
			logger.Info("info line")
			logger.Warn("warn line")
			_ = logger.Sync()

			out := buf.String()
			if strings.Contains(out, "debug line") != tt.wantDebug {
				t.Errorf("debug output: expected %v in %q", tt.wantDebug, out)
			}
			if strings.Contains(out, "info line") != tt.wantInfo {
				t.Errorf("info output: expected %v in %q", tt.wantInfo, out)
			}
			if strings.Contains(out, "warn line") != tt.wantWarn {
				t.Errorf("warn output: expected %v in %q", tt.wantWarn, out)
			}
		})
	}
}

func TestBuildReportsUnrecognizedLevel(t *testing.T) {
	var buf countingWriter
	logger := build("DEBUG", &buf)
	_ = logger.Sync()

	out := buf.String()
	if !strings.Contains(out, "unrecognized log level") || !strings.Contains(out, "DEBUG") {
		t.Errorf("expected unrecognized level error, got %q", out)
	}

	logger.Debug("debug line")
	logger.Info("info line")
	_ = logger.Sync()
	out = strings.TrimPrefix(buf.String(), out)
	if strings.Contains(out, "debug line") || !strings.Contains(out, "info line") {
		t.Errorf("expected info level to be kept, got %q", out)
	}
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv(EnvLevel, "warn")

	var buf countingWriter
	logger := New(&buf)
	logger.Info("info line")
	logger.Warn("warn line")
	_ = logger.Sync()

	out := buf.String()
	if strings.Contains(out, "info line") || !strings.Contains(out, "warn line") {
		t.Errorf("expected warn level from environment, got %q", out)
	}
}

func TestNewWritesToAllOutputs(t *testing.T) {
	t.Setenv(EnvLevel, "info")

	var a, b countingWriter
	logger := New(&a, &b)
	logger.Info("hello")
	_ = logger.Sync()
	if !strings.Contains(a.String(), "hello") || !strings.Contains(b.String(), "hello") {
		t.Error("expected both outputs to receive the line")
	}
}

func TestProcessDoesNotWriteToOutputs(t *testing.T) {
	t.Setenv(EnvLevel, "info")

	var out countingWriter
	logger := New(&out)

	sess := capture.NewSession(capture.Config{}, logger)
	l := transport.NewLoopback(sess.Events(), transport.LoopbackConfig{}, nil)
	if err := sess.Connect(context.Background(), l); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer sess.Close()

	before := out.Calls()
	for i := 0; i < 3; i++ {
		if err := l.Inject([]float32{0.1, -0.2, 0.3, -0.4}); err != nil {
			t.Fatal(err)
		}
		l.Process()
	}
	if calls := out.Calls() - before; calls != 0 {
		t.Errorf("expected no output writes during process, got %d", calls)
	}
	if got := sess.Stats().Processed; got != 3 {
		t.Fatalf("expected 3 processed buffers, got %d", got)
	}

	if err := logger.Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if out.Calls() == before || strings.Count(out.String(), "captured") != 3 {
		t.Errorf("expected captured lines after sync, got %q", out.String())
	}
}
