// ABOUTME: Logger construction
// ABOUTME: Console-encoded zap logger with its level taken from the environment
package logging

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLevel names the environment variable holding the log level
const EnvLevel = "RESONATE_LOG_LEVEL"

// flushInterval bounds how long buffered lines wait before reaching the
// outputs. Logger.Sync flushes immediately.
const flushInterval = time.Second

// ParseLevel maps debug, info, warn and err to a zap level. Names are
// case-sensitive.
func ParseLevel(s string) (zapcore.Level, bool) {
	switch s {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn":
		return zapcore.WarnLevel, true
	case "err":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// New creates a logger writing to every output. The level comes from
// RESONATE_LOG_LEVEL and defaults to info; an unrecognized value is logged
// and ignored. Output is buffered so logging from the audio callback does
// not write to the outputs directly; call Sync before exit.
func New(outputs ...io.Writer) *zap.Logger {
	value, _ := os.LookupEnv(EnvLevel)
	return build(value, outputs...)
}

func build(value string, outputs ...io.Writer) *zap.Logger {
	level := zapcore.InfoLevel
	valid := true
	if value != "" {
		level, valid = ParseLevel(value)
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(outputs))
	for _, w := range outputs {
		syncers = append(syncers, zapcore.AddSync(w))
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		&zapcore.BufferedWriteSyncer{
			WS:            zapcore.NewMultiWriteSyncer(syncers...),
			FlushInterval: flushInterval,
		},
		zap.NewAtomicLevelAt(level),
	)

	logger := zap.New(core)
	if !valid {
		logger.Error("unrecognized log level, using info",
			zap.String("variable", EnvLevel),
			zap.String("value", value))
	}
	return logger
}
