// Package logging builds the process-wide logger. Records are written through
// zap while call sites use the standard slog API.
package logging

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// New returns an slog.Logger backed by a zap core, plus a sync func that
// flushes buffered output. format is "json" or "console".
func New(level, format string) (*slog.Logger, func() error, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	encoding := "json"
	if strings.EqualFold(format, "console") {
		encoding = "console"
	}

	zcfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	zl, err := zcfg.Build(zap.AddStacktrace(zap.DPanicLevel))
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger: %w", err)
	}

	return FromCore(zl.Core()), zl.Sync, nil
}

// FromCore wraps an existing zap core. Tests use it with zaptest/observer.
func FromCore(core zapcore.Core) *slog.Logger {
	return slog.New(zapslog.NewHandler(core, zapslog.WithCaller(true)))
}

// ParseLevel maps LOG_LEVEL values to zap levels.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}
