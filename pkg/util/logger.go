package util

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger from a level name such as
// "DEBUG", "INFO", "WARNING" or "ERROR" (case-insensitive).
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil
	return cfg.Build()
}

// ParseLevel maps a log level name onto a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(level))
	switch name {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		name = "warn"
	case "critical":
		name = "fatal"
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// Track logs how long an operation took, at debug level.
//
//	defer util.Track(log, "list_checks")()
func Track(log *zap.Logger, op string) func() {
	start := time.Now()
	return func() {
		log.Debug("operation finished", zap.String("op", op), zap.Duration("elapsed", time.Since(start)))
	}
}
