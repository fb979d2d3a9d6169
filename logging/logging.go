// Package logging builds the zap logger shared by the service binaries.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger at level writing format ("json" or "console") to stderr
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "console", "text":
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = "console"
	case "json", "":
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "json"
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

// Must is New for binaries that cannot start without a logger
func Must(level, format string) *zap.Logger {
	logger, err := New(level, format)
	if err != nil {
		panic(err)
	}
	return logger
}
