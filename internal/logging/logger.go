// Package logging builds the zap logger used across swarmd.
//
// Two modes are supported: "production" emits JSON to stderr, while
// "development" emits console output with colored levels. Services
// receive the resulting *zap.Logger directly.
package logging

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger for the given mode.
func New(mode string) (*zap.Logger, error) {
	switch mode {
	case "production":
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	case "development":
		return zap.NewDevelopment()
	default:
		return nil, fmt.Errorf("unknown logging mode: %q", mode)
	}
}

// Sync flushes buffered log entries. Sync errors on stdout/stderr are
// ignored; on Linux these return EINVAL or ENOTTY.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err != nil && isStdoutSyncError(err) {
		return nil
	}
	return err
}

func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
