// Package hotpath provides a low-allocation logger for the engine's highest
// frequency code paths: the executor worker pool and the per-target result
// processor shards, where every probe and every check passes through a
// single log statement and logrus's field-map allocation would be wasteful
// at that volume.
package hotpath

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.SugaredLogger writing JSON to stdout at the level named
// by LOG_LEVEL (default info).
func New() *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))); raw != "" {
		_ = level.UnmarshalText([]byte(raw))
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger.Sugar()
}

// Noop returns a logger that discards everything, used in unit tests that
// don't want hot-path log noise.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
