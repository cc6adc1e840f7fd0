package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/felman/modulos_backend/internal/config"
)

// New builds the service logger. Debug and test environments log at debug level.
func New(serviceName, environment string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch environment {
	case config.DebugMode, config.TestMode:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("service", serviceName)), nil
}

// Cleanup flushes buffered entries.
func Cleanup(log *zap.Logger) {
	if log == nil {
		return
	}
	_ = log.Sync()
}
