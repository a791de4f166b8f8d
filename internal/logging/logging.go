package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnv selects the log level when --verbose is not given.
const LevelEnv = "DUCKSWARM_LOG_LEVEL"

// New builds a production JSON logger. verbose forces debug level; otherwise
// DUCKSWARM_LOG_LEVEL is honored, defaulting to info.
func New(verbose bool) (*zap.Logger, error) {
	level, err := resolveLevel(verbose, os.Getenv(LevelEnv))
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func resolveLevel(verbose bool, env string) (zapcore.Level, error) {
	if verbose {
		return zapcore.DebugLevel, nil
	}
	env = strings.TrimSpace(env)
	if env == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(env)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("%s: %w", LevelEnv, err)
	}
	return level, nil
}
