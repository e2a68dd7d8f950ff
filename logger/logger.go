// Package logger provides structured logging for the MyCoach backend.
//
// This package wraps Uber's zap logger. It initializes a global logger
// instance configured from LOG_LEVEL. Log fields must never contain
// plaintext PII values, verification codes, or key material; identifiers
// and outcomes only.
//
//	logger.Log.Info("phone verification requested",
//	    zap.String("user_id", userID),
//	)
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

func Init(level string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	Log, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}
