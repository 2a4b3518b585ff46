// Package logging adapts zap to snapmink.Logger.
//
// snapmink logs with alternating key/value pairs, which map directly onto
// zap's sugared logger:
//
//	logger, _ := logging.New("info", false)
//	repo := snapmink.NewSnapshottingRepositoryFromStore(store, snapshots, factory,
//	    snapmink.WithSnapshotLogger(logger))
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AshkanYarmoradi/go-snapmink"
)

// ZapLogger implements snapmink.Logger on a zap.SugaredLogger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ snapmink.Logger = (*ZapLogger)(nil)

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{sugar: logger.Sugar()}
}

// New builds a zap logger at the given level. Development mode uses the
// console encoder, production mode JSON.
func New(level string, development bool) (*ZapLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("snapmink/logging: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("snapmink/logging: build logger: %w", err)
	}
	return NewZapLogger(logger), nil
}

// With returns a logger that adds the given key/value pairs to every entry.
func (l *ZapLogger) With(args ...interface{}) *ZapLogger {
	return &ZapLogger{sugar: l.sugar.With(args...)}
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.sugar.Errorw(msg, args...) }

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
