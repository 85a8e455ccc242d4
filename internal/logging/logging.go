// Package logging builds the zap loggers used across wagateway and bridges
// whatsmeow's logger interface onto them.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/KafClaw/wagateway/internal/config"
)

// New builds a logger from cfg. Format "json" selects the production
// encoder, anything else a console encoder.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.Development = false
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = level > zapcore.DebugLevel

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// waLogger adapts a zap logger to whatsmeow's waLog.Logger.
type waLogger struct {
	s *zap.SugaredLogger
}

// WhatsApp returns a waLog.Logger writing to l. Entries below minLevel are
// dropped so chatty adapter internals can be muted per module.
func WhatsApp(l *zap.Logger, minLevel zapcore.Level) waLog.Logger {
	if l.Core().Enabled(minLevel) {
		l = l.WithOptions(zap.IncreaseLevel(minLevel))
	}
	return &waLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (w *waLogger) Errorf(msg string, args ...interface{}) { w.s.Errorf(msg, args...) }
func (w *waLogger) Warnf(msg string, args ...interface{})  { w.s.Warnf(msg, args...) }
func (w *waLogger) Infof(msg string, args ...interface{})  { w.s.Infof(msg, args...) }
func (w *waLogger) Debugf(msg string, args ...interface{}) { w.s.Debugf(msg, args...) }

func (w *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{s: w.s.Named(module)}
}
