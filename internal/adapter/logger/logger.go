package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Info(action, message, requestID string, details map[string]interface{})
	Debug(action, message, requestID string, details map[string]interface{})
	Error(action, message, requestID string, details map[string]interface{}, err error)
}

type zapLogger struct {
	base *zap.Logger
}

// New builds a JSON logger tagged with the service name and hostname.
// level is one of debug, info, error; anything else means info.
func New(service, level string) Logger {
	hostname, _ := os.Hostname()

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	cfg.Sampling = nil

	base, err := cfg.Build()
	if err != nil {
		base = zap.NewNop()
	}
	return FromZap(base.With(
		zap.String("service", service),
		zap.String("hostname", hostname),
	))
}

// FromZap wraps an existing zap logger.
func FromZap(base *zap.Logger) Logger {
	return &zapLogger{base: base}
}

// NewNop discards everything. Used in tests.
func NewNop() Logger {
	return &zapLogger{base: zap.NewNop()}
}

func (l *zapLogger) Info(action, message, requestID string, details map[string]interface{}) {
	l.base.Info(message, fields(action, requestID, details, nil)...)
}

func (l *zapLogger) Debug(action, message, requestID string, details map[string]interface{}) {
	l.base.Debug(message, fields(action, requestID, details, nil)...)
}

func (l *zapLogger) Error(action, message, requestID string, details map[string]interface{}, err error) {
	l.base.Error(message, fields(action, requestID, details, err)...)
}

func fields(action, requestID string, details map[string]interface{}, err error) []zap.Field {
	out := make([]zap.Field, 0, 4)
	out = append(out, zap.String("action", action))
	if requestID != "" {
		out = append(out, zap.String("request_id", requestID))
	}
	if len(details) > 0 {
		out = append(out, zap.Any("details", details))
	}
	if err != nil {
		out = append(out, zap.Error(err))
	}
	return out
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
