package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes one JSON entry per action, tagged with the owning service.
type Logger struct {
	service string
	z       *zap.Logger
}

func New(service string) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(levelFromEnv())
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "action"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return wrap(service, z.With(zap.String("hostname", hostname())))
}

// NewNop discards everything. Used by tests.
func NewNop() *Logger { return wrap("nop", zap.NewNop()) }

// NewWithCore builds a logger on top of an arbitrary zap core.
func NewWithCore(service string, core zapcore.Core) *Logger { return wrap(service, zap.New(core)) }

func wrap(service string, z *zap.Logger) *Logger {
	return &Logger{service: service, z: z.With(zap.String("service", service))}
}

// Named returns a logger for a sub-component sharing the same sink.
func (l *Logger) Named(service string) *Logger {
	return &Logger{service: service, z: l.z.With(zap.String("component", service))}
}

func (l *Logger) Info(action string, fields map[string]any)  { l.z.Info(action, toZap(fields)...) }
func (l *Logger) Debug(action string, fields map[string]any) { l.z.Debug(action, toZap(fields)...) }
func (l *Logger) Warn(action string, fields map[string]any)  { l.z.Warn(action, toZap(fields)...) }

func (l *Logger) Error(action string, err error, fields map[string]any) {
	zf := toZap(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	l.z.Error(action, zf...)
}

func (l *Logger) Sync() { _ = l.z.Sync() }

func toZap(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func levelFromEnv() zapcore.Level {
	lvl := zapcore.InfoLevel
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		_ = lvl.Set(s)
	}
	return lvl
}

func hostname() string { h, _ := os.Hostname(); return h }
