// Package logger is the process-wide zap logger. Call sites log through the
// package functions with a context so request and actor ids travel along.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "canteiro/internal/core/context"
)

// Logger is a sugared zap logger.
type Logger struct {
	*zap.SugaredLogger
}

// Config selects level and encoding.
type Config struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Development switches to the colored console encoder.
	Development bool
	// Service, when set, is attached to every entry.
	Service     string
	OutputPaths []string
}

// New builds a logger. Production output is JSON on stderr.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}

	z, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	if cfg.Service != "" {
		z = z.With(zap.String("service", cfg.Service))
	}
	return &Logger{z.Sugar()}, nil
}

// Nop discards everything.
func Nop() *Logger { return &Logger{zap.NewNop().Sugar()} }

var (
	mu      sync.RWMutex
	current *Logger
)

// SetDefault installs l as the logger behind the package functions.
func SetDefault(l *Logger) {
	mu.Lock()
	current = l
	mu.Unlock()
}

// Default returns the installed logger, or a JSON stdout logger at info when
// nothing was installed yet.
func Default() *Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		zc := zap.NewProductionConfig()
		zc.OutputPaths = []string{"stdout"}
		z, err := zc.Build(zap.AddCallerSkip(1))
		if err != nil {
			z = zap.NewNop()
		}
		current = &Logger{z.Sugar()}
	}
	return current
}

// WithContext returns l annotated with the request's trace ids and the
// acting subject, when ctx carries them.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var fields []any
	if t := appctx.GetTrace(ctx); t != nil {
		fields = append(fields, "trace_id", t.TraceID, "request_id", t.RequestID)
	}
	if a := appctx.GetActor(ctx); a != nil {
		fields = append(fields, "actor", a.Subject)
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{l.SugaredLogger.With(fields...)}
}

func Info(ctx context.Context, msg string, kv ...any) {
	Default().WithContext(ctx).Infow(msg, kv...)
}

func Warn(ctx context.Context, msg string, kv ...any) {
	Default().WithContext(ctx).Warnw(msg, kv...)
}

func Error(ctx context.Context, msg string, kv ...any) {
	Default().WithContext(ctx).Errorw(msg, kv...)
}
