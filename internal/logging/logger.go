package logging

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a zap logger whose methods take a context and prepend its
// correlation fields (trace, tenant, request, document).
type Logger struct {
	zap *zap.Logger
}

// NewLogger builds a Logger from cfg. A nil otelProvider disables the OTEL
// output even when cfg requests it.
func NewLogger(cfg *Config, otelProvider log.LoggerProvider) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	core, err := newCore(cfg, otelProvider)
	if err != nil {
		return nil, err
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel), zap.Fields(constantFields(cfg.Fields)...)}
	if cfg.Caller {
		// Skip log() and the level method.
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(2))
	}
	return &Logger{zap: zap.New(core, opts...)}, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

func constantFields(m map[string]string) []zap.Field {
	fields := make([]zap.Field, 0, len(m))
	for k, v := range m {
		fields = append(fields, zap.String(k, v))
	}
	return fields
}

func (l *Logger) Trace(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, TraceLevel, msg, fields)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

// log builds context fields only for entries that will be written.
func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	ce := l.zap.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(append(ContextFields(ctx), fields...)...)
}

// Enabled reports whether entries at level are written.
func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
}

// Sync flushes buffered entries. The EINVAL or ENOTTY returned for a
// terminal or pipe is not an error.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}

// Underlying returns the zap logger for libraries that take one.
func (l *Logger) Underlying() *zap.Logger {
	return l.zap
}
