package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newCore tees the enabled outputs. The console sink redacts; the OTEL
// bridge forwards entries to the collector unchanged.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core

	if sink := consoleSink(cfg.Output); sink != nil {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("building redacting encoder: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(sink), cfg.Level))
	}
	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore("ragd", otelzap.WithLoggerProvider(otelProvider)))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("no log output available")
	}
	return zapcore.NewTee(cores...), nil
}

// consoleSink prefers stderr, which MCP stdio mode requires.
func consoleSink(out OutputConfig) *os.File {
	switch {
	case out.Stderr:
		return os.Stderr
	case out.Stdout:
		return os.Stdout
	default:
		return nil
	}
}

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = levelEncoder
	if format == "console" {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// levelEncoder names TraceLevel, which zap would print as "Level(-2)".
func levelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}
