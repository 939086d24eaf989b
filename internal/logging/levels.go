package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel is below Debug and logs per-fragment detail during ingestion.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a configured level. It is case-insensitive and
// accepts "trace" and "warning" in addition to zap's names.
func LevelFromString(level string) (zapcore.Level, error) {
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "trace":
		return TraceLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	default:
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(s)); err != nil {
			return zapcore.InfoLevel, err
		}
		return l, nil
	}
}
