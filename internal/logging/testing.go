package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger that keeps every entry in memory, down to
// TraceLevel, for assertions in tests.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{Logger: &Logger{zap: zap.New(core)}, logs: logs}
}

// Entries returns the entries at level whose message contains snippet.
func (t *TestLogger) Entries(level zapcore.Level, snippet string) []observer.LoggedEntry {
	return t.logs.FilterLevelExact(level).FilterMessageSnippet(snippet).All()
}

// AssertLogged fails tb unless an entry at level contains snippet.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, snippet string) {
	tb.Helper()
	if len(t.Entries(level, snippet)) == 0 {
		tb.Errorf("no %v entry containing %q; got %+v", level, snippet, t.logs.All())
	}
}

// AssertField fails tb unless an entry containing snippet carries key with
// the expected value.
func (t *TestLogger) AssertField(tb testing.TB, snippet, key string, expected any) {
	tb.Helper()
	for _, e := range t.logs.FilterMessageSnippet(snippet).All() {
		if v, ok := e.ContextMap()[key]; ok && v == expected {
			return
		}
	}
	tb.Errorf("no entry containing %q with %s=%v", snippet, key, expected)
}
