package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const redactedValue = "[REDACTED]"

// RedactedString creates a field that records only the length of val.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// RedactingEncoder wraps a zapcore.Encoder and redacts sensitive keys and
// credential-looking values, both in per-entry fields and in fields added
// with Logger.With.
type RedactingEncoder struct {
	zapcore.Encoder
	redactFields map[string]bool
	redactRegex  []*regexp.Regexp
}

// NewRedactingEncoder wraps an encoder with redaction rules.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}

	fields := make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		fields[strings.ToLower(f)] = true
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &RedactingEncoder{
		Encoder:      base,
		redactFields: fields,
		redactRegex:  patterns,
	}, nil
}

func (e *RedactingEncoder) shouldRedactKey(key string) bool {
	return e.redactFields[strings.ToLower(key)]
}

func (e *RedactingEncoder) redactValue(val string) string {
	for _, re := range e.redactRegex {
		val = re.ReplaceAllString(val, redactedValue)
	}
	return val
}

func (e *RedactingEncoder) redactField(f zapcore.Field) zapcore.Field {
	if e.shouldRedactKey(f.Key) {
		return zap.String(f.Key, redactedValue)
	}
	if f.Type == zapcore.StringType {
		f.String = e.redactValue(f.String)
	}
	return f
}

// EncodeEntry redacts the message and per-entry fields before encoding.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if len(e.redactFields) == 0 && len(e.redactRegex) == 0 {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	redacted := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		redacted[i] = e.redactField(f)
	}
	ent.Message = e.redactValue(ent.Message)
	return e.Encoder.EncodeEntry(ent, redacted)
}

// AddString redacts fields attached with Logger.With.
func (e *RedactingEncoder) AddString(key, val string) {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, redactedValue)
		return
	}
	e.Encoder.AddString(key, e.redactValue(val))
}

// AddReflected redacts the whole value when the key is sensitive.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// Clone creates a copy of the encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:      e.Encoder.Clone(),
		redactFields: e.redactFields,
		redactRegex:  e.redactRegex,
	}
}
