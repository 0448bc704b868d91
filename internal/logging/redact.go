package logging

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const redactedPlaceholder = "[REDACTED]"

// RedactionConfig controls field and pattern based redaction.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string // field names redacted by substring match, case-insensitive
	Patterns []string // regex patterns redacted inside string values
}

// Validate compiles the patterns to surface errors early.
func (c RedactionConfig) Validate() error {
	for _, p := range c.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
	}
	return nil
}

// redactingEncoder wraps an encoder and masks sensitive fields before they
// reach the sink. API keys and rate-confirmation auth tokens must never
// appear in run logs.
type redactingEncoder struct {
	zapcore.Encoder
	fields   []string
	patterns []*regexp.Regexp
}

// NewRedactingEncoder wraps enc with redaction. When disabled, enc is
// returned unchanged.
func NewRedactingEncoder(enc zapcore.Encoder, cfg RedactionConfig) (zapcore.Encoder, error) {
	if !cfg.Enabled {
		return enc, nil
	}
	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	fields := make([]string, len(cfg.Fields))
	for i, f := range cfg.Fields {
		fields[i] = strings.ToLower(f)
	}
	return &redactingEncoder{Encoder: enc, fields: fields, patterns: patterns}, nil
}

func (e *redactingEncoder) Clone() zapcore.Encoder {
	return &redactingEncoder{
		Encoder:  e.Encoder.Clone(),
		fields:   e.fields,
		patterns: e.patterns,
	}
}

func (e *redactingEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	redacted := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		redacted[i] = e.redactField(f)
	}
	return e.Encoder.EncodeEntry(entry, redacted)
}

func (e *redactingEncoder) redactField(f zapcore.Field) zapcore.Field {
	if e.sensitiveKey(f.Key) {
		f.Type = zapcore.StringType
		f.String = redactedPlaceholder
		f.Interface = nil
		f.Integer = 0
		return f
	}
	if f.Type == zapcore.StringType {
		f.String = e.redactValue(f.String)
	}
	return f
}

func (e *redactingEncoder) sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, f := range e.fields {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

func (e *redactingEncoder) redactValue(v string) string {
	for _, re := range e.patterns {
		v = re.ReplaceAllString(v, redactedPlaceholder)
	}
	return v
}
