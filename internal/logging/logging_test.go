package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"nope", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := LevelFromString(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Stdout = false
	cfg.OTEL = false
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Redaction.Patterns = []string{"("}
	assert.Error(t, cfg.Validate())
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))

	ctx = WithRunID(ctx, "run-1")
	ctx = WithCallID(ctx, "call-9")
	ctx = WithOrgID(ctx, "org-42")

	fields := ContextFields(ctx)
	require.Len(t, fields, 3)
	assert.Equal(t, zap.String("run_id", "run-1"), fields[0])
	assert.Equal(t, zap.String("call_id", "call-9"), fields[1])
	assert.Equal(t, zap.String("org_id", "org-42"), fields[2])
}

func TestFromContextFallsBackToNop(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger(t)
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestLoggerEmitsCorrelationFields(t *testing.T) {
	tl := NewTestLogger(t)
	ctx := WithRunID(context.Background(), "run-7")

	tl.Info(ctx, "stage complete", zap.String("stage", "classification"))

	entries := tl.Entries()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "run-7", fields["run_id"])
	assert.Equal(t, "classification", fields["stage"])
}

func TestTraceLevelFiltered(t *testing.T) {
	tl := NewTestLogger(t)
	tl.Trace(context.Background(), "raw payload")
	assert.Equal(t, 1, tl.CountAtLevel(TraceLevel))
}

func TestRedactingEncoderMasksFields(t *testing.T) {
	cfg := NewDefaultConfig().Redaction
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), cfg)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "auth"}, []zapcore.Field{
		zap.String("api_key", "sk-ant-secret"),
		zap.String("note", "Bearer abc123 attached"),
		zap.String("carrier", "Knight Trucking"),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "sk-ant-secret")
	assert.NotContains(t, out, "abc123")
	assert.Contains(t, out, "Knight Trucking")
	assert.Contains(t, out, redactedPlaceholder)
}

func TestRedactionDisabledPassthrough(t *testing.T) {
	base := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	enc, err := NewRedactingEncoder(base, RedactionConfig{Enabled: false})
	require.NoError(t, err)
	assert.Same(t, base, enc)
}
