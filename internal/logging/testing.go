package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger captures log output for assertions in tests.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a logger recording everything at Trace and above.
func NewTestLogger(t *testing.T) *TestLogger {
	t.Helper()
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// Entries returns all captured entries.
func (tl *TestLogger) Entries() []observer.LoggedEntry {
	return tl.observed.All()
}

// HasMessage reports whether any entry's message contains substr.
func (tl *TestLogger) HasMessage(substr string) bool {
	for _, e := range tl.observed.All() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// CountAtLevel returns the number of entries at exactly lvl.
func (tl *TestLogger) CountAtLevel(lvl zapcore.Level) int {
	n := 0
	for _, e := range tl.observed.All() {
		if e.Level == lvl {
			n++
		}
	}
	return n
}

// AssertLogged fails the test unless a message containing substr was logged.
func (tl *TestLogger) AssertLogged(t *testing.T, substr string) {
	t.Helper()
	if !tl.HasMessage(substr) {
		t.Errorf("expected a log entry containing %q, got %d entries", substr, tl.observed.Len())
	}
}
