package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestRuntimeLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("levels below warn leaked into output: %q", out)
	}
	if !strings.Contains(out, "warn line") || !strings.Contains(out, "error line") {
		t.Errorf("warn/error lines missing from output: %q", out)
	}
}

func TestRuntimeLogger_ContextualAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf}).
		WithComponent("engine").
		WithAgent("a1", "s1").
		WithContext("turn_id", "t1")

	logger.Info("processing")

	out := buf.String()
	for _, want := range []string{`"component":"engine"`, `"agent_id":"a1"`, `"session_id":"s1"`, `"turn_id":"t1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %q", want, out)
		}
	}
}

func TestRuntimeLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})
	_ = parent.WithComponent("child").WithContext("k", "v")

	parent.Info("from parent")

	out := buf.String()
	if strings.Contains(out, "child") || strings.Contains(out, `"k":"v"`) {
		t.Errorf("child attributes leaked into parent output: %q", out)
	}
}

func TestLogLevelString(t *testing.T) {
	cases := map[LogLevel]string{
		LogLevelDebug: "DEBUG",
		LogLevelInfo:  "INFO",
		LogLevelWarn:  "WARN",
		LogLevelError: "ERROR",
		LogLevel(99):  "UNKNOWN",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", level, got, want)
		}
	}
}
