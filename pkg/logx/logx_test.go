package logx

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// setupTestLogger redirects log output into a buffer for the duration of a test.
func setupTestLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })
	return &buf
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("invoker")
	if logger.GetComponent() != "invoker" {
		t.Errorf("Expected component 'invoker', got '%s'", logger.GetComponent())
	}
}

func TestLogFormat(t *testing.T) {
	buf := setupTestLogger(t)

	logger := NewLogger("invoker")
	logger.Info("Test message with %s", "formatting")

	output := buf.String()
	if !strings.Contains(output, "[invoker]") {
		t.Errorf("Expected component in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}
	if !strings.Contains(output, "Test message with formatting") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}
}

func TestLogLevels(t *testing.T) {
	logger := NewLogger("test-component")

	tests := []struct {
		level    Level
		logFunc  func(string, ...any)
		expected string
	}{
		{LevelDebug, logger.Debug, "DEBUG"},
		{LevelInfo, logger.Info, "INFO"},
		{LevelWarn, logger.Warn, "WARN"},
		{LevelError, logger.Error, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := setupTestLogger(t)

			if tt.level == LevelDebug {
				SetDebugConfig(true, nil)
				defer SetDebugConfig(false, nil)
			}

			tt.logFunc("test message")

			if !strings.Contains(buf.String(), tt.expected) {
				t.Errorf("Expected level '%s' in output, got: %s", tt.expected, buf.String())
			}
		})
	}
}

func TestDebugDisabledByDefault(t *testing.T) {
	buf := setupTestLogger(t)
	SetDebugConfig(false, nil)

	NewLogger("invoker").Debug("hidden")

	if buf.Len() != 0 {
		t.Errorf("Expected no output with debug disabled, got: %s", buf.String())
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	SetDebugConfig(true, []string{"invoker", " http "})
	defer SetDebugConfig(false, nil)

	if !IsDebugEnabledForDomain("invoker") {
		t.Error("Expected invoker domain enabled")
	}
	if !IsDebugEnabledForDomain("http") {
		t.Error("Expected trimmed http domain enabled")
	}
	if IsDebugEnabledForDomain("ledger") {
		t.Error("Expected ledger domain disabled")
	}
}

func TestContextDebugIncludesRequestID(t *testing.T) {
	buf := setupTestLogger(t)
	SetDebugConfig(true, nil)
	defer SetDebugConfig(false, nil)

	ctx := WithRequestID(context.Background(), "req-42")
	Debug(ctx, "invoker", "attempt %d", 2)

	output := buf.String()
	if !strings.Contains(output, "(req-42) attempt 2") {
		t.Errorf("Expected request ID prefix, got: %s", output)
	}
	if !strings.Contains(output, "[invoker]") {
		t.Errorf("Expected domain as component, got: %s", output)
	}
}

func TestRequestIDMissing(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("Expected empty request ID, got %q", got)
	}
}

func TestWithComponent(t *testing.T) {
	buf := setupTestLogger(t)

	original := NewLogger("agent")
	sub := original.WithComponent("agent-chatbot")

	original.Info("one")
	sub.Info("two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[agent]") || !strings.Contains(lines[1], "[agent-chatbot]") {
		t.Errorf("Unexpected components: %v", lines)
	}
}

func TestTimestampFormat(t *testing.T) {
	buf := setupTestLogger(t)

	NewLogger("test").Info("timestamp test")

	output := buf.String()
	start := strings.Index(output, "[")
	end := strings.Index(output, "]")
	if start == -1 || end == -1 || end <= start {
		t.Fatalf("Could not find timestamp in output: %s", output)
	}

	if _, err := time.Parse(timestampFormat, output[start+1:end]); err != nil {
		t.Errorf("Invalid timestamp format '%s': %v", output[start+1:end], err)
	}
}

func TestWrap(t *testing.T) {
	buf := setupTestLogger(t)

	if Wrap(nil, "noop") != nil {
		t.Error("Expected nil for nil error")
	}

	base := errors.New("disk full")
	err := Wrap(base, "open ledger")
	if !errors.Is(err, base) {
		t.Error("Expected wrapped error to match base")
	}
	if err.Error() != "open ledger: disk full" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
	if !strings.Contains(buf.String(), "ERROR: open ledger: disk full") {
		t.Errorf("Expected error to be logged, got: %s", buf.String())
	}
}

func TestErrorf(t *testing.T) {
	buf := setupTestLogger(t)

	base := errors.New("boom")
	err := Errorf("setup failed: %w", base)
	if !errors.Is(err, base) {
		t.Error("Expected Errorf to wrap with %w")
	}
	if !strings.Contains(buf.String(), "setup failed: boom") {
		t.Errorf("Expected error to be logged, got: %s", buf.String())
	}
}
