package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

func newBufferLogger(level Level, format Format) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Format: format, Output: &buf}), &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"Error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("JSON") != FormatJSON {
		t.Error("expected JSON format")
	}
	if ParseFormat("console") != FormatText {
		t.Error("expected text format fallback")
	}
	if FormatJSON.String() != "json" || FormatText.String() != "text" {
		t.Error("unexpected format names")
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(LevelWarn, FormatText)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message should be logged: %s", out)
	}
	if logger.Enabled(context.Background(), LevelDebug) {
		t.Error("debug should be disabled at warn level")
	}
}

func TestWithTraceAndStep(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, FormatJSON)

	logger.WithTrace("trace-1").WithStep(2, "echo").Info("step admitted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["trace"] != "trace-1" {
		t.Errorf("expected trace attribute, got %v", entry["trace"])
	}
	if entry["task"] != "echo" {
		t.Errorf("expected task attribute, got %v", entry["task"])
	}
	if entry["step"] != float64(2) {
		t.Errorf("expected step attribute 2, got %v", entry["step"])
	}
}

func TestWithError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantMsg  string
	}{
		{
			name:     "coded error",
			err:      errors.Wrap(errors.ErrCodeAuditWrite, "append failed", fmt.Errorf("disk full")).WithSuggestion("free space"),
			wantCode: "AUDIT-002",
			wantMsg:  "append failed",
		},
		{
			name:    "plain error",
			err:     fmt.Errorf("boom"),
			wantMsg: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferLogger(LevelInfo, FormatJSON)
			logger.WithError(tt.err).Error("failed")

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("log line is not JSON: %v", err)
			}
			if entry["error"] != tt.wantMsg {
				t.Errorf("error = %v, want %q", entry["error"], tt.wantMsg)
			}
			if tt.wantCode != "" && entry["error_code"] != tt.wantCode {
				t.Errorf("error_code = %v, want %q", entry["error_code"], tt.wantCode)
			}
		})
	}
}

func TestWithErrorNil(t *testing.T) {
	logger := Discard()
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestDefaultLogger(t *testing.T) {
	custom := Discard()
	SetDefaultLogger(custom)
	t.Cleanup(func() { SetDefaultLogger(nil) })

	if DefaultLogger() != custom {
		t.Error("expected configured default logger")
	}
}
