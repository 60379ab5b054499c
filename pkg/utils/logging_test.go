package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", "debug", DEBUG, false},
		{"info", "INFO", INFO, false},
		{"warn", "warn", WARN, false},
		{"warning alias", "Warning", WARN, false},
		{"error", "error", ERROR, false},
		{"empty defaults to info", "", INFO, false},
		{"invalid", "verbose", INFO, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level LogLevel
		want  string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{LogLevel(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(WARN, &buf)

	logger.Debug("debug line")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("low-level lines leaked through: %q", out)
	}
	if !strings.Contains(out, "warn line") || !strings.Contains(out, "error line") {
		t.Errorf("expected warn and error lines, got: %q", out)
	}
}

func TestLogger_WithComponent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewLogger(INFO, &buf).WithComponent("topology")

	logger.Info("refresh started for %s", "http://a:8080")

	out := buf.String()
	if !strings.Contains(out, "topology:") {
		t.Errorf("component prefix missing: %q", out)
	}
	if !strings.Contains(out, "refresh started for http://a:8080") {
		t.Errorf("message missing: %q", out)
	}
}
