package log_service

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestGetLevelValue(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"DEBUG", DebugLevelValue},
		{"info", InfoLevelValue},
		{" warn ", WarnLevelValue},
		{"WARNING", WarnLevelValue},
		{"ERROR", ErrorLevelValue},
		{"bogus", InfoLevelValue},
	}

	for _, tt := range tests {
		if got := GetLevelValue(tt.level); got != tt.want {
			t.Errorf("GetLevelValue(%q) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestWriterLogService_Filtering(t *testing.T) {
	var buf bytes.Buffer
	ls := NewWriterLogService(&buf, "node-1", WarnLevel)

	ls.Debug(LogEvent{Message: "debug line"})
	ls.Info(LogEvent{Message: "info line"})
	ls.Warn(LogEvent{Message: "warn line"})
	ls.Error(LogEvent{Message: "error line"})

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("filtered levels were written: %q", out)
	}
	if !strings.Contains(out, "warn line") || !strings.Contains(out, "error line") {
		t.Errorf("expected warn and error lines, got %q", out)
	}

	buf.Reset()
	ls.DisableFiltering()
	ls.Debug(LogEvent{Message: "debug again"})
	if !strings.Contains(buf.String(), "debug again") {
		t.Errorf("DisableFiltering() did not let debug through: %q", buf.String())
	}
}

func TestFormatLog(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got := FormatLog(InfoLevel, LogEvent{
		Timestamp: ts,
		NodeID:    "n1",
		Message:   "file opened",
		Metadata:  map[string]any{"path": "a.txt", "mode": "READ_ONLY"},
	})

	want := "2024-05-01T12:00:00Z [n1] INFO: file opened mode=READ_ONLY path=a.txt"
	if got != want {
		t.Errorf("FormatLog() = %q, want %q", got, want)
	}
}
