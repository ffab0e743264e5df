package logutil

import (
	"log/slog"
	"testing"
)

func TestParseSlogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := parseSlogLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseSlogLevel(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && got != tc.want {
			t.Errorf("parseSlogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewLoggerFromConfig(t *testing.T) {
	for _, format := range []string{"", "text", "json"} {
		if _, err := newLoggerFromConfig(loggerConfig{Format: format}); err != nil {
			t.Errorf("format %q rejected: %v", format, err)
		}
	}
	if _, err := newLoggerFromConfig(loggerConfig{Format: "xml"}); err == nil {
		t.Error("unknown format accepted")
	}
}
