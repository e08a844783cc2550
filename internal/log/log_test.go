package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, slog.LevelInfo)
	l.Debug("hidden")
	l.With("train", 3).Infof("arrived after %d ticks", 12)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not a single JSON record: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "arrived after 12 ticks" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["train"] != float64(3) {
		t.Errorf("train = %v, want 3", rec["train"])
	}
	if l.DebugEnabled() {
		t.Error("DebugEnabled() = true at info level")
	}
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	l.Debug("dropped")
	l.Infof("dropped %d", 1)
	if l.With("k", "v") != nil {
		t.Error("With on a nil logger returned non-nil")
	}
	if l.DebugEnabled() {
		t.Error("nil logger reports debug enabled")
	}
}

func TestNewFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New("debug", dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Info("written")
	if l.LogFile != filepath.Join(dir, "movingblock.slog") {
		t.Errorf("LogFile = %q", l.LogFile)
	}
	if fi, err := os.Stat(l.LogFile); err != nil || fi.Size() == 0 {
		t.Errorf("log file missing or empty: %v", err)
	}
	if _, err := New("loud", dir); err == nil {
		t.Error("New accepted an invalid level")
	}
}
