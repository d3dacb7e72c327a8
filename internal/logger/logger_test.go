package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_CreatesLevelFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	l, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Info("frame %d accepted", 1)
	l.Warning("subscriber %s dropped", "abc")
	l.Error("detection failed: %v", "boom")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	tests := []struct {
		file string
		want string
	}{
		{"info.log", "frame 1 accepted"},
		{"warning.log", "subscriber abc dropped"},
		{"error.log", "detection failed: boom"},
	}

	for _, tt := range tests {
		data, err := os.ReadFile(filepath.Join(dir, tt.file))
		if err != nil {
			t.Fatalf("Failed to read %s: %v", tt.file, err)
		}
		if !strings.Contains(string(data), tt.want) {
			t.Errorf("%s: expected %q, got %q", tt.file, tt.want, string(data))
		}
	}
}

func TestNewWriter_Prefixes(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)

	l.Info("one")
	l.Warning("two")
	l.Error("three")

	out := buf.String()
	for _, prefix := range []string{"INFO", "WARNING", "ERROR"} {
		if !strings.Contains(out, prefix) {
			t.Errorf("Expected output to contain %s, got %q", prefix, out)
		}
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Errorf("Expected caller file in output, got %q", out)
	}
}
