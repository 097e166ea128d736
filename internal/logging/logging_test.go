package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "relayd.log")

	logger, err := New(path, "test", "info")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("hello")
	logger.Debug("filtered")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"instance":"test"`) {
		t.Errorf("log file = %q, want hello entry with instance field", out)
	}
	if strings.Contains(out, "filtered") {
		t.Error("debug entry written at info level")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "x.log"), "test", "loud"); err == nil {
		t.Error("New() expected error for unknown level")
	}
}
